package network

import (
	"context"
	"net/http"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/changes"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/messages"
	"nhooyr.io/websocket"
)

// UserIDFunc extracts the authenticated user from a request context.
type UserIDFunc func(ctx context.Context) (string, bool)

// FeedHandler streams the change events of the authenticated user over a
// WebSocket. The connection is server-to-client only; frames sent by the
// client are discarded.
type FeedHandler struct {
	broker         changes.Broker
	userID         UserIDFunc
	writeTimeout   time.Duration
	originPatterns []string
}

type NewFeedHandlerOptions struct {
	Broker changes.Broker
	UserID UserIDFunc
	// WriteTimeout defaults to DefaultWriteTimeout.
	WriteTimeout time.Duration
	// OriginPatterns restricts cross-origin upgrades. Empty allows any origin.
	OriginPatterns []string
}

func NewFeedHandler(opts NewFeedHandlerOptions) *FeedHandler {
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &FeedHandler{
		broker:         opts.Broker,
		userID:         opts.UserID,
		writeTimeout:   writeTimeout,
		originPatterns: opts.OriginPatterns,
	}
}

func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(r.Context())
	if !ok {
		log.Error("failed to get user from context")
		http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: len(h.originPatterns) == 0,
	})
	if err != nil {
		log.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}
	log.Debug("New feed connection for user %s from %s", userID, r.RemoteAddr)

	sub, err := h.broker.Subscribe(r.Context(), userID)
	if err != nil {
		log.Error("Failed to subscribe user %s: %v", userID, err)
		h.closeWithError(r.Context(), conn, "failed to subscribe")
		return
	}
	defer sub.Close()
	if count, err := h.broker.SubscriberCount(r.Context(), userID); err != nil {
		log.Warn("Failed to count feeds of user %s: %v", userID, err)
	} else {
		log.Debug("User %s has %d open feeds", userID, count)
	}

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			log.Trace("Feed connection closed for user %s", userID)
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "feed closed")
				return
			}
			if err := h.send(ctx, conn, event); err != nil {
				log.Error("Failed to send %s event to user %s: %v", event.EventType, userID, err)
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (h *FeedHandler) send(ctx context.Context, conn *websocket.Conn, event changes.Event) error {
	msg, err := messages.NewChangeMessage(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return WriteMessageToWS(ctx, conn, msg)
}

func (h *FeedHandler) closeWithError(ctx context.Context, conn *websocket.Conn, reason string) {
	if msg, err := messages.NewErrorMessage(reason); err == nil {
		ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
		defer cancel()
		if err := WriteMessageToWS(ctx, conn, msg); err != nil {
			log.Warn("Failed to send error to feed: %v", err)
		}
	}
	conn.Close(websocket.StatusInternalError, reason)
}
