package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/changes"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/messages"
	"nhooyr.io/websocket"
)

// ErrDialStatus is returned when the server refuses the upgrade
type ErrDialStatus struct {
	StatusCode int
}

func (e *ErrDialStatus) Error() string {
	return fmt.Sprintf("feed upgrade refused with status %d", e.StatusCode)
}

// IsUnauthorized reports whether a dial was refused for lack of credentials.
func IsUnauthorized(err error) bool {
	var target *ErrDialStatus
	return errors.As(err, &target) && target.StatusCode == http.StatusUnauthorized
}

// FeedClient reads the change feed of one user.
type FeedClient struct {
	url   string
	token string
	conn  *websocket.Conn
}

type NewFeedClientOptions struct {
	// URL of the feed endpoint, ws(s):// or http(s)://.
	URL   string
	Token string
}

func NewFeedClient(opts NewFeedClientOptions) *FeedClient {
	return &FeedClient{
		url:   opts.URL,
		token: opts.Token,
	}
}

// Connect dials the feed with the bearer token.
func (c *FeedClient) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return &ErrDialStatus{StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("failed to connect to feed: %v", err)
	}
	conn.SetReadLimit(messages.MessageBufferSize)
	c.conn = conn
	return nil
}

// Listen delivers events until the context is cancelled or the connection
// fails. A normal closure by either side returns nil.
func (c *FeedClient) Listen(ctx context.Context, events chan<- changes.Event) error {
	if c.conn == nil {
		return fmt.Errorf("feed client is not connected")
	}
	for {
		msg, err := ReadMessageFromWS(ctx, c.conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return fmt.Errorf("failed to read from feed: %v", err)
		}

		switch msg.Type {
		case messages.MessageTypeChange:
			event, err := msg.Change()
			if err != nil {
				log.Warn("Ignoring malformed change: %v", err)
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return nil
			}
		case messages.MessageTypeError:
			serverError, err := msg.ServerError()
			if err != nil {
				return fmt.Errorf("feed failed: %v", err)
			}
			return fmt.Errorf("feed failed: %s", serverError.Reason)
		default:
			log.Warn("Ignoring feed message of unknown type %s", msg.Type)
		}
	}
}

func (c *FeedClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
