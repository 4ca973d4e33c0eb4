package network

import (
	"context"
	"fmt"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/messages"
	"nhooyr.io/websocket"
)

const (
	// DefaultWriteTimeout bounds a single frame write to a subscriber
	DefaultWriteTimeout = 10 * time.Second
)

// WriteMessageToWS writes a Message to a WebSocket connection as a binary frame
func WriteMessageToWS(ctx context.Context, conn *websocket.Conn, msg *messages.Message) error {
	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %v", err)
	}

	if err := conn.Write(ctx, websocket.MessageBinary, b); err != nil {
		return fmt.Errorf("failed to write message to WebSocket connection: %v", err)
	}

	return nil
}

// ReadMessageFromWS reads a Message from a WebSocket connection
func ReadMessageFromWS(ctx context.Context, conn *websocket.Conn) (*messages.Message, error) {
	typ, b, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("unexpected %s frame", typ)
	}

	msg, err := messages.DeserializeMessage(b)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %v", err)
	}

	return msg, nil
}
