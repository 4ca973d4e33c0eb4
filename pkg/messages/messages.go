package messages

import (
	"encoding/json"
	"fmt"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/changes"
)

const (
	// MessageBufferSize represents the maximum size of a compressed message
	MessageBufferSize = 32 * 1024
)

// Message types
const (
	MessageTypeChange = "change"
	MessageTypeError  = "error"
)

// Message is the envelope of every change-feed frame
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerError is sent before the server closes the feed on a failure
type ServerError struct {
	Reason string `json:"reason"`
}

// NewChangeMessage wraps a change event in an envelope.
func NewChangeMessage(event changes.Event) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change event: %v", err)
	}
	return &Message{
		Type:    MessageTypeChange,
		Payload: payload,
	}, nil
}

// NewErrorMessage wraps a failure reason in an envelope.
func NewErrorMessage(reason string) (*Message, error) {
	payload, err := json.Marshal(&ServerError{Reason: reason})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal server error: %v", err)
	}
	return &Message{
		Type:    MessageTypeError,
		Payload: payload,
	}, nil
}

// Change decodes the payload of a change message.
func (m *Message) Change() (changes.Event, error) {
	event := changes.Event{}
	if m.Type != MessageTypeChange {
		return event, fmt.Errorf("message type %q is not %q", m.Type, MessageTypeChange)
	}
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal change event: %v", err)
	}
	if err := event.Validate(); err != nil {
		return event, fmt.Errorf("invalid change event: %v", err)
	}
	return event, nil
}

// ServerError decodes the payload of an error message.
func (m *Message) ServerError() (*ServerError, error) {
	if m.Type != MessageTypeError {
		return nil, fmt.Errorf("message type %q is not %q", m.Type, MessageTypeError)
	}
	serverError := &ServerError{}
	if err := json.Unmarshal(m.Payload, serverError); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server error: %v", err)
	}
	return serverError, nil
}
