// Package changes carries per-user death record change events from the
// records service to realtime subscribers.
package changes

import (
	"context"
	"fmt"
	"sync"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event describes one row change. New is set for inserts and updates, Old
// for deletes.
type Event struct {
	EventType EventType           `json:"eventType"`
	UserID    string              `json:"userId"`
	New       *models.DeathRecord `json:"new,omitempty"`
	Old       *models.DeathRecord `json:"old,omitempty"`
}

// MvpID returns the monster the event is about, if known.
func (e Event) MvpID() string {
	if e.New != nil && e.New.MvpID != "" {
		return e.New.MvpID
	}
	if e.Old != nil {
		return e.Old.MvpID
	}
	return ""
}

func (e Event) Validate() error {
	switch e.EventType {
	case EventInsert, EventUpdate:
		if e.New == nil {
			return fmt.Errorf("%s event without new row", e.EventType)
		}
	case EventDelete:
		if e.Old == nil {
			return fmt.Errorf("%s event without old row", e.EventType)
		}
	default:
		return fmt.Errorf("unknown event type %q", e.EventType)
	}
	if e.UserID == "" {
		return fmt.Errorf("%s event without user", e.EventType)
	}
	return nil
}

// Broker fans events out to the subscribers of the event's user.
type Broker interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, userID string) (*Subscription, error)
	// SubscriberCount returns the number of live subscriptions for a user.
	SubscriberCount(ctx context.Context, userID string) (int, error)
	Close() error
}

// Subscription delivers the events of one user until closed.
type Subscription struct {
	ID     string
	UserID string
	C      <-chan Event

	closeOnce sync.Once
	closeFunc func()
}

// Close stops delivery and releases the subscription. It is safe to call
// more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(s.closeFunc)
}
