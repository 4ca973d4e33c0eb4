package changes

import (
	"context"
	"fmt"
	"sync"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/google/uuid"
)

const (
	// SubscriberBufferSize is the number of undelivered events kept per subscriber
	SubscriberBufferSize = 64
)

var _ Broker = &InMemoryBroker{}

// InMemoryBroker delivers events to subscribers within the same process.
// Slow subscribers lose events instead of blocking publishers.
type InMemoryBroker struct {
	lock        sync.RWMutex
	subscribers map[string]map[string]chan Event
	closed      bool
}

func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		subscribers: make(map[string]map[string]chan Event),
	}
}

func (b *InMemoryBroker) Publish(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %v", err)
	}
	b.deliver(event)
	return nil
}

// deliver hands the event to every subscriber of its user.
func (b *InMemoryBroker) deliver(event Event) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	for id, ch := range b.subscribers[event.UserID] {
		select {
		case ch <- event:
		default:
			log.Warn("Dropping %s event for subscriber %s: buffer full", event.EventType, id)
		}
	}
}

func (b *InMemoryBroker) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return nil, fmt.Errorf("broker is closed")
	}

	id := uuid.NewString()
	ch := make(chan Event, SubscriberBufferSize)
	if b.subscribers[userID] == nil {
		b.subscribers[userID] = make(map[string]chan Event)
	}
	b.subscribers[userID][id] = ch
	log.Debug("Subscriber %s registered for user %s", id, userID)

	return &Subscription{
		ID:     id,
		UserID: userID,
		C:      ch,
		closeFunc: func() {
			b.unsubscribe(userID, id)
		},
	}, nil
}

func (b *InMemoryBroker) unsubscribe(userID string, id string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	ch, ok := b.subscribers[userID][id]
	if !ok {
		return
	}
	delete(b.subscribers[userID], id)
	if len(b.subscribers[userID]) == 0 {
		delete(b.subscribers, userID)
	}
	close(ch)
	log.Debug("Subscriber %s removed for user %s", id, userID)
}

func (b *InMemoryBroker) SubscriberCount(ctx context.Context, userID string) (int, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.subscribers[userID]), nil
}

// Close ends every subscription.
func (b *InMemoryBroker) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	for userID, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, userID)
	}
	b.closed = true
	return nil
}
