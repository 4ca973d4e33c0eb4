package changes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ Broker = &RedisBroker{}

// RedisBroker fans events out through Redis pub/sub so that every API
// instance sees changes made through any other instance.
type RedisBroker struct {
	rdb    *redis.Client
	prefix string
}

type NewRedisBrokerOptions struct {
	Client *redis.Client
	// ChannelPrefix namespaces the per-user channels. Defaults to "mvp-deaths".
	ChannelPrefix string
}

func NewRedisBroker(opts NewRedisBrokerOptions) *RedisBroker {
	prefix := opts.ChannelPrefix
	if prefix == "" {
		prefix = "mvp-deaths"
	}
	return &RedisBroker{
		rdb:    opts.Client,
		prefix: prefix,
	}
}

// Channel returns the pub/sub channel name for a user.
func (b *RedisBroker) Channel(userID string) string {
	return fmt.Sprintf("%s:%s", b.prefix, userID)
}

func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %v", err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}
	if err := b.rdb.Publish(ctx, b.Channel(event.UserID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %v", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, b.Channel(userID))
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %v", err)
	}

	id := uuid.NewString()
	out := make(chan Event, SubscriberBufferSize)
	done := make(chan struct{})

	go func() {
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				event := Event{}
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Error("Failed to decode event on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case out <- event:
				default:
					log.Warn("Dropping %s event for subscriber %s: buffer full", event.EventType, id)
				}
			}
		}
	}()

	return &Subscription{
		ID:     id,
		UserID: userID,
		C:      out,
		closeFunc: func() {
			close(done)
			if err := pubsub.Close(); err != nil {
				log.Error("Failed to close subscription %s: %v", id, err)
			}
		},
	}, nil
}

// SubscriberCount counts the Redis subscribers of the user's channel, which
// includes feeds held by other server instances.
func (b *RedisBroker) SubscriberCount(ctx context.Context, userID string) (int, error) {
	channel := b.Channel(userID)
	counts, err := b.rdb.PubSubNumSub(ctx, channel).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %v", err)
	}
	return int(counts[channel]), nil
}

func (b *RedisBroker) Close() error {
	return nil
}
