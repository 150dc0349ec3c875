package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/cloudx-io/auctionhouse/auctionapi"
)

// Subscriber relays bid events from Redis pub/sub to a local Manager
type Subscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
}

// NewSubscriber connects to Redis and subscribes to every item's bid channel
func NewSubscriber(ctx context.Context, addr, password string, db int) (*Subscriber, error) {
	client, err := newRedisClient(addr, password, db)
	if err != nil {
		return nil, err
	}

	pubsub := client.PSubscribe(ctx, ChannelPattern)
	// Wait for the subscription confirmation so no event published after
	// NewSubscriber returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", ChannelPattern, err)
	}

	return &Subscriber{client: client, pubsub: pubsub}, nil
}

// Listen forwards messages to the manager until ctx is cancelled or the
// subscription is closed. This is a blocking operation - run in a goroutine.
func (s *Subscriber) Listen(ctx context.Context, manager *Manager) error {
	ch := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			itemID := itemIDFromChannel(msg.Channel)
			if itemID == "" {
				continue
			}

			var event auctionapi.BidEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("WARNING: Dropping malformed bid event on %s: %v", msg.Channel, err)
				continue
			}

			manager.Broadcast(itemID, []byte(msg.Payload))
		}
	}
}

func (s *Subscriber) Close() error {
	s.pubsub.Close()
	return s.client.Close()
}
