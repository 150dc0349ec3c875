package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cloudx-io/auctionhouse/auctionapi"
)

const channelPrefix = "bid_events:"

// ChannelPattern matches the bid channels of every item
const ChannelPattern = channelPrefix + "*"

// Channel returns the pub/sub channel carrying bid events for an item
func Channel(itemID string) string {
	return channelPrefix + itemID
}

// itemIDFromChannel extracts the item ID from a channel name.
// Example: "bid_events:item123" -> "item123"
func itemIDFromChannel(channel string) string {
	itemID, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok {
		return ""
	}
	return itemID
}

// Publisher delivers accepted live bids to the feed
type Publisher interface {
	PublishBidEvent(ctx context.Context, event auctionapi.BidEvent) error
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) PublishBidEvent(context.Context, auctionapi.BidEvent) error { return nil }
func (NopPublisher) Close() error                                               { return nil }

// RedisPublisher publishes bid events to Redis pub/sub so that every
// house instance subscribed to the pattern can fan them out to its watchers.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(addr, password string, db int) (*RedisPublisher, error) {
	client, err := newRedisClient(addr, password, db)
	if err != nil {
		return nil, err
	}
	return &RedisPublisher{client: client}, nil
}

func newRedisClient(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// PublishBidEvent publishes a bid event on the item's channel
func (p *RedisPublisher) PublishBidEvent(ctx context.Context, event auctionapi.BidEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal bid event: %w", err)
	}

	if err := p.client.Publish(ctx, Channel(event.ItemID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish bid event for item %s: %w", event.ItemID, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
