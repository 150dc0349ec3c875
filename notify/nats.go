package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	resultsStream        = "AUCTION_RESULTS"
	resultsSubjectPrefix = "auction.results"
)

// NATSNotifier publishes winner notices to a JetStream stream.
// Subject naming: "auction.results.{itemID}".
type NATSNotifier struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewNATSNotifier connects to NATS and ensures the results stream exists
func NewNATSNotifier(ctx context.Context, natsURL string) (*NATSNotifier, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	streamCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(streamCtx, jetstream.StreamConfig{
		Name:        resultsStream,
		Description: "Winner notices for closed auctions",
		Subjects:    []string{resultsSubjectPrefix + ".*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}
	log.Printf("INFO: JetStream stream %s ready", resultsStream)

	return &NATSNotifier{conn: conn, js: js}, nil
}

// ResultsSubject returns the subject notices for an item are published on
func ResultsSubject(itemID string) string {
	return fmt.Sprintf("%s.%s", resultsSubjectPrefix, itemID)
}

func (n *NATSNotifier) Notify(ctx context.Context, notice WinnerNotice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	ack, err := n.js.Publish(ctx, ResultsSubject(notice.ItemID), data)
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}

	log.Printf("INFO: Published winner notice for %s to %s, seq=%d", notice.UserName, ResultsSubject(notice.ItemID), ack.Sequence)
	return nil
}

func (n *NATSNotifier) Close() error {
	return n.conn.Drain()
}
