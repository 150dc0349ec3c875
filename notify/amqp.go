package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	auctionFinishedExchange   = "auction_finished_exchange"
	auctionFinishedRoutingKey = "auction_finished_routing_key"
)

// AMQPNotifier publishes winner notices to a RabbitMQ direct exchange
type AMQPNotifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPNotifier dials RabbitMQ and declares the auction finished exchange
func NewAMQPNotifier(amqpURL string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		auctionFinishedExchange, // name
		"direct",                // type
		true,                    // durable
		false,                   // auto-deleted
		false,                   // internal
		false,                   // no-wait
		nil,                     // arguments
	)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &AMQPNotifier{conn: conn, channel: channel}, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, notice WinnerNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	err = n.channel.PublishWithContext(ctx,
		auctionFinishedExchange,   // exchange
		auctionFinishedRoutingKey, // routing key
		false,                     // mandatory
		false,                     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    notice.ItemID + ":" + notice.UserName,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish winner notice: %w", err)
	}

	log.Printf("INFO: Published winner notice for %s on item %s to %s", notice.UserName, notice.ItemID, auctionFinishedExchange)
	return nil
}

func (n *AMQPNotifier) Close() error {
	if err := n.channel.Close(); err != nil {
		log.Printf("ERROR: Failed to close AMQP channel: %v", err)
	}
	return n.conn.Close()
}
