package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hacknation/tagscan/service-gateway/internal/metrics"
	"github.com/hacknation/tagscan/service-gateway/internal/models"
	"github.com/hacknation/tagscan/service-gateway/internal/storage"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const itemUpdatesQueue = "q.tagscan.item_updates"

type deliveryOutcome int

const (
	outcomeAck deliveryOutcome = iota
	outcomeDrop
	outcomeRetry
)

// RabbitMQConsumer applies item.update_requested events to the item store
type RabbitMQConsumer struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	items        storage.ItemStore
	exchangeName string
	now          func() time.Time
}

func NewRabbitMQConsumer(url, exchangeName string, items storage.ItemStore) (*RabbitMQConsumer, error) {
	conn, channel, err := dialExchange(url, exchangeName)
	if err != nil {
		return nil, err
	}

	return &RabbitMQConsumer{
		conn:         conn,
		channel:      channel,
		items:        items,
		exchangeName: exchangeName,
		now:          time.Now,
	}, nil
}

func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	q, err := c.channel.QueueDeclare(
		itemUpdatesQueue, // name
		true,             // durable
		false,            // delete when unused
		false,            // exclusive
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		q.Name,
		RoutingKeyItemUpdateRequested,
		c.exchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue to %s: %w", RoutingKeyItemUpdateRequested, err)
	}

	msgs, err := c.channel.Consume(
		q.Name, // queue
		"",     // consumer tag
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	go c.consumeLoop(ctx, msgs)

	log.Info().Str("queue", q.Name).Msg("Item update consumer started")
	return nil
}

func (c *RabbitMQConsumer) consumeLoop(ctx context.Context, msgs <-chan amqp.Delivery) {
	for d := range msgs {
		log.Info().Str("routing_key", d.RoutingKey).Str("message_id", d.MessageId).Msg("Received item update")

		switch c.handleUpdate(ctx, d.Body) {
		case outcomeAck:
			metrics.ItemUpdatesConsumedTotal.WithLabelValues("applied").Inc()
			d.Ack(false)
		case outcomeDrop:
			metrics.ItemUpdatesConsumedTotal.WithLabelValues("dropped").Inc()
			d.Nack(false, false)
		case outcomeRetry:
			metrics.ItemUpdatesConsumedTotal.WithLabelValues("retried").Inc()
			d.Nack(false, true)
		}
	}
}

// handleUpdate applies one update request. Malformed messages and unknown
// items are dropped; store failures are requeued.
func (c *RabbitMQConsumer) handleUpdate(ctx context.Context, body []byte) deliveryOutcome {
	var req models.ItemUpdateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal update message")
		return outcomeDrop
	}

	if req.ItemID == "" {
		log.Warn().Msg("Update message missing item_id")
		return outcomeDrop
	}
	if len(req.Fields) == 0 {
		log.Warn().Str("id", req.ItemID).Msg("Update message has no fields")
		return outcomeDrop
	}

	patch := models.Document(req.Fields).Clone()
	delete(patch, "id")
	patch["updated_at"] = c.now().UTC().Format(time.RFC3339)

	if _, err := c.items.Update(ctx, req.ItemID, patch); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn().Str("id", req.ItemID).Msg("Item not found for update")
			return outcomeDrop
		}
		log.Error().Err(err).Str("id", req.ItemID).Msg("Failed to apply item update")
		return outcomeRetry
	}

	log.Info().Str("id", req.ItemID).Int("fields", len(req.Fields)).Msg("Applied item update")
	return outcomeAck
}

func (c *RabbitMQConsumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
