package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hacknation/tagscan/service-gateway/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	RoutingKeyItemAnalyzed        = "item.analyzed"
	RoutingKeyItemDeleted         = "item.deleted"
	RoutingKeyItemUpdateRequested = "item.update_requested"
)

// RabbitMQPublisher handles publishing messages to RabbitMQ
type RabbitMQPublisher struct {
	mu           sync.RWMutex
	conn         *amqp.Connection
	channel      *amqp.Channel
	exchangeName string
	url          string
}

// NewRabbitMQPublisher creates a new RabbitMQ publisher
func NewRabbitMQPublisher(url, exchangeName string) (*RabbitMQPublisher, error) {
	conn, channel, err := dialExchange(url, exchangeName)
	if err != nil {
		return nil, err
	}

	publisher := &RabbitMQPublisher{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		url:          url,
	}

	go publisher.handleReconnect()

	log.Info().
		Str("exchange", exchangeName).
		Msg("RabbitMQ publisher initialized")

	return publisher, nil
}

// dialExchange connects, opens a channel and declares the topic exchange (idempotent)
func dialExchange(url, exchangeName string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return conn, channel, nil
}

// PublishItemAnalyzed publishes an item.analyzed event
func (p *RabbitMQPublisher) PublishItemAnalyzed(ctx context.Context, event models.ItemAnalyzedEvent) error {
	return p.publish(ctx, RoutingKeyItemAnalyzed, event)
}

// PublishItemDeleted publishes an item.deleted event
func (p *RabbitMQPublisher) PublishItemDeleted(ctx context.Context, event models.ItemDeletedEvent) error {
	return p.publish(ctx, RoutingKeyItemDeleted, event)
}

// publish publishes a message to the exchange with the given routing key
func (p *RabbitMQPublisher) publish(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.RLock()
	channel := p.channel
	p.mu.RUnlock()

	err = channel.PublishWithContext(
		ctx,
		p.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			MessageId:    uuid.New().String(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	log.Info().
		Str("routing_key", routingKey).
		Str("exchange", p.exchangeName).
		Int("body_size", len(body)).
		Msg("Message published to RabbitMQ")

	return nil
}

// handleReconnect redials after the broker drops the connection
func (p *RabbitMQPublisher) handleReconnect() {
	p.mu.RLock()
	closeChan := p.conn.NotifyClose(make(chan *amqp.Error, 1))
	p.mu.RUnlock()

	for closeErr := range closeChan {
		if closeErr == nil {
			continue
		}
		log.Error().
			Err(closeErr).
			Msg("RabbitMQ connection closed, attempting to reconnect...")

		for {
			time.Sleep(5 * time.Second)

			conn, channel, err := dialExchange(p.url, p.exchangeName)
			if err != nil {
				log.Error().Err(err).Msg("Failed to reconnect to RabbitMQ")
				continue
			}

			p.mu.Lock()
			p.conn = conn
			p.channel = channel
			p.mu.Unlock()

			log.Info().Msg("Successfully reconnected to RabbitMQ")

			closeChan = conn.NotifyClose(make(chan *amqp.Error, 1))
			break
		}
	}
}

// Close closes the RabbitMQ connection
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close RabbitMQ channel")
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close RabbitMQ connection")
			return err
		}
	}
	log.Info().Msg("RabbitMQ publisher closed")
	return nil
}

// HealthCheck verifies the RabbitMQ connection
func (p *RabbitMQPublisher) HealthCheck() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("RabbitMQ connection is closed")
	}
	if p.channel == nil {
		return fmt.Errorf("RabbitMQ channel is nil")
	}
	return nil
}
