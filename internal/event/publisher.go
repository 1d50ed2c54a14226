package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Event types published for the bot layer to render as messages.
const (
	TypeMaintenanceReminder = "role.reminder"
	TypeRoleSuspended       = "role.suspended"
	TypeRoleSold            = "role.sold"
	TypeAuctionCompleted    = "role.auction.completed"
	TypeAuctionExpired      = "role.auction.expired"
)

// RoleEvent is the payload published for every notification.
type RoleEvent struct {
	EventType      string `json:"event_type"`
	EntitlementID  string `json:"entitlement_id"`
	Label          string `json:"label"`
	AccountID      string `json:"account_id"`
	CounterpartyID string `json:"counterparty_id,omitempty"`
	Amount         int64  `json:"amount,omitempty"`
	DaysLeft       int    `json:"days_left,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// Publisher emits role notification events.
type Publisher interface {
	PublishRoleEvent(event *RoleEvent) error
	Close() error
}

// EventPublisher publishes events to a RabbitMQ topic exchange. When no
// URI is configured the publisher is disabled and every publish is a
// logged no-op, so callers never need a nil check.
type EventPublisher struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	enabled      bool
}

// NewEventPublisher connects to RabbitMQ and declares the exchange.
func NewEventPublisher(rabbitURI string) (*EventPublisher, error) {
	if rabbitURI == "" {
		log.Println("Warning: RabbitMQ URI is empty, event publishing is disabled")
		return &EventPublisher{enabled: false}, nil
	}

	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	exchangeName := "roleshop.events"
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
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &EventPublisher{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		enabled:      true,
	}, nil
}

// PublishRoleEvent publishes an event with its type as the routing key.
func (p *EventPublisher) PublishRoleEvent(event *RoleEvent) error {
	if !p.enabled {
		return nil
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(
		pubCtx,
		p.exchangeName,  // exchange
		event.EventType, // routing key
		false,           // mandatory
		false,           // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close shuts down the channel and connection.
func (p *EventPublisher) Close() error {
	if !p.enabled {
		return nil
	}
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Printf("Error closing RabbitMQ channel: %v", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}
	return nil
}

// Ensure EventPublisher implements Publisher
var _ Publisher = (*EventPublisher)(nil)
