// Package rabbitmq publishes race lifecycle events to a topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/rabbitmq/amqp091-go"

	"math-race-service/internal/domain"
)

// DefaultExchange is used when the config leaves rabbitmq.exchange empty.
const DefaultExchange = "race.events"

// Publisher implements app.EventPublisher on top of an AMQP channel.
type Publisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	log.Printf("event publisher ready on exchange %s", exchange)
	return &Publisher{conn: conn, channel: channel, exchange: exchange}, nil
}

func (p *Publisher) Publish(ctx context.Context, event domain.RaceEvent) error {
	msg, err := newPublishing(event)
	if err != nil {
		return err
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, routingKey(event), false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Printf("close rabbitmq channel: %v", err)
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// routingKey is the event type, plus the lowercased status for finished races
// (race.finished.player_won), so consumers can bind to outcomes.
func routingKey(event domain.RaceEvent) string {
	if event.Type == domain.EventRaceFinished && event.Status != "" {
		return event.Type + "." + strings.ToLower(string(event.Status))
	}
	return event.Type
}

func newPublishing(event domain.RaceEvent) (amqp091.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.GameID + ":" + event.Type,
		Timestamp:    event.OccurredAt,
		Body:         body,
		Headers: amqp091.Table{
			"event_type": event.Type,
			"game_id":    event.GameID,
			"player_id":  event.PlayerID,
		},
	}, nil
}
