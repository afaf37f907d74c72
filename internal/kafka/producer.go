package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/pattern-review-service/internal/models"
)

// Producer publishes review activity events to Kafka
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer for the activity topic
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &Producer{writer: writer}
}

// PublishActivity sends an activity event, keyed by session so one
// session's activity stays ordered within a partition.
func (p *Producer) PublishActivity(ctx context.Context, event *models.ActivityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal activity event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Data.SessionID),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish activity event %s: %w", event.EventType, err)
	}

	log.Printf("Published activity event: %s session=%s", event.EventType, event.Data.SessionID)
	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
