package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/pattern-review-service/internal/models"
)

// DetectionRepository defines the interface for detection database operations
type DetectionRepository interface {
	UpsertEngineDetection(ctx context.Context, d *models.Detection) error
	UpsertSession(ctx context.Context, s *models.Session) error
}

// DetectionsConsumer handles consuming pattern-engine events from Kafka
type DetectionsConsumer struct {
	reader *kafka.Reader
	repo   DetectionRepository
}

// NewDetectionsConsumer creates a new Kafka consumer for pattern-engine events
func NewDetectionsConsumer(brokers []string, topic, groupID string, repo DetectionRepository) *DetectionsConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID + "-detections",
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &DetectionsConsumer{
		reader: reader,
		repo:   repo,
	}
}

// Start begins consuming messages from Kafka
func (c *DetectionsConsumer) Start(ctx context.Context) error {
	log.Printf("Starting detections consumer for topic: %s", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			log.Println("Detections consumer shutting down...")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				log.Printf("Error reading detections message: %v", err)
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				log.Printf("Error processing detections message: %v", err)
				// Continue processing other messages
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *DetectionsConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	log.Printf("Received detections message from partition %d offset %d: key=%s",
		msg.Partition, msg.Offset, string(msg.Key))

	var event models.PatternEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal pattern event: %w", err)
	}

	switch event.EventType {
	case "PATTERN_DETECTED":
		return c.handlePatternDetected(ctx, event)

	case "DETECTION_BATCH":
		return c.handleDetectionBatch(ctx, event)

	default:
		log.Printf("Ignoring unknown pattern event type: %s", event.EventType)
		return nil
	}
}

// handlePatternDetected processes a single detection event
func (c *DetectionsConsumer) handlePatternDetected(ctx context.Context, event models.PatternEvent) error {
	if event.Data.SessionID == "" {
		return fmt.Errorf("pattern event missing session_id")
	}

	if err := c.ensureSession(ctx, event.Data); err != nil {
		return err
	}

	detection, err := c.convertDetection(event.Data.SessionID, models.PatternDetection{
		CandleIndex:   event.Data.CandleIndex,
		CandleTime:    event.Data.CandleTime,
		Price:         event.Data.Price,
		DetectionType: event.Data.DetectionType,
		Structure:     event.Data.Structure,
		Confidence:    event.Data.Confidence,
		Reasoning:     event.Data.Reasoning,
	})
	if err != nil {
		return fmt.Errorf("invalid detection in pattern event: %w", err)
	}

	if err := c.repo.UpsertEngineDetection(ctx, detection); err != nil {
		return fmt.Errorf("failed to upsert detection: %w", err)
	}

	log.Printf("Ingested detection: session=%s candle=%d type=%s price=%s",
		detection.SessionID, detection.CandleIndex, detection.DetectionType, detection.Price)
	return nil
}

// handleDetectionBatch processes a batch snapshot for one session
func (c *DetectionsConsumer) handleDetectionBatch(ctx context.Context, event models.PatternEvent) error {
	if event.Data.SessionID == "" {
		return fmt.Errorf("detection batch missing session_id")
	}

	log.Printf("Processing detection batch: session=%s count=%d",
		event.Data.SessionID, len(event.Data.Detections))

	if err := c.ensureSession(ctx, event.Data); err != nil {
		return err
	}

	ingested := 0
	for _, pd := range event.Data.Detections {
		detection, err := c.convertDetection(event.Data.SessionID, pd)
		if err != nil {
			log.Printf("Warning: skipping detection at candle %d: %v", pd.CandleIndex, err)
			continue
		}
		if err := c.repo.UpsertEngineDetection(ctx, detection); err != nil {
			log.Printf("Error upserting detection at candle %d: %v", pd.CandleIndex, err)
			continue
		}
		ingested++
	}

	log.Printf("Ingested %d/%d detections for session %s",
		ingested, len(event.Data.Detections), event.Data.SessionID)
	return nil
}

// ensureSession upserts the session named by an engine event so detections
// always land in an existing session.
func (c *DetectionsConsumer) ensureSession(ctx context.Context, data models.PatternEventData) error {
	session := &models.Session{
		ID:        data.SessionID,
		Symbol:    data.Symbol,
		Timeframe: data.Timeframe,
	}
	if err := c.repo.UpsertSession(ctx, session); err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", data.SessionID, err)
	}
	return nil
}

// convertDetection converts engine event data to a Detection model
func (c *DetectionsConsumer) convertDetection(sessionID string, pd models.PatternDetection) (*models.Detection, error) {
	if pd.DetectionType == "" {
		return nil, fmt.Errorf("missing detection_type")
	}

	price, err := decimal.NewFromString(pd.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", pd.Price, err)
	}

	var confidence float64
	if pd.Confidence != "" {
		conf, err := decimal.NewFromString(pd.Confidence)
		if err != nil {
			return nil, fmt.Errorf("invalid confidence %q: %w", pd.Confidence, err)
		}
		confidence, _ = conf.Float64()
	}

	candleTime, err := time.Parse(time.RFC3339, pd.CandleTime)
	if err != nil {
		return nil, fmt.Errorf("invalid candle_time %q: %w", pd.CandleTime, err)
	}

	return &models.Detection{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		CandleIndex:   pd.CandleIndex,
		CandleTime:    candleTime,
		Price:         price,
		DetectionType: pd.DetectionType,
		Structure:     pd.Structure,
		Status:        models.DetectionPending,
		Confidence:    confidence,
		Reasoning:     pd.Reasoning,
		Source:        models.SourceEngine,
	}, nil
}

// Close closes the Kafka consumer
func (c *DetectionsConsumer) Close() error {
	return c.reader.Close()
}
