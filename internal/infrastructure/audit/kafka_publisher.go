package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/channelsync/backend/internal/domain/audit"
	"github.com/channelsync/backend/internal/infrastructure/config"
)

// kafkaRecord is the wire shape of an audit record on the mirror topic.
type kafkaRecord struct {
	ID         string            `json:"id"`
	Component  string            `json:"component"`
	Action     string            `json:"action"`
	Status     string            `json:"status"`
	DurationMS int64             `json:"duration_ms"`
	IDs        map[string]string `json:"ids,omitempty"`
	Error      string            `json:"error,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// messageWriter is the subset of kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher mirrors audit records to a Kafka topic. Records are
// keyed by component so per-component ordering is preserved.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher for the configured audit topic.
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 100 * time.Millisecond,
		},
	}
}

// NewKafkaPublisherWithWriter creates a publisher with an existing writer.
// This is useful for testing.
func NewKafkaPublisherWithWriter(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Write publishes one audit record to the topic.
func (p *KafkaPublisher) Write(ctx context.Context, record audit.Record) error {
	payload, err := json.Marshal(kafkaRecord{
		ID:         record.ID.String(),
		Component:  record.Component,
		Action:     record.Action,
		Status:     string(record.Status),
		DurationMS: record.Duration.Milliseconds(),
		IDs:        record.IDs,
		Error:      record.Error,
		OccurredAt: record.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(record.Component),
		Value: payload,
		Time:  record.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish audit record: %w", err)
	}

	return nil
}

// Close closes the underlying Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Ensure KafkaPublisher implements Writer
var _ Writer = (*KafkaPublisher)(nil)
