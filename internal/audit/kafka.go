package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"bottle-monitor/backend/internal/audit/domain"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink streams audit entries as JSON to a Kafka topic, keyed by principal id
// so one principal's events stay ordered within a partition.
type KafkaSink struct {
	writer MessageWriter
}

// NewKafkaSink returns a sink writing to topic on brokers, or nil if either is empty.
// Call Close when shutting down.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return NewKafkaSinkWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	})
}

// NewKafkaSinkWithWriter returns a sink using w.
func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

// Create serializes the entry and writes it to the topic.
func (s *KafkaSink) Create(ctx context.Context, a *domain.AuditLog) error {
	if s == nil || s.writer == nil || a == nil {
		return nil
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(a.PrincipalID),
		Value: payload,
		Time:  a.CreatedAt,
	})
}

// Close closes the Kafka writer. Safe to call on a nil sink.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
