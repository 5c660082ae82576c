// Package events publishes upload notifications to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/hrvault/hrvault/internal/platform/metrics"
)

const TypeUploadProcessed = "upload.processed"

// UploadProcessed is emitted after an export was extracted and stored.
type UploadProcessed struct {
	FileID            string    `json:"file_id"`
	PatientID         string    `json:"patient_id"`
	Filename          string    `json:"filename"`
	DateOfMeasurement string    `json:"date_of_measurement"`
	Samples           int       `json:"samples"`
	CreatedAt         time.Time `json:"created_at"`
}

// Publisher delivers domain events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishUploadProcessed(ctx context.Context, evt UploadProcessed) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic keyed by patient ID, so
// one patient's uploads stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			WriteTimeout:           2 * time.Second,
			BatchTimeout:           10 * time.Millisecond,
			MaxAttempts:            3,
		},
		topic: topic,
	}
}

func (p *KafkaPublisher) PublishUploadProcessed(ctx context.Context, evt UploadProcessed) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", TypeUploadProcessed, err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.PatientID),
		Value: payload,
		Time:  evt.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(TypeUploadProcessed)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordEventPublished(metrics.OutcomeFailed)
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	metrics.RecordEventPublished(metrics.OutcomeSuccess)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events, logging them at debug level. Used when no
// brokers are configured.
type NopPublisher struct {
	logger zerolog.Logger
}

func NewNopPublisher(logger zerolog.Logger) *NopPublisher {
	return &NopPublisher{logger: logger}
}

func (p *NopPublisher) PublishUploadProcessed(_ context.Context, evt UploadProcessed) error {
	p.logger.Debug().
		Str("event_type", TypeUploadProcessed).
		Str("file_id", evt.FileID).
		Str("patient_id", evt.PatientID).
		Msg("event dropped: no brokers configured")
	return nil
}

func (p *NopPublisher) Close() error { return nil }
