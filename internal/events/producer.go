package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Publisher emits checkout lifecycle events. Publishing is best-effort:
// callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, sessionID, eventType string, data any) error
	Close() error
}

// Envelope is the wire format of a published event.
type Envelope struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// KafkaPublisher writes events to a Kafka topic keyed by session id.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, sessionID, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	envelope := Envelope{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		EventType: eventType,
		Data:      payload,
		Timestamp: time.Now(),
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(sessionID),
		Value: value,
		Time:  envelope.Timestamp,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards all events. Used in tests and broker-less deployments.
type NopPublisher struct{}

func NewNop() *NopPublisher {
	return &NopPublisher{}
}

func (*NopPublisher) Publish(ctx context.Context, sessionID, eventType string, data any) error {
	return nil
}

func (*NopPublisher) Close() error {
	return nil
}
