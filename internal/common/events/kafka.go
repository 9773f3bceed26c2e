// internal/common/events/kafka.go
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"automation-engine/internal/models"
)

// MessageWriter is the subset of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaSink struct {
	writer MessageWriter
	topic  string
}

// NewKafkaSink keys messages by subject id so events for one subject stay ordered.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return NewKafkaSinkWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}, topic)
}

func NewKafkaSinkWithWriter(w MessageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic}
}

func (s *KafkaSink) Publish(ctx context.Context, event models.DispatchEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal dispatch event: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.SubjectID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "workflow_type", Value: []byte(event.WorkflowType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	})
	record("kafka", err)
	if err != nil {
		return fmt.Errorf("publish to kafka topic %s: %w", s.topic, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
