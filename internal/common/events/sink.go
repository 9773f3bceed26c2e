// internal/common/events/sink.go
package events

import (
	"context"
	"errors"

	"automation-engine/internal/common/logger"
	"automation-engine/internal/common/metrics"
	"automation-engine/internal/models"
)

// Sink receives a DispatchEvent after each successful send.
type Sink interface {
	Publish(ctx context.Context, event models.DispatchEvent) error
}

// LogSink writes events to the structured log. It is the default sink when
// neither Kafka nor Elasticsearch is enabled.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Publish(_ context.Context, event models.DispatchEvent) error {
	s.logger.Info("dispatch event", map[string]interface{}{
		"eventId":      event.EventID,
		"workflowType": string(event.WorkflowType),
		"subjectKind":  string(event.SubjectKind),
		"subjectId":    event.SubjectID,
		"trigger":      string(event.Trigger),
		"sentAt":       event.SentAt,
	})
	return nil
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Publish(ctx context.Context, event models.DispatchEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Len() int {
	return len(m.sinks)
}

func record(sink string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.EventsPublished.WithLabelValues(sink, result).Inc()
}
