package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-engine/internal/common/logger"
	"automation-engine/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func sampleEvent() models.DispatchEvent {
	return models.DispatchEvent{
		EventID:      "evt-1",
		WorkflowType: models.WorkflowAftercare,
		SubjectKind:  models.SubjectAppointment,
		SubjectID:    "appt-42",
		CustomerID:   "cust-7",
		Recipient:    "jane@example.com",
		Trigger:      models.TriggerScheduled,
		SentAt:       time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
	}
}

type MockWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	WriteErr error
	closed   bool
}

func (m *MockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *MockWriter) Close() error {
	m.closed = true
	return nil
}

type MockSink struct {
	PublishFunc func(ctx context.Context, event models.DispatchEvent) error
	calls       int
}

func (m *MockSink) Publish(ctx context.Context, event models.DispatchEvent) error {
	m.calls++
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, event)
	}
	return nil
}

// ==========================
// Kafka
// ==========================

func TestKafkaSink_Publish(t *testing.T) {
	w := &MockWriter{}
	sink := NewKafkaSinkWithWriter(w, "automation.dispatches")

	require.NoError(t, sink.Publish(context.Background(), sampleEvent()))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "appt-42", string(msg.Key))

	var decoded models.DispatchEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, models.WorkflowAftercare, decoded.WorkflowType)
	assert.Equal(t, "evt-1", decoded.EventID)

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "workflow_type", msg.Headers[0].Key)
	assert.Equal(t, "aftercare", string(msg.Headers[0].Value))

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_WriteError(t *testing.T) {
	w := &MockWriter{WriteErr: errors.New("leader not available")}
	sink := NewKafkaSinkWithWriter(w, "automation.dispatches")

	err := sink.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "automation.dispatches")
	assert.Contains(t, err.Error(), "leader not available")
}

// ==========================
// Elasticsearch
// ==========================

func newESTestClient(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticsearchSink_Publish(t *testing.T) {
	var gotPath, gotBody string
	client := newESTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	sink := NewElasticsearchSink(client, "automation-dispatches")
	require.NoError(t, sink.Publish(context.Background(), sampleEvent()))

	assert.Equal(t, "/automation-dispatches/_doc/evt-1", gotPath)
	assert.True(t, strings.Contains(gotBody, `"subjectId":"appt-42"`))
}

func TestElasticsearchSink_ErrorStatus(t *testing.T) {
	client := newESTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"unavailable"}`))
	})

	sink := NewElasticsearchSink(client, "automation-dispatches")
	err := sink.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

// ==========================
// Log and Multi
// ==========================

func TestLogSink_Publish(t *testing.T) {
	sink := NewLogSink(logger.NewTestLogger(t))
	assert.NoError(t, sink.Publish(context.Background(), sampleEvent()))
}

func TestMultiSink_FansOutAndJoinsErrors(t *testing.T) {
	ok := &MockSink{}
	failing := &MockSink{PublishFunc: func(context.Context, models.DispatchEvent) error {
		return errors.New("sink down")
	}}
	last := &MockSink{}

	multi := NewMultiSink(ok, failing, last)
	err := multi.Publish(context.Background(), sampleEvent())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, last.calls, "a failing sink must not stop the fan-out")
	assert.Equal(t, 3, multi.Len())
}

func TestMultiSink_Empty(t *testing.T) {
	assert.NoError(t, NewMultiSink().Publish(context.Background(), sampleEvent()))
}
