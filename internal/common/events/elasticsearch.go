// internal/common/events/elasticsearch.go
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"automation-engine/internal/models"
)

// ElasticsearchSink indexes each event into the dispatch audit index.
// The event id is the document id, so a retried publish overwrites instead of duplicating.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) Publish(ctx context.Context, event models.DispatchEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal dispatch event: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(event.EventID),
	)
	if err != nil {
		record("elasticsearch", err)
		return fmt.Errorf("index dispatch event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		err = fmt.Errorf("index dispatch event: %s", res.Status())
		record("elasticsearch", err)
		return err
	}
	record("elasticsearch", nil)
	return nil
}
