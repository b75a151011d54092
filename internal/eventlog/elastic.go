package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticSink indexes one document per event.
type ElasticSink struct {
	client *elasticsearch.Client
	index  string
}

// NewElasticSink builds a client for the given cluster addresses.
func NewElasticSink(addresses []string, index string) (*ElasticSink, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &ElasticSink{client: es, index: index}, nil
}

// Append implements Sink.
func (s *ElasticSink) Append(ctx context.Context, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"@timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"session":    e.Session,
		"target":     e.Target,
		"percent":    e.Percent,
		"size":       e.Size,
		"status":     e.Status,
		"terminal":   e.Terminal,
	})
	if err != nil {
		return err
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index event into %s: %s", s.index, res.String())
	}
	return nil
}

// Close implements Sink.
func (s *ElasticSink) Close() error {
	return nil
}
