package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"
)

// RedisSink publishes each event on a channel and keeps the latest event of
// every session in a hash at "<channel>:session:<id>".
type RedisSink struct {
	client  *backend.Client
	channel string
}

// NewRedisSink connects to addr.
func NewRedisSink(addr string, db int, channel string) *RedisSink {
	return NewRedisSinkFromClient(backend.NewClient(&backend.Options{Addr: addr, DB: db}), channel)
}

// NewRedisSinkFromClient wraps an existing client.
func NewRedisSinkFromClient(client *backend.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

// SessionKey is the hash holding the latest event of a session.
func (s *RedisSink) SessionKey(session string) string {
	return s.channel + ":session:" + session
}

// Append implements Sink.
func (s *RedisSink) Append(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.SessionKey(e.Session), map[string]any{
		"target":   e.Target,
		"percent":  e.Percent,
		"size":     e.Size,
		"status":   e.Status,
		"terminal": e.Terminal,
		"ts":       e.Timestamp.Format(TimestampLayout),
	})
	pipe.Publish(ctx, s.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
