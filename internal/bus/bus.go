// Package bus provides the JetStream-backed message bus: durable
// streams for ingress/egress/DLQ traffic, KV buckets for idempotency
// and rate-limit state, and pull consumers for the egress workers.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"
	"github.com/nats-io/nats.go"

	"github.com/greentic-ai/greentic-messaging/internal/subjects"
)

// Conn wraps a NATS connection with its JetStream context.
type Conn struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log *slog.Logger
}

// Connect dials the bus and initialises JetStream. Connection-level
// reconnects are handled by the NATS client itself.
func Connect(url string) (*Conn, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("bus connect %q: %w", url, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bus jetstream: %w", err)
	}
	return &Conn{nc: nc, js: js, log: slog.Default().With("component", "bus")}, nil
}

// Close drains and closes the underlying connection.
func (c *Conn) Close() {
	if err := c.nc.Drain(); err != nil {
		c.log.Warn("drain failed, closing", "error", err)
		c.nc.Close()
	}
}

// JS exposes the JetStream context for stream-level operations (used
// by the DLQ store).
func (c *Conn) JS() nats.JetStreamContext { return c.js }

// EnsureStreams creates the ingress, egress, and DLQ streams if they
// do not exist yet. Ingress and egress use work-queue retention; the
// DLQ keeps records until they are explicitly deleted or replayed.
func (c *Conn) EnsureStreams() error {
	streams := []*nats.StreamConfig{
		{Name: subjects.IngressStream, Subjects: []string{subjects.IngressWildcard}, Retention: nats.WorkQueuePolicy, Storage: nats.FileStorage},
		{Name: subjects.EgressStream, Subjects: []string{subjects.EgressWildcard}, Retention: nats.WorkQueuePolicy, Storage: nats.FileStorage},
		{Name: subjects.DLQStream, Subjects: []string{subjects.DLQWildcard}, Retention: nats.LimitsPolicy, Storage: nats.FileStorage},
	}
	for _, cfg := range streams {
		if _, err := c.js.StreamInfo(cfg.Name); err == nil {
			continue
		} else if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("stream info %s: %w", cfg.Name, err)
		}
		if _, err := c.js.AddStream(cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		c.log.Info("created stream", "name", cfg.Name)
	}
	return nil
}

// Publish writes one message to the given subject.
func (c *Conn) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := c.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// PublishRetry publishes with jittered exponential backoff for
// transient bus failures. The last error is returned once attempts
// are exhausted or ctx is cancelled.
func (c *Conn) PublishRetry(ctx context.Context, subject string, data []byte, attempts int) error {
	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Jitter: true}
	var err error
	for i := 0; i < attempts; i++ {
		if err = c.Publish(ctx, subject, data); err == nil {
			return nil
		}
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// KeyValue binds to a KV bucket, creating it with the given entry TTL
// when it does not exist yet.
func (c *Conn) KeyValue(bucket string, ttl time.Duration) (nats.KeyValue, error) {
	kv, err := c.js.KeyValue(bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, nats.ErrBucketNotFound) {
		return nil, fmt.Errorf("kv bind %s: %w", bucket, err)
	}
	kv, err = c.js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket, TTL: ttl})
	if err != nil {
		return nil, fmt.Errorf("kv create %s: %w", bucket, err)
	}
	return kv, nil
}
