// Package idempotency provides at-most-once admission for inbound
// events keyed by (tenant, platform, chat_id, msg_id) within a TTL
// window. The distributed store is a JetStream KV bucket with
// create-only semantics; a process-local store serves as fallback
// when the bucket is unreachable at startup.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/greentic-ai/greentic-messaging/internal/core"
	"github.com/greentic-ai/greentic-messaging/internal/telemetry"
)

// DefaultTTL is the dedup window applied when none is configured.
const DefaultTTL = 24 * time.Hour

// Key derives the idempotency key for one inbound event. The hash
// keeps tenant identifiers out of the KV bucket keyspace.
func Key(tenant string, platform core.Platform, chatID, msgID string) string {
	h := sha256.Sum256([]byte(tenant + "|" + string(platform) + "|" + chatID + "|" + msgID))
	return hex.EncodeToString(h[:])
}

// Store inserts keys at most once per TTL window. PutIfAbsent returns
// true when the key was inserted, false when it already exists.
type Store interface {
	PutIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Guard wraps a Store with the fail-open policy: a duplicate
// suppresses processing, a store failure lets the event through so a
// flaky KV cannot take down ingestion.
type Guard struct {
	store   Store
	ttl     time.Duration
	log     *slog.Logger
	metrics *telemetry.Metrics
}

func NewGuard(store Store, ttl time.Duration, metrics *telemetry.Metrics) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{
		store:   store,
		ttl:     ttl,
		log:     slog.Default().With("component", "idempotency"),
		metrics: metrics,
	}
}

// ShouldProcess reports whether the event identified by key is seen
// for the first time within the TTL window.
func (g *Guard) ShouldProcess(ctx context.Context, key string) bool {
	inserted, err := g.store.PutIfAbsent(ctx, key, g.ttl)
	if err != nil {
		g.log.Warn("store unavailable, failing open", "error", err)
		g.count(ctx, "error")
		return true
	}
	if !inserted {
		g.log.Debug("duplicate suppressed", "key", key)
		g.count(ctx, "duplicate")
		return false
	}
	return true
}

func (g *Guard) count(ctx context.Context, result string) {
	if g.metrics == nil {
		return
	}
	g.metrics.IdempotencyHits.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
