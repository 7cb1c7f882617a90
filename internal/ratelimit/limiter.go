package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/greentic-ai/greentic-messaging/internal/telemetry"
)

// Limiter is the hybrid two-tier bucket. Local decrements carry no
// I/O; whenever a take drains the local bucket below half its burst,
// a batch of tokens is claimed from the shared KV counter so the
// global budget is respected across processes. With no remote tier
// configured it degrades to a plain local limiter.
type Limiter struct {
	table   *Table
	local   *Local
	remote  *Remote
	log     *slog.Logger
	metrics *telemetry.Metrics

	remoteWarn sync.Once
}

func NewLimiter(table *Table, remote *Remote, metrics *telemetry.Metrics) *Limiter {
	return &Limiter{
		table:   table,
		local:   NewLocal(),
		remote:  remote,
		log:     slog.Default().With("component", "ratelimit"),
		metrics: metrics,
	}
}

// Key builds the bucket key for a tenant/platform pair.
func Key(tenant, platform string) string { return tenant + ":" + platform }

// Acquire attempts to take cost tokens for the given tenant and
// platform. It never blocks: either the permit is granted, or the
// delay until the next token accrues is returned for the caller to
// requeue against.
func (l *Limiter) Acquire(ctx context.Context, tenant, platform string, cost int) (ok bool, retryAfter time.Duration) {
	limits := l.table.For(tenant)
	key := Key(tenant, platform)

	granted, wait, remaining := l.local.Take(key, limits, cost)
	if granted {
		if l.remote != nil && remaining < float64(limits.Burst)/2 {
			l.topUp(key, limits)
		}
		return true, 0
	}

	// Local bucket empty: the global budget may still hold tokens
	// another process released back.
	if l.remote != nil {
		claimed, err := l.remote.Claim(key, limits, float64(cost))
		if err != nil {
			l.warnRemote(err)
		} else if claimed >= float64(cost) {
			return true, 0
		} else if claimed > 0 {
			l.local.Add(key, limits, claimed)
		}
	}

	l.metrics.RateLimitDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.String("platform", platform),
	))
	return false, wait
}

// topUp claims a reservation batch for the local bucket. Failures are
// logged once; local limiting continues to protect the process.
func (l *Limiter) topUp(key string, limits Limits) {
	n := float64(limits.Burst) / 2
	claimed, err := l.remote.Claim(key, limits, n)
	if err != nil {
		l.warnRemote(err)
		return
	}
	if claimed > 0 {
		l.local.Add(key, limits, claimed)
	}
}

func (l *Limiter) warnRemote(err error) {
	l.remoteWarn.Do(func() {
		l.log.Warn("remote tier unavailable, continuing with local buckets only", "error", err)
	})
}
