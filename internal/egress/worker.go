package egress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/greentic-ai/greentic-messaging/internal/bus"
	"github.com/greentic-ai/greentic-messaging/internal/core"
	"github.com/greentic-ai/greentic-messaging/internal/dlq"
	"github.com/greentic-ai/greentic-messaging/internal/ratelimit"
	"github.com/greentic-ai/greentic-messaging/internal/registry"
	"github.com/greentic-ai/greentic-messaging/internal/telemetry"
)

const (
	maxAttempts  = 3
	fetchBatch   = 16
	fetchWait    = 5 * time.Second
	rateWaitCap  = 2 * time.Second
	retryBackoff = 250 * time.Millisecond
)

// Source yields deliveries from the work queue. bus.PullSource is the
// production implementation.
type Source interface {
	Fetch(ctx context.Context, batch int) ([]bus.Delivery, error)
	Close() error
}

// DeadLetter accepts records the worker gave up on.
type DeadLetter interface {
	Publish(ctx context.Context, rec *dlq.Record) error
}

// Worker drains the egress subject of one (tenant, platform) pair.
type Worker struct {
	tenant   string
	platform core.Platform

	source     Source
	limiter    *ratelimit.Limiter
	registry   *registry.Registry
	translator *Translator
	deliverer  Deliverer
	dead       DeadLetter
	metrics    *telemetry.Metrics
	log        *slog.Logger

	sleep func(ctx context.Context, d time.Duration) bool
}

func NewWorker(tenant string, platform core.Platform, source Source, limiter *ratelimit.Limiter, reg *registry.Registry, translator *Translator, deliverer Deliverer, dead DeadLetter, m *telemetry.Metrics) *Worker {
	return &Worker{
		tenant:     tenant,
		platform:   platform,
		source:     source,
		limiter:    limiter,
		registry:   reg,
		translator: translator,
		deliverer:  deliverer,
		dead:       dead,
		metrics:    m,
		log:        slog.Default().With("component", "egress", "tenant", tenant, "platform", platform),
		sleep:      sleepCtx,
	}
}

// Run fetches and processes until the context is canceled. In-flight
// messages finish; everything unacked redelivers after the ack wait.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("egress worker started")
	defer w.log.Info("egress worker stopped")

	for {
		if ctx.Err() != nil {
			return w.source.Close()
		}
		fetchCtx, cancel := context.WithTimeout(ctx, fetchWait)
		deliveries, err := w.source.Fetch(fetchCtx, fetchBatch)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return w.source.Close()
			}
			w.log.Warn("fetch failed", "error", err)
			if !w.sleep(ctx, time.Second) {
				return w.source.Close()
			}
			continue
		}
		for _, d := range deliveries {
			w.process(ctx, d)
		}
	}
}

func (w *Worker) process(ctx context.Context, d bus.Delivery) {
	var msg core.OutMessage
	if err := json.Unmarshal(d.Data, &msg); err != nil {
		w.deadLetter(ctx, &msg, d.Data, "decode", err, 0)
		w.ack(d)
		return
	}
	if err := msg.Validate(); err != nil {
		w.deadLetter(ctx, &msg, d.Data, "decode", err, 0)
		w.ack(d)
		return
	}

	if !w.acquire(ctx, d) {
		return
	}

	adapter, err := w.resolveAdapter(&msg)
	if err != nil {
		w.deadLetter(ctx, &msg, d.Data, "adapter", err, 0)
		w.ack(d)
		return
	}
	w.log.Debug("delivering", "msg_id", msg.MessageID(), "adapter", adapter.Name)

	payload, warnings, err := w.translator.Translate(ctx, &msg)
	if err != nil {
		w.deadLetter(ctx, &msg, d.Data, "render", err, 0)
		w.ack(d)
		return
	}
	if len(warnings) > 0 {
		w.log.Debug("render warnings", "msg_id", msg.MessageID(), "warnings", warnings)
	}

	w.deliver(ctx, d, &msg, payload)
}

// acquire takes a delivery permit, briefly waiting out short limits
// and redelivering on long ones.
func (w *Worker) acquire(ctx context.Context, d bus.Delivery) bool {
	ok, retryAfter := w.limiter.Acquire(ctx, w.tenant, string(w.platform), 1)
	if ok {
		return true
	}
	if retryAfter <= rateWaitCap {
		if !w.sleep(ctx, retryAfter) {
			w.nak(d, retryAfter)
			return false
		}
		if ok, retryAfter = w.limiter.Acquire(ctx, w.tenant, string(w.platform), 1); ok {
			return true
		}
	}
	w.nak(d, retryAfter)
	return false
}

func (w *Worker) resolveAdapter(msg *core.OutMessage) (*registry.AdapterDescriptor, error) {
	if name, ok := msg.Meta["adapter"].(string); ok && name != "" {
		adapter := w.registry.Get(name)
		if adapter == nil {
			return nil, &core.ErrAdapterNotFound{Name: name, Platform: msg.Platform}
		}
		if err := registry.RequireEgress(adapter); err != nil {
			return nil, err
		}
		return adapter, nil
	}
	return w.registry.DefaultForPlatform(msg.Platform)
}

func (w *Worker) deliver(ctx context.Context, d bus.Delivery, msg *core.OutMessage, payload json.RawMessage) {
	bo := &backoff.Backoff{Min: retryBackoff, Max: 2 * time.Second, Jitter: true}

	var verdict Classification
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		res, err := w.deliverer.Deliver(ctx, msg, payload)
		verdict = Classify(res.Status, res.Header, err)

		switch verdict.Outcome {
		case OutcomeOK:
			w.observe(ctx, "ok", time.Since(start))
			w.ack(d)
			return
		case OutcomeRetryAfter:
			w.log.Info("platform throttled", "msg_id", msg.MessageID(), "retry_after", verdict.RetryAfter)
			w.nak(d, verdict.RetryAfter)
			return
		case OutcomeTerminal:
			w.observe(ctx, "client_error", time.Since(start))
			w.deadLetter(ctx, msg, d.Data, verdict.Code, deliveryError(res.Status, err), attempt)
			w.ack(d)
			return
		case OutcomeRetryable:
			if attempt == maxAttempts {
				break
			}
			w.countRetry(ctx)
			w.log.Warn("delivery failed, retrying", "msg_id", msg.MessageID(), "attempt", attempt, "status", res.Status, "error", err)
			if !w.sleep(ctx, bo.Duration()) {
				w.nak(d, 0)
				return
			}
		}
	}

	w.observe(ctx, "exhausted", 0)
	w.deadLetter(ctx, msg, d.Data, verdict.Code, errors.New("delivery attempts exhausted"), maxAttempts)
	w.ack(d)
}

func (w *Worker) deadLetter(ctx context.Context, msg *core.OutMessage, raw []byte, code string, cause error, retries int) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	rec := &dlq.Record{
		Tenant:   w.tenant,
		Stage:    dlq.StageOut,
		Platform: string(w.platform),
		MsgID:    msg.MessageID(),
		Retries:  retries,
		Error:    dlq.ErrorInfo{Code: code, Message: message, Stage: "egress"},
		Envelope: raw,
	}
	if err := w.dead.Publish(ctx, rec); err != nil {
		w.log.Error("dead letter publish failed", "msg_id", rec.MsgID, "error", err)
		return
	}
	if w.metrics != nil {
		w.metrics.DLQPublished.Add(ctx, 1, metric.WithAttributes(
			attribute.String("platform", string(w.platform)),
			attribute.String("code", code),
		))
	}
}

func (w *Worker) ack(d bus.Delivery) {
	if err := d.Ack(); err != nil {
		w.log.Warn("ack failed", "error", err)
	}
}

func (w *Worker) nak(d bus.Delivery, delay time.Duration) {
	if err := d.Nak(delay); err != nil {
		w.log.Warn("nak failed", "error", err)
	}
}

func (w *Worker) observe(ctx context.Context, outcome string, latency time.Duration) {
	if w.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("platform", string(w.platform)),
		attribute.String("outcome", outcome),
	)
	w.metrics.EgressDelivered.Add(ctx, 1, attrs)
	if latency > 0 {
		w.metrics.DeliverySeconds.Record(ctx, latency.Seconds(), attrs)
	}
}

func (w *Worker) countRetry(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	w.metrics.EgressRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", string(w.platform)),
	))
}

func deliveryError(status int, err error) error {
	if err != nil {
		return err
	}
	return &core.DomainError{Code: core.ErrorCodePermanent, Message: fmt.Sprintf("platform status %d", status)}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
