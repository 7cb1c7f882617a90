// Package ingress exposes the inbound webhook surface: one route per
// platform, verified, rate limited, deduplicated, and published to
// the ingress stream.
package ingress

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/greentic-ai/greentic-messaging/internal/core"
	"github.com/greentic-ai/greentic-messaging/internal/idempotency"
	"github.com/greentic-ai/greentic-messaging/internal/subjects"
	"github.com/greentic-ai/greentic-messaging/internal/telemetry"
)

const (
	maxBodyBytes    = 1 << 20
	publishAttempts = 3
)

// Publisher is the slice of the bus the ingress handler needs.
type Publisher interface {
	PublishRetry(ctx context.Context, subject string, data []byte, attempts int) error
}

// Options configures the ingress HTTP surface.
type Options struct {
	Env            string
	DefaultTeam    string
	Verify         VerifyConfig
	IPLimiter      *IPLimiter
	AllowedOrigins []string
}

// Handler owns the webhook routes for every platform.
type Handler struct {
	opts    Options
	bus     Publisher
	guard   *idempotency.Guard
	metrics *telemetry.Metrics
	log     *slog.Logger
}

func NewHandler(opts Options, bus Publisher, guard *idempotency.Guard, m *telemetry.Metrics) *Handler {
	if opts.DefaultTeam == "" {
		opts.DefaultTeam = "default"
	}
	return &Handler{
		opts:    opts,
		bus:     bus,
		guard:   guard,
		metrics: m,
		log:     slog.Default().With("component", "ingress"),
	}
}

// Routes builds the chi router with the fixed middleware order:
// request id, signature verification, source-IP rate limiting.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Verify(h.opts.Verify))
	if h.opts.IPLimiter != nil {
		r.Use(h.opts.IPLimiter.Middleware)
	}

	for _, p := range core.Platforms {
		platform := p
		route := "/ingress/" + string(platform) + "/{tenant}"
		handler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			h.handle(w, req, platform)
		})
		if platform == core.PlatformWebChat {
			c := cors.New(cors.Options{
				AllowedOrigins: h.opts.AllowedOrigins,
				AllowedMethods: []string{http.MethodPost, http.MethodOptions},
				AllowedHeaders: []string{"*"},
			})
			r.Method(http.MethodPost, route, c.Handler(handler))
			r.Method(http.MethodOptions, route, c.Handler(handler))
		} else {
			r.Method(http.MethodPost, route, handler)
		}
	}

	// Meta webhook subscription handshake.
	r.Get("/ingress/"+string(core.PlatformWhatsApp)+"/{tenant}", h.whatsappChallenge)

	return r
}

func (h *Handler) handle(w http.ResponseWriter, req *http.Request, platform core.Platform) {
	tenant := chi.URLParam(req, "tenant")
	if tenant == "" {
		writeError(w, req, &core.DomainError{Code: core.ErrorCodeValidation, Message: "missing tenant"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		writeError(w, req, &core.DomainError{Code: core.ErrorCodeValidation, Message: "unreadable body", Err: err})
		return
	}

	// Slack's endpoint ownership handshake short-circuits the
	// pipeline.
	if platform == core.PlatformSlack {
		if challenge, ok := slackChallenge(body); ok {
			writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
			return
		}
	}

	env, ok, err := normalize(platform, body)
	if err != nil {
		h.count(req.Context(), platform, "invalid")
		writeError(w, req, err)
		return
	}
	if !ok {
		// Recognized but non-message payloads are acknowledged
		// without publishing.
		h.count(req.Context(), platform, "skipped")
		writeAccepted(w, req)
		return
	}
	env.Tenant = tenant

	key := idempotency.Key(tenant, platform, env.ChatID, env.MsgID)
	if !h.guard.ShouldProcess(req.Context(), key) {
		h.count(req.Context(), platform, "duplicate")
		writeAccepted(w, req)
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		writeError(w, req, &core.DomainError{Code: core.ErrorCodeInternal, Message: "envelope marshal", Err: err})
		return
	}
	subject := subjects.Ingress(h.opts.Env, tenant, h.opts.DefaultTeam, string(platform))
	if err := h.bus.PublishRetry(req.Context(), subject, data, publishAttempts); err != nil {
		h.count(req.Context(), platform, "publish_failed")
		h.log.Error("ingress publish failed", "subject", subject, "error", err)
		writeError(w, req, &core.DomainError{Code: core.ErrorCodeBus, Message: "event not accepted", Err: err})
		return
	}

	h.count(req.Context(), platform, "accepted")
	writeAccepted(w, req)
}

func (h *Handler) whatsappChallenge(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.opts.Verify.BearerToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	writeError(w, req, &core.DomainError{Code: core.ErrorCodeAuthentication, Message: "verification failed"})
}

func (h *Handler) count(ctx context.Context, platform core.Platform, status string) {
	if h.metrics == nil {
		return
	}
	h.metrics.IngressRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", string(platform)),
		attribute.String("status", status),
	))
}
