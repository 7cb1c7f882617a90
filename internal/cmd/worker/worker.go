// Package worker implements the egress runtime: it drains per-tenant
// pull consumers, renders cards for each platform, and posts the
// translated payloads to the platform delivery endpoints.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/greentic-ai/greentic-messaging/internal/bus"
	"github.com/greentic-ai/greentic-messaging/internal/cards"
	"github.com/greentic-ai/greentic-messaging/internal/cards/render"
	"github.com/greentic-ai/greentic-messaging/internal/collab"
	"github.com/greentic-ai/greentic-messaging/internal/core"
	"github.com/greentic-ai/greentic-messaging/internal/dlq"
	"github.com/greentic-ai/greentic-messaging/internal/egress"
	"github.com/greentic-ai/greentic-messaging/internal/ratelimit"
	"github.com/greentic-ai/greentic-messaging/internal/registry"
	"github.com/greentic-ai/greentic-messaging/internal/telemetry"
	"github.com/greentic-ai/greentic-messaging/internal/transport"
	transporthttp "github.com/greentic-ai/greentic-messaging/internal/transport/http"
)

const (
	// rateBucket is the KV bucket tenants share for cross-replica
	// token claims. The short TTL lets idle keys age out.
	rateBucket    = "greentic-msg-rate"
	rateBucketTTL = time.Minute

	collabTimeout  = 10 * time.Second
	deliverTimeout = 15 * time.Second
)

// Config holds the runtime parameters for a Worker.
type Config struct {
	BusURL          string
	Bind            string
	Tenant          string
	Platforms       []string
	MaxAckPending   int
	PacksRoot       string
	RPS             int
	Burst           int
	TenantOverrides string
	Endpoints       string
	OAuthURL        string
	SecretsURL      string
	AppLinkSecret   string
	AppLinkAllow    []string
}

// Worker runs one egress pipeline per platform for a single tenant,
// plus a small HTTP listener for metrics and health.
type Worker struct {
	log *slog.Logger
}

func New() *Worker {
	return &Worker{log: slog.Default().With("component", "egress-worker")}
}

// Run connects to the bus, builds the render and delivery pipeline,
// and drains the tenant's consumers until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, cfg Config) error {
	if cfg.Tenant == "" {
		return errors.New("egress tenant is required; set --egress-tenant or GREENTIC_EGRESS_TENANT")
	}
	platforms, err := resolvePlatforms(cfg.Platforms)
	if err != nil {
		return err
	}

	conn, err := bus.Connect(cfg.BusURL)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	defer conn.Close()

	if err := conn.EnsureStreams(); err != nil {
		return fmt.Errorf("ensure streams: %w", err)
	}

	metricsHandler, err := telemetry.Setup()
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	reg, err := loadPacks(cfg.PacksRoot)
	if err != nil {
		return fmt.Errorf("load adapter packs: %w", err)
	}

	overrides, err := ratelimit.ParseOverrides(cfg.TenantOverrides)
	if err != nil {
		return fmt.Errorf("parse tenant overrides: %w", err)
	}
	table := ratelimit.NewTable(ratelimit.Limits{RPS: float64(cfg.RPS), Burst: cfg.Burst}, overrides)
	rateKV, err := conn.KeyValue(rateBucket, rateBucketTTL)
	if err != nil {
		return fmt.Errorf("rate-limit bucket: %w", err)
	}
	limiter := ratelimit.NewLimiter(table, ratelimit.NewRemote(rateKV), metrics)

	var secrets collab.Secrets
	if cfg.SecretsURL != "" {
		secrets = collab.NewSecrets(cfg.SecretsURL, collabTimeout)
	}
	var oauth cards.OAuthStarter
	if cfg.OAuthURL != "" {
		oauth = collab.CardBroker{OAuth: collab.NewOAuth(cfg.OAuthURL, collabTimeout)}
	}

	policy := &render.URLPolicy{AllowPrefixes: cfg.AppLinkAllow}
	engine := cards.NewEngine([]cards.Renderer{
		render.Telegram{Policy: policy},
		render.WhatsApp{Policy: policy},
		render.Slack{Policy: policy},
		render.Webex{Policy: policy},
		render.Teams{Policy: policy},
		render.WebChat{Policy: policy},
	}, oauth, metrics)
	engine.SetAppLinkSecret(cfg.AppLinkSecret)

	endpoints, err := egress.ParseEndpoints(cfg.Endpoints)
	if err != nil {
		return err
	}
	deliverer := egress.NewHTTPDeliverer(endpoints, secrets, deliverTimeout)
	translator := egress.NewTranslator(engine)
	dead := dlq.NewPublisher(conn)

	listeners := make([]transport.Listener, 0, len(platforms)+1)
	for _, platform := range platforms {
		source, err := conn.PullSource(cfg.Tenant, string(platform), cfg.MaxAckPending)
		if err != nil {
			return fmt.Errorf("consumer %s/%s: %w", cfg.Tenant, platform, err)
		}
		wk := egress.NewWorker(cfg.Tenant, platform, source, limiter, reg, translator, deliverer, dead, metrics)
		listeners = append(listeners, transport.ListenerFunc(wk.Run))
	}

	httpSrv, err := transporthttp.NewServer(
		transporthttp.WithAddress(cfg.Bind),
		transporthttp.WithMount(func(mux *http.ServeMux) error {
			mux.Handle("/metrics", metricsHandler)
			mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
				rw.WriteHeader(http.StatusOK)
			})
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}
	listeners = append(listeners, httpSrv)

	w.log.Info("draining egress consumers",
		"tenant", cfg.Tenant,
		"platforms", platforms,
		"max_ack_pending", cfg.MaxAckPending,
	)
	return transport.Serve(ctx, listeners...)
}

// resolvePlatforms maps the configured names to platforms; an empty
// list means every supported platform.
func resolvePlatforms(names []string) ([]core.Platform, error) {
	if len(names) == 0 {
		return core.Platforms, nil
	}
	out := make([]core.Platform, 0, len(names))
	for _, name := range names {
		p := core.Platform(name)
		if !p.Valid() {
			return nil, fmt.Errorf("unsupported platform %q", name)
		}
		out = append(out, p)
	}
	return out, nil
}

func loadPacks(root string) (*registry.Registry, error) {
	reg, err := registry.LoadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return registry.New(), nil
	}
	return reg, err
}
