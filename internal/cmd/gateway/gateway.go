// Package gateway implements the webhook-facing runtime: it accepts
// platform callbacks, normalizes them into envelopes, and publishes
// them onto the JetStream ingress stream.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/greentic-ai/greentic-messaging/internal/bus"
	"github.com/greentic-ai/greentic-messaging/internal/core"
	"github.com/greentic-ai/greentic-messaging/internal/idempotency"
	"github.com/greentic-ai/greentic-messaging/internal/ingress"
	"github.com/greentic-ai/greentic-messaging/internal/ratelimit"
	"github.com/greentic-ai/greentic-messaging/internal/registry"
	"github.com/greentic-ai/greentic-messaging/internal/telemetry"
	"github.com/greentic-ai/greentic-messaging/internal/transport"
	transporthttp "github.com/greentic-ai/greentic-messaging/internal/transport/http"
)

// Config holds the runtime parameters for a Gateway.
type Config struct {
	Env                  string
	BusURL               string
	Bind                 string
	HMACSecret           string
	HMACHeader           string
	BearerToken          string
	AllowedOrigins       []string
	IPRPS                int
	IPBurst              int
	IdempotencyNamespace string
	IdempotencyTTL       time.Duration
	PacksRoot            string
	DefaultTeam          string
}

// Gateway binds the ingress HTTP surface to the message bus and runs
// it under the shared transport lifecycle.
type Gateway struct {
	log *slog.Logger
}

func New() *Gateway {
	return &Gateway{log: slog.Default().With("component", "gateway")}
}

// Run connects to the bus, wires the ingress pipeline, and serves
// until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context, cfg Config) error {
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

	kv, err := conn.KeyValue(cfg.IdempotencyNamespace, cfg.IdempotencyTTL)
	guard := idempotency.NewGuard(g.idempotencyStore(kv, err), cfg.IdempotencyTTL, metrics)

	reg, err := loadPacks(cfg.PacksRoot)
	if err != nil {
		return fmt.Errorf("load adapter packs: %w", err)
	}
	for _, p := range core.Platforms {
		if _, err := reg.DefaultForPlatform(p); err != nil {
			g.log.Warn("no adapter pack installed", "platform", p)
		}
	}

	var ipLimiter *ingress.IPLimiter
	if cfg.IPRPS > 0 {
		ipLimiter = ingress.NewIPLimiter(ratelimit.Limits{RPS: float64(cfg.IPRPS), Burst: cfg.IPBurst})
	}

	handler := ingress.NewHandler(ingress.Options{
		Env:         cfg.Env,
		DefaultTeam: cfg.DefaultTeam,
		Verify: ingress.VerifyConfig{
			HMACSecret:  cfg.HMACSecret,
			HMACHeader:  cfg.HMACHeader,
			BearerToken: cfg.BearerToken,
		},
		IPLimiter:      ipLimiter,
		AllowedOrigins: cfg.AllowedOrigins,
	}, conn, guard, metrics)

	httpSrv, err := transporthttp.NewServer(
		transporthttp.WithAddress(cfg.Bind),
		transporthttp.WithMount(func(mux *http.ServeMux) error {
			mux.Handle("/ingress/", handler.Routes())
			mux.Handle("/metrics", metricsHandler)
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	return transport.Serve(ctx, httpSrv)
}

// idempotencyStore returns the KV-backed store, falling back to the
// process-local store with a warning when the bucket is unreachable.
// Deduplication then only covers this replica, but ingestion stays up.
func (g *Gateway) idempotencyStore(kv nats.KeyValue, err error) idempotency.Store {
	if err != nil {
		g.log.Warn("idempotency bucket unreachable, using in-memory store", "error", err)
		return idempotency.NewMemory()
	}
	return idempotency.NewKVStore(kv)
}

// loadPacks builds the adapter registry. A missing pack directory is
// an empty registry, not an error, so fresh deployments start clean.
func loadPacks(root string) (*registry.Registry, error) {
	reg, err := registry.LoadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return registry.New(), nil
	}
	return reg, err
}
