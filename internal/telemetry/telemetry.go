// Package telemetry wires the OpenTelemetry meter provider to a
// Prometheus exporter and bundles the instrument set shared by the
// pipeline components.
package telemetry

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "greentic-messaging"

// Setup installs a Prometheus-backed meter provider and returns the
// handler to mount at /metrics.
func Setup() (http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)))
	return promhttp.Handler(), nil
}

// Metrics is the instrument set recorded across ingress, egress, and
// the card engine. Construction works against the global meter
// provider, so tests get no-op instruments without any setup.
type Metrics struct {
	IngressRequests metric.Int64Counter
	IdempotencyHits metric.Int64Counter
	EgressDelivered metric.Int64Counter
	EgressRetries   metric.Int64Counter
	DLQPublished    metric.Int64Counter
	RateLimitDenied metric.Int64Counter
	RenderWarnings  metric.Int64Counter
	DeliverySeconds metric.Float64Histogram
}

// NewMetrics creates the instrument set on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	m := &Metrics{}
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			errs = append(errs, err)
		}
		return c
	}

	m.IngressRequests = counter("ingress_requests_total", "Inbound webhook requests by platform and status")
	m.IdempotencyHits = counter("idempotency_hits_total", "Duplicate inbound events suppressed")
	m.EgressDelivered = counter("egress_delivered_total", "Outbound deliveries by platform and outcome")
	m.EgressRetries = counter("egress_retries_total", "Outbound delivery retries")
	m.DLQPublished = counter("dlq_published_total", "Records written to the dead-letter stream")
	m.RateLimitDenied = counter("ratelimit_denied_total", "Permit acquisitions denied")
	m.RenderWarnings = counter("card_render_warnings_total", "Card renderer downgrade warnings")

	hist, err := meter.Float64Histogram("egress_delivery_seconds",
		metric.WithDescription("Latency of outbound platform API calls"),
		metric.WithUnit("s"))
	if err != nil {
		errs = append(errs, err)
	}
	m.DeliverySeconds = hist

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}
