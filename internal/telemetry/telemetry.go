package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

const ServiceName = "murmur"

// Telemetry owns the process meter provider and its scrape handler
type Telemetry struct {
	provider metric.MeterProvider
	handler  http.Handler
	shutdown func(context.Context) error
}

// Setup builds a meter provider exported through a private Prometheus registry.
// When enabled is false every instrument is a no-op and Handler returns nil.
func Setup(enabled bool, version string) (*Telemetry, error) {
	if !enabled {
		slog.Debug("metrics disabled")
		return &Telemetry{
			provider: noop.NewMeterProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
			attribute.String("service.instance", "local"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	slog.Info("telemetry initialized", "exporter", "prometheus")
	return &Telemetry{
		provider: provider,
		handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		shutdown: provider.Shutdown,
	}, nil
}

// Meter returns a named meter from the provider
func (t *Telemetry) Meter(name string) metric.Meter {
	return t.provider.Meter(name)
}

// Handler serves the Prometheus exposition, or nil when metrics are disabled
func (t *Telemetry) Handler() http.Handler {
	return t.handler
}

// Shutdown flushes and releases the provider
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}
