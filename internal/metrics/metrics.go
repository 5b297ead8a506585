// Package metrics installs the global OpenTelemetry meter provider and
// serves the Prometheus scrape endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

const (
	defaultExportInterval = 15 * time.Second
	shutdownTimeout       = 5 * time.Second
)

// MetricProvider is the installed meter provider.
type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	Shutdown(ctx context.Context) error
}

// Options selects the metric readers.
type Options struct {
	ServiceName string
	// Registry receives the Prometheus collector. Nil disables the
	// Prometheus reader.
	Registry *prometheus.Registry
	// OTLPEndpoint pushes to a collector over gRPC when set.
	OTLPEndpoint   string
	OTLPHeaders    map[string]string
	Insecure       bool
	ExportInterval time.Duration
}

// NewMetricProvider builds the readers for opts and installs the provider
// globally.
func NewMetricProvider(ctx context.Context, opts Options) (MetricProvider, error) {
	var readers []sdkmetric.Option

	if opts.Registry != nil {
		exp, err := otelprom.New(otelprom.WithRegisterer(opts.Registry))
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(exp))
	}

	if opts.OTLPEndpoint != "" {
		grpcOpts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpointURL(opts.OTLPEndpoint),
			otlpmetricgrpc.WithHeaders(opts.OTLPHeaders),
		}
		if opts.Insecure {
			grpcOpts = append(grpcOpts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		interval := opts.ExportInterval
		if interval <= 0 {
			interval = defaultExportInterval
		}
		readers = append(readers, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))))
	}

	if len(readers) == 0 {
		return nil, errors.New("metrics: no reader configured")
	}

	readers = append(readers, sdkmetric.WithResource(
		resource.NewSchemaless(semconv.ServiceNameKey.String(opts.ServiceName))))

	mp := sdkmetric.NewMeterProvider(readers...)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// PrometheusServer serves /metrics from a registry.
type PrometheusServer struct {
	server *http.Server
}

// NewPrometheusServer creates a scrape server on port.
func NewPrometheusServer(port int, registry *prometheus.Registry) *PrometheusServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &PrometheusServer{server: &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Handler returns the scrape handler.
func (s *PrometheusServer) Handler() http.Handler {
	return s.server.Handler
}

// Run serves until ctx is done.
func (s *PrometheusServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
