// Package httpclient is the instrumented HTTP client used by every outbound
// JSON integration: OTEL transport tracing, request counters and latency
// histograms, and optional body capture on spans.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultRequestTimeout  = 10 * time.Second
	defaultDialKeepAlive   = 15 * time.Second
	defaultMaxConnsPerHost = 8
	defaultIdleConnTimeout = 90 * time.Second

	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes = 4 << 20

	instrumentationName = "httpclient"
)

// TraceOption selects which bodies are attached to spans.
type TraceOption string

const (
	TraceRequest  TraceOption = "request"
	TraceResponse TraceOption = "response"
)

// Client builds requests against one upstream.
type Client interface {
	NewRequest() Request
	NewRequestWithOptions(opts ...RequestOption) Request
}

type clientMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// InstrumentedClient implements Client.
type InstrumentedClient struct {
	http          *http.Client
	provider      string
	baseURL       string
	headers       map[string]string
	secretHeaders map[string]bool
	tracer        trace.Tracer
	traceRequest  bool
	traceResponse bool
	metrics       clientMetrics
}

// ClientOption configures an InstrumentedClient.
type ClientOption func(*InstrumentedClient)

// WithProviderName labels spans and metrics with the upstream's name.
func WithProviderName(name string) ClientOption {
	return func(c *InstrumentedClient) { c.provider = name }
}

// WithBaseURL resolves relative request paths against url.
func WithBaseURL(url string) ClientOption {
	return func(c *InstrumentedClient) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithRequestTimeout bounds each request end to end.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *InstrumentedClient) { c.http.Timeout = d }
}

// WithRoundTripper replaces the default transport. Tests use it to point
// at a stub.
func WithRoundTripper(rt http.RoundTripper) ClientOption {
	return func(c *InstrumentedClient) { c.http.Transport = rt }
}

// WithHeaders sets headers sent on every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *InstrumentedClient) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithSecretHeaders marks headers whose values must never reach a span.
func WithSecretHeaders(names ...string) ClientOption {
	return func(c *InstrumentedClient) {
		for _, n := range names {
			c.secretHeaders[http.CanonicalHeaderKey(n)] = true
		}
	}
}

// WithTraceOptions sets the tracer and the bodies to capture.
func WithTraceOptions(tracer trace.Tracer, opts ...TraceOption) ClientOption {
	return func(c *InstrumentedClient) {
		c.tracer = tracer
		for _, o := range opts {
			switch o {
			case TraceRequest:
				c.traceRequest = true
			case TraceResponse:
				c.traceResponse = true
			}
		}
	}
}

// NewInstrumentedClient creates a client. The transport is wrapped with
// otelhttp after options are applied.
func NewInstrumentedClient(opts ...ClientOption) (Client, error) {
	c := &InstrumentedClient{
		http:          &http.Client{Timeout: defaultRequestTimeout},
		provider:      "default",
		headers:       make(map[string]string),
		secretHeaders: make(map[string]bool),
	}
	for _, o := range opts {
		o(c)
	}

	if c.http.Transport == nil {
		c.http.Transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{KeepAlive: defaultDialKeepAlive}).DialContext,
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			MaxIdleConnsPerHost: defaultMaxConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
		}
	}
	c.http.Transport = otelhttp.NewTransport(c.http.Transport,
		otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
			return otelhttptrace.NewClientTrace(ctx)
		}),
	)
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}

	meter := otel.Meter(instrumentationName,
		metric.WithInstrumentationAttributes(attribute.String("provider", c.provider)))
	var err error
	c.metrics.requests, err = meter.Int64Counter("http_client_requests_total",
		metric.WithDescription("Outbound HTTP requests"))
	if err != nil {
		return nil, err
	}
	c.metrics.latency, err = meter.Float64Histogram("http_client_request_duration_ms",
		metric.WithDescription("Outbound HTTP request latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *InstrumentedClient) NewRequest() Request {
	return c.NewRequestWithOptions()
}

func (c *InstrumentedClient) NewRequestWithOptions(opts ...RequestOption) Request {
	r := &request{
		client:  c,
		headers: make(map[string]string, len(c.headers)),
	}
	for k, v := range c.headers {
		r.headers[k] = v
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (c *InstrumentedClient) resolve(path string) string {
	if c.baseURL == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}
