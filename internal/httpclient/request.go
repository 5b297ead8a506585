package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Request is a single-use request builder.
type Request interface {
	Get(ctx context.Context, path string) (*Response, error)
	Post(ctx context.Context, path string) (*Response, error)

	SetBody(body any) Request
	SetHeader(key, value string) Request
	SetQueryParam(key, value string) Request
	SetQueryParams(params map[string]string) Request
}

// ResponseErrorHandler maps a status and body to an error. Returning nil
// accepts the response.
type ResponseErrorHandler func(statusCode int, body []byte) error

// Label is an extra metric attribute.
type Label struct {
	Key   string
	Value string
}

// NewLabel creates a Label.
func NewLabel(key, value string) *Label {
	return &Label{Key: key, Value: value}
}

// RequestOption configures one request.
type RequestOption func(*request)

// WithLabels adds metric attributes to the request.
func WithLabels(labels ...*Label) RequestOption {
	return func(r *request) { r.labels = append(r.labels, labels...) }
}

// WithResponseErrorHandler installs a status check run after the body is read.
func WithResponseErrorHandler(h ResponseErrorHandler) RequestOption {
	return func(r *request) { r.onResponse = h }
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	body       []byte
}

// Body returns the response body.
func (r *Response) Body() []byte { return r.body }

// IsError reports a status of 400 or above.
func (r *Response) IsError() bool { return r.StatusCode >= http.StatusBadRequest }

type request struct {
	client     *InstrumentedClient
	headers    map[string]string
	query      url.Values
	body       any
	labels     []*Label
	onResponse ResponseErrorHandler
}

func (r *request) Get(ctx context.Context, path string) (*Response, error) {
	return r.do(ctx, http.MethodGet, path)
}

func (r *request) Post(ctx context.Context, path string) (*Response, error) {
	return r.do(ctx, http.MethodPost, path)
}

func (r *request) SetBody(body any) Request {
	r.body = body
	return r
}

func (r *request) SetHeader(key, value string) Request {
	r.headers[key] = value
	return r
}

func (r *request) SetQueryParam(key, value string) Request {
	if r.query == nil {
		r.query = url.Values{}
	}
	r.query.Set(key, value)
	return r
}

func (r *request) SetQueryParams(params map[string]string) Request {
	for k, v := range params {
		r.SetQueryParam(k, v)
	}
	return r
}

func (r *request) do(ctx context.Context, method, path string) (*Response, error) {
	c := r.client
	target := c.resolve(path)
	if len(r.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + r.query.Encode()
	}

	ctx, span := c.tracer.Start(ctx, "http."+strings.ToLower(method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
			attribute.String("provider", c.provider),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := r.send(ctx, span, method, target)
	ok := err == nil && !resp.IsError()
	r.record(ctx, start, ok)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (r *request) send(ctx context.Context, span trace.Span, method, target string) (*Response, error) {
	c := r.client

	payload, err := r.encodeBody()
	if err != nil {
		return nil, err
	}
	if payload != nil && c.traceRequest {
		span.AddEvent("request.body", trace.WithAttributes(attribute.String("http.request_body", string(payload))))
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	span.SetAttributes(r.headerAttributes(req.Header)...)

	httpResp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			span.SetAttributes(attribute.Bool("http.timeout", true))
		}
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", httpResp.StatusCode))
	if c.traceResponse {
		span.AddEvent("response.body", trace.WithAttributes(attribute.String("http.response_body", string(raw))))
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, body: raw}
	if r.onResponse != nil {
		if err := r.onResponse(resp.StatusCode, raw); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func (r *request) encodeBody() ([]byte, error) {
	switch b := r.body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		out, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		if _, ok := r.headers["Content-Type"]; !ok {
			r.headers["Content-Type"] = "application/json"
		}
		return out, nil
	}
}

// headerAttributes records sent headers with secret values masked.
func (r *request) headerAttributes(h http.Header) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(h))
	for k, v := range h {
		val := strings.Join(v, ",")
		if r.client.secretHeaders[k] {
			val = "*****"
		}
		attrs = append(attrs, attribute.String("http.request.header."+strings.ToLower(k), val))
	}
	return attrs
}

func (r *request) record(ctx context.Context, start time.Time, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", r.client.provider),
		attribute.Bool("success", success),
	}
	for _, l := range r.labels {
		attrs = append(attrs, attribute.String(l.Key, l.Value))
	}
	set := metric.WithAttributes(attrs...)
	r.client.metrics.requests.Add(ctx, 1, set)
	r.client.metrics.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, set)
}
