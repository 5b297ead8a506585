// Package apiclient is the shared HTTP plumbing of the swap aggregator
// routes: an instrumented client behind a rate limiter and a breaker.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/circuitbreaker"
	"github.com/fd1az/perp-router/internal/httpclient"
	"github.com/fd1az/perp-router/internal/ratelimit"
)

const defaultTimeout = 8 * time.Second

// Config configures a Client.
type Config struct {
	Name         string
	BaseURL      string
	Headers      map[string]string
	Timeout      time.Duration
	RateLimitRPM int
}

// Client sends JSON requests to one aggregator API.
type Client struct {
	name    string
	http    httpclient.Client
	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[*httpclient.Response]
}

// New creates a Client. RateLimitRPM <= 0 disables limiting.
func New(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	headers := map[string]string{"Accept": "application/json"}
	secret := make([]string, 0, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
		secret = append(secret, k)
	}

	hc, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName(cfg.Name),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(timeout),
		httpclient.WithTraceOptions(otel.Tracer(cfg.Name), httpclient.TraceRequest, httpclient.TraceResponse),
		httpclient.WithHeaders(headers),
		httpclient.WithSecretHeaders(secret...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	c := &Client{
		name: cfg.Name,
		http: hc,
		cb:   circuitbreaker.New[*httpclient.Response](circuitbreaker.DefaultConfig(cfg.Name + "-api")),
	}
	if cfg.RateLimitRPM > 0 {
		c.limiter = ratelimit.New(cfg.RateLimitRPM)
	}
	return c, nil
}

// Get issues a GET with query params and decodes the body into result.
func (c *Client) Get(ctx context.Context, endpoint, path string, query map[string]string, result any) error {
	return c.do(ctx, endpoint, func(req httpclient.Request) (*httpclient.Response, error) {
		return req.SetQueryParams(query).Get(ctx, path)
	}, result)
}

// Post issues a JSON POST and decodes the body into result.
func (c *Client) Post(ctx context.Context, endpoint, path string, query map[string]string, body, result any) error {
	return c.do(ctx, endpoint, func(req httpclient.Request) (*httpclient.Response, error) {
		return req.SetQueryParams(query).SetBody(body).Post(ctx, path)
	}, result)
}

func (c *Client) do(ctx context.Context, endpoint string, send func(httpclient.Request) (*httpclient.Response, error), result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperror.New(apperror.CodeRateLimitExceeded,
				apperror.WithCause(err),
				apperror.WithContext(c.name))
		}
	}

	resp, err := c.cb.Execute(func() (*httpclient.Response, error) {
		req := c.http.NewRequestWithOptions(
			httpclient.WithLabels(httpclient.NewLabel("endpoint", endpoint)),
			httpclient.WithResponseErrorHandler(statusErrorHandler),
		)
		return send(req)
	})
	if err != nil {
		if apperror.GetCode(err) == apperror.CodeCircuitOpen || apperror.GetCode(err) == apperror.CodeCircuitHalfOpen {
			return err
		}
		return apperror.New(apperror.CodeExternalServiceError,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s %s: %v", c.name, endpoint, err)))
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return apperror.New(apperror.CodeInvalidFormat,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s %s response", c.name, endpoint)))
	}
	return nil
}

// APIError is a non-2xx answer from an aggregator.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// statusErrorHandler extracts the message field the aggregators use.
func statusErrorHandler(statusCode int, body []byte) error {
	if statusCode < 400 {
		return nil
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := string(body)
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Error != "":
			msg = payload.Error
		case payload.Message != "":
			msg = payload.Message
		}
	}
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return &APIError{StatusCode: statusCode, Message: msg}
}
