// Package orderapi asks the order-construction backend for vault calldata.
package orderapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/perp-router/business/execution/app"
	"github.com/fd1az/perp-router/business/execution/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/circuitbreaker"
	"github.com/fd1az/perp-router/internal/httpclient"
	"github.com/fd1az/perp-router/internal/logger"
)

const (
	providerName   = "order-api"
	defaultTimeout = 10 * time.Second

	openPath  = "/orders/open"
	closePath = "/orders/close"
)

var _ app.OrderBuilder = (*Client)(nil)

// Config configures the Client.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	DefaultSlippage decimal.Decimal
}

// Client is the HTTP adapter for the order-construction backend.
type Client struct {
	http     httpclient.Client
	cb       *circuitbreaker.CircuitBreaker[*httpclient.Response]
	slippage decimal.Decimal
	logger   logger.LoggerInterface
	tracer   trace.Tracer
}

// payload is the backend's answer for both open and close.
type payload struct {
	Calldata     string `json:"calldata"`
	VaultAddress string `json:"vaultAddress"`
	Value        string `json:"value,omitempty"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// New creates a Client.
func New(cfg Config, log logger.LoggerInterface) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("order_api.base_url is empty"))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	hc, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName(providerName),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(timeout),
		httpclient.WithTraceOptions(otel.Tracer(providerName), httpclient.TraceRequest, httpclient.TraceResponse),
		httpclient.WithHeaders(map[string]string{"Accept": "application/json"}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Client{
		http:     hc,
		cb:       circuitbreaker.New[*httpclient.Response](circuitbreaker.DefaultConfig(providerName)),
		slippage: cfg.DefaultSlippage,
		logger:   log,
		tracer:   otel.Tracer(providerName),
	}, nil
}

// BuildOrder requests calldata opening the position described by intent.
func (c *Client) BuildOrder(ctx context.Context, intent domain.OrderIntent) (domain.OrderPayload, error) {
	if intent.Slippage.IsZero() {
		intent.Slippage = c.slippage
	}
	return c.build(ctx, openPath, intent.Pair, intent)
}

// BuildClose requests calldata closing the position at intent.PositionIndex.
func (c *Client) BuildClose(ctx context.Context, intent domain.CloseIntent) (domain.OrderPayload, error) {
	if intent.Slippage.IsZero() {
		intent.Slippage = c.slippage
	}
	return c.build(ctx, closePath, intent.Pair, intent)
}

func (c *Client) build(ctx context.Context, path, pair string, body any) (domain.OrderPayload, error) {
	ctx, span := c.tracer.Start(ctx, "orderapi.build",
		trace.WithAttributes(
			attribute.String("path", path),
			attribute.String("pair", pair),
		),
	)
	defer span.End()

	resp, err := c.cb.Execute(func() (*httpclient.Response, error) {
		return c.http.NewRequestWithOptions(
			httpclient.WithLabels(httpclient.NewLabel("endpoint", strings.TrimPrefix(path, "/"))),
			httpclient.WithResponseErrorHandler(handleError),
		).SetBody(body).Post(ctx, path)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.OrderPayload{}, apperror.New(apperror.CodeOrderBuildFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s %s: %v", path, pair, err)))
	}

	var p payload
	if err := json.Unmarshal(resp.Body(), &p); err != nil {
		return domain.OrderPayload{}, apperror.New(apperror.CodeOrderBuildFailed,
			apperror.WithCause(err),
			apperror.WithContext("decode "+path+" response"))
	}
	out, err := p.toPayload()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.OrderPayload{}, err
	}

	c.logger.Debug(ctx, "order calldata built",
		"path", path,
		"pair", pair,
		"vault", out.VaultAddress.Hex(),
		"calldata_bytes", len(out.Calldata))
	return out, nil
}

func (p payload) toPayload() (domain.OrderPayload, error) {
	if !common.IsHexAddress(p.VaultAddress) {
		return domain.OrderPayload{}, apperror.New(apperror.CodeOrderBuildFailed,
			apperror.WithContext("invalid vaultAddress "+p.VaultAddress))
	}
	data, err := hexutil.Decode(p.Calldata)
	if err != nil || len(data) == 0 {
		return domain.OrderPayload{}, apperror.New(apperror.CodeOrderBuildFailed,
			apperror.WithCause(err),
			apperror.WithContext("invalid calldata"))
	}
	out := domain.OrderPayload{
		Calldata:     data,
		VaultAddress: common.HexToAddress(p.VaultAddress),
	}
	if p.Value != "" {
		v, ok := new(big.Int).SetString(p.Value, 0)
		if !ok {
			return domain.OrderPayload{}, apperror.New(apperror.CodeOrderBuildFailed,
				apperror.WithContext("invalid value "+p.Value))
		}
		out.Value = v
	}
	return out, nil
}

func handleError(statusCode int, body []byte) error {
	if statusCode < 400 {
		return nil
	}
	var e errorBody
	msg := string(body)
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			msg = e.Error
		} else if e.Message != "" {
			msg = e.Message
		}
	}
	return fmt.Errorf("order api HTTP %d: %s", statusCode, msg)
}
