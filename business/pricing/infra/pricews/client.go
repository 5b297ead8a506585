package pricews

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/perp-router/business/pricing/app"
	"github.com/fd1az/perp-router/business/pricing/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/logger"
	"github.com/fd1az/perp-router/internal/wsconn"
)

var _ app.Feed = (*Client)(nil)

const (
	tracerName = "pricews"
	meterName  = "pricews"
)

// ClientConfig holds configuration for the price stream client.
type ClientConfig struct {
	URL          string
	Symbols      []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type clientMetrics struct {
	messagesReceived metric.Int64Counter
	ticksReceived    metric.Int64Counter
	parseErrors      metric.Int64Counter
}

// Client consumes the price stream through a reconnecting wsconn.Client.
type Client struct {
	config ClientConfig
	logger logger.LoggerInterface

	conn   *wsconn.Client
	connMu sync.RWMutex

	handler   func(context.Context, []domain.Tick)
	handlerMu sync.RWMutex

	nextID atomic.Int64

	tracer  trace.Tracer
	metrics *clientMetrics
}

// NewClient creates a price stream client. It does not connect.
func NewClient(cfg ClientConfig, log logger.LoggerInterface) (*Client, error) {
	if cfg.URL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("price feed websocket url is empty"))
	}
	cfg.Symbols = normalizeSymbols(cfg.Symbols)

	c := &Client{
		config: cfg,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &clientMetrics{}

	c.metrics.messagesReceived, err = meter.Int64Counter(
		"price_feed_messages_total",
		metric.WithDescription("Total price frames received"),
	)
	if err != nil {
		return err
	}

	c.metrics.ticksReceived, err = meter.Int64Counter(
		"price_feed_ticks_total",
		metric.WithDescription("Total symbol prices received"),
	)
	if err != nil {
		return err
	}

	c.metrics.parseErrors, err = meter.Int64Counter(
		"price_feed_parse_errors_total",
		metric.WithDescription("Price frame parse errors"),
	)
	return err
}

// OnTicks registers the batch handler.
func (c *Client) OnTicks(handler func(ctx context.Context, ticks []domain.Tick)) {
	c.handlerMu.Lock()
	c.handler = handler
	c.handlerMu.Unlock()
}

// Connect dials the stream and subscribes. Reconnects re-subscribe.
func (c *Client) Connect(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "pricews.connect",
		trace.WithAttributes(
			attribute.String("url", c.config.URL),
			attribute.StringSlice("symbols", c.config.Symbols),
		),
	)
	defer span.End()

	wsCfg := wsconn.DefaultConfig(c.config.URL, "price-feed")
	if c.config.ReadTimeout > 0 {
		wsCfg.ReadTimeout = c.config.ReadTimeout
	}
	if c.config.WriteTimeout > 0 {
		wsCfg.WriteTimeout = c.config.WriteTimeout
	}

	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err),
			apperror.WithContext("failed to create wsconn"))
	}
	conn.OnMessage(c.handleMessage)
	conn.OnConnect(c.subscribe(conn))
	conn.OnStateChange(func(state wsconn.State, err error) {
		if err != nil {
			c.logger.Warn(context.Background(), "price feed state changed", "state", string(state), "error", err)
			return
		}
		c.logger.Debug(context.Background(), "price feed state changed", "state", string(state))
	})

	if err := conn.ConnectWithRetry(ctx); err != nil {
		conn.Close()
		span.RecordError(err)
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err),
			apperror.WithContext("failed to connect to price feed"))
	}

	c.connMu.Lock()
	old := c.conn
	c.conn = conn
	c.connMu.Unlock()
	if old != nil {
		old.Close()
	}

	c.logger.Info(ctx, "price feed connected", "url", c.config.URL, "symbols", c.config.Symbols)
	return nil
}

// subscribe returns the OnConnect hook. With no configured symbols the
// server's default stream is used and nothing is sent.
func (c *Client) subscribe(conn *wsconn.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if len(c.config.Symbols) == 0 {
			return nil
		}
		return conn.SendJSON(ctx, SubscribeRequest{
			Method:  "subscribe",
			Symbols: c.config.Symbols,
			ID:      c.nextID.Add(1),
		})
	}
}

func (c *Client) handleMessage(ctx context.Context, data []byte) {
	c.metrics.messagesReceived.Add(ctx, 1)

	ticks, err := ParseFrame(data)
	if err != nil {
		c.metrics.parseErrors.Add(ctx, 1)
		c.logger.Debug(ctx, "failed to parse price frame", "error", err, "data", string(data[:min(len(data), 200)]))
		return
	}
	if len(ticks) == 0 {
		return
	}
	c.metrics.ticksReceived.Add(ctx, int64(len(ticks)))

	c.handlerMu.RLock()
	handler := c.handler
	c.handlerMu.RUnlock()
	if handler != nil {
		handler(ctx, ticks)
	}
}

// IsConnected reports whether the stream is currently up.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close closes the stream.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
