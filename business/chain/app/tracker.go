package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/perp-router/business/chain/domain"
	"github.com/fd1az/perp-router/internal/circuitbreaker"
	"github.com/fd1az/perp-router/internal/logger"
)

const (
	tracerName = "chain"
	meterName  = "chain"

	DefaultPollInterval   = 4 * time.Second
	DefaultReconnectDelay = 5 * time.Second

	headBuffer = 16
)

var errStreamClosed = errors.New("head subscription closed")

// TrackerConfig configures a HeadTracker.
type TrackerConfig struct {
	PollInterval time.Duration
	// ReconnectDelay is how long to poll after the stream drops before
	// dialing it again.
	ReconnectDelay time.Duration
}

type trackerMetrics struct {
	heads      metric.Int64Counter
	pollErrors metric.Int64Counter
	headDelay  metric.Float64Histogram
	headBlock  metric.Int64Gauge
}

// HeadTracker follows the chain head. It streams newHeads when a dialer is
// configured and polls the latest header otherwise, or while the stream is
// down. Heads only move forward.
type HeadTracker struct {
	poller HeaderReader
	dial   StreamDialer
	cfg    TrackerConfig
	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[*types.Header]

	mu         sync.RWMutex
	head       domain.Head
	state      domain.ConnectionState
	reconnects int

	subMu sync.Mutex
	subs  []chan domain.Head

	tracer  trace.Tracer
	metrics *trackerMetrics
	now     func() time.Time
}

// NewHeadTracker creates a tracker. dial may be nil for polling only.
func NewHeadTracker(poller HeaderReader, dial StreamDialer, cfg TrackerConfig, log logger.LoggerInterface) (*HeadTracker, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}

	t := &HeadTracker{
		poller: poller,
		dial:   dial,
		cfg:    cfg,
		logger: log,
		state:  domain.StateDisconnected,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}

	cbCfg := circuitbreaker.DefaultConfig("chain-head")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	t.cb = circuitbreaker.New[*types.Header](cbCfg)

	if err := t.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return t, nil
}

func (t *HeadTracker) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	t.metrics = &trackerMetrics{}

	t.metrics.heads, err = meter.Int64Counter(
		"chain_heads_total",
		metric.WithDescription("New chain heads observed"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	t.metrics.pollErrors, err = meter.Int64Counter(
		"chain_head_errors_total",
		metric.WithDescription("Failed head polls and dropped streams"),
	)
	if err != nil {
		return err
	}

	t.metrics.headDelay, err = meter.Float64Histogram(
		"chain_head_delay_ms",
		metric.WithDescription("Delay from block timestamp to receipt"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	t.metrics.headBlock, err = meter.Int64Gauge(
		"chain_head_block",
		metric.WithDescription("Latest block number"),
	)
	return err
}

// Run follows the head until ctx is done.
func (t *HeadTracker) Run(ctx context.Context) {
	defer t.setState(domain.StateDisconnected)

	for ctx.Err() == nil {
		if t.dial == nil {
			t.setState(domain.StatePolling)
			t.poll(ctx, 0)
			continue
		}

		t.setState(domain.StateConnecting)
		err := t.follow(ctx)
		if ctx.Err() != nil {
			return
		}
		t.metrics.pollErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("source", "stream")))
		t.logger.Warn(ctx, "head stream unavailable, polling", "error", err, "retry_in", t.cfg.ReconnectDelay.String())

		t.mu.Lock()
		t.reconnects++
		t.mu.Unlock()

		t.setState(domain.StatePolling)
		t.poll(ctx, t.cfg.ReconnectDelay)
	}
}

// follow streams heads until the subscription fails or ctx is done.
func (t *HeadTracker) follow(ctx context.Context) error {
	stream, release, err := t.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer release()

	headers := make(chan *types.Header, headBuffer)
	sub, err := stream.SubscribeNewHead(ctx, headers)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	t.setState(domain.StateStreaming)
	t.logger.Info(ctx, "following chain head over websocket")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errStreamClosed
			}
			return err
		case h := <-headers:
			t.apply(ctx, h)
		}
	}
}

// poll fetches the latest header every PollInterval. A positive window
// bounds how long it polls.
func (t *HeadTracker) poll(ctx context.Context, window time.Duration) {
	t.pollOnce(ctx)

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if window > 0 {
		timer := time.NewTimer(window)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
			t.pollOnce(ctx)
		}
	}
}

func (t *HeadTracker) pollOnce(ctx context.Context) {
	ctx, span := t.tracer.Start(ctx, "chain.poll_head")
	defer span.End()

	h, err := t.cb.Execute(func() (*types.Header, error) {
		return t.poller.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		if ctx.Err() == nil {
			span.RecordError(err)
			t.metrics.pollErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("source", "poll")))
			t.logger.Debug(ctx, "head poll failed", "error", err)
		}
		return
	}
	t.apply(ctx, h)
}

func (t *HeadTracker) apply(ctx context.Context, h *types.Header) {
	if h == nil || h.Number == nil {
		return
	}
	head := domain.NewHead(h, t.now())

	t.mu.Lock()
	if head.Number <= t.head.Number {
		t.mu.Unlock()
		return
	}
	t.head = head
	t.mu.Unlock()

	t.metrics.heads.Add(ctx, 1)
	t.metrics.headDelay.Record(ctx, float64(head.Delay().Milliseconds()))
	t.metrics.headBlock.Record(ctx, int64(head.Number))

	t.publish(ctx, head)
}

// LatestBlock returns the head block number, 0 before the first head.
func (t *HeadTracker) LatestBlock() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.head.Number
}

// Head returns the current head and whether one has been seen.
func (t *HeadTracker) Head() (domain.Head, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.head, t.head.Number > 0
}

// LastUpdated returns when the current head arrived.
func (t *HeadTracker) LastUpdated() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.head.ReceivedAt
}

// Status returns the tracker state.
func (t *HeadTracker) Status() domain.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return domain.Status{
		State:      t.state,
		Block:      t.head.Number,
		Delay:      t.head.Delay(),
		LastUpdate: t.head.ReceivedAt,
		Reconnects: t.reconnects,
	}
}

// Subscribe returns a channel receiving every new head. Slow subscribers
// miss heads rather than block the tracker.
func (t *HeadTracker) Subscribe() <-chan domain.Head {
	ch := make(chan domain.Head, 1)
	t.subMu.Lock()
	t.subs = append(t.subs, ch)
	t.subMu.Unlock()
	return ch
}

func (t *HeadTracker) publish(ctx context.Context, head domain.Head) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- head:
		default:
			t.logger.Debug(ctx, "head subscriber lagging, head dropped", "block", head.Number)
		}
	}
}

func (t *HeadTracker) setState(s domain.ConnectionState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}
