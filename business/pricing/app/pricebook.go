package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/perp-router/business/pricing/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/logger"
)

const (
	tracerName = "pricing"

	// DefaultStaleTimeout is used when no stale timeout is configured.
	DefaultStaleTimeout = 10 * time.Second
)

// PriceBook holds the latest price per symbol. The feed handler is the
// single writer; every update is applied as one batch.
type PriceBook struct {
	staleTimeout time.Duration
	fallback     Snapshotter
	logger       logger.LoggerInterface
	tracer       trace.Tracer

	mu      sync.RWMutex
	quotes  map[string]domain.Quote
	updated time.Time

	subMu sync.Mutex
	subs  []chan []domain.Quote

	now func() time.Time
}

// NewPriceBook creates an empty book. fallback may be nil.
func NewPriceBook(staleTimeout time.Duration, fallback Snapshotter, log logger.LoggerInterface) *PriceBook {
	if staleTimeout <= 0 {
		staleTimeout = DefaultStaleTimeout
	}
	return &PriceBook{
		staleTimeout: staleTimeout,
		fallback:     fallback,
		logger:       log,
		tracer:       otel.Tracer(tracerName),
		quotes:       make(map[string]domain.Quote),
		now:          time.Now,
	}
}

// Apply writes a batch of ticks and notifies subscribers. Non-positive
// prices are ignored.
func (b *PriceBook) Apply(ctx context.Context, ticks []domain.Tick) {
	if len(ticks) == 0 {
		return
	}

	b.mu.Lock()
	applied := 0
	for _, t := range ticks {
		if !t.Price.IsPositive() {
			continue
		}
		t.Symbol = domain.NormalizeSymbol(t.Symbol)
		if t.ReceivedAt.IsZero() {
			t.ReceivedAt = b.now()
		}
		prev := b.quotes[t.Symbol].Price
		b.quotes[t.Symbol] = domain.Quote{Tick: t, Change: domain.CalculateChange(prev, t.Price)}
		applied++
	}
	if applied > 0 {
		b.updated = b.now()
	}
	b.mu.Unlock()

	if applied > 0 {
		b.publish(ctx)
	}
}

// Get returns the latest quote for symbol regardless of age.
func (b *PriceBook) Get(symbol string) (domain.Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[domain.NormalizeSymbol(symbol)]
	return q, ok
}

// All returns every quote ordered by symbol.
func (b *PriceBook) All() []domain.Quote {
	b.mu.RLock()
	out := make([]domain.Quote, 0, len(b.quotes))
	for _, q := range b.quotes {
		out = append(out, q)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// LastUpdated returns when the last batch was applied.
func (b *PriceBook) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

// IsFresh reports whether any update arrived within the stale timeout.
func (b *PriceBook) IsFresh() bool {
	last := b.LastUpdated()
	return !last.IsZero() && b.now().Sub(last) <= b.staleTimeout
}

// Price returns a fresh price for symbol. A missing or stale entry triggers
// one snapshot fetch when a fallback is configured.
func (b *PriceBook) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ctx, span := b.tracer.Start(ctx, "pricing.price",
		trace.WithAttributes(attribute.String("symbol", symbol)),
	)
	defer span.End()

	q, ok := b.Get(symbol)
	if ok && q.Age(b.now()) <= b.staleTimeout {
		return q.Price, nil
	}
	span.SetAttributes(attribute.Bool("stale", ok))

	if b.fallback != nil {
		b.logger.Debug(ctx, "price stale, using snapshot fallback", "symbol", symbol)
		ticks, err := b.fallback.Snapshot(ctx)
		if err != nil {
			span.RecordError(err)
			return decimal.Zero, apperror.New(apperror.CodePriceUnavailable,
				apperror.WithCause(err),
				apperror.WithContext(symbol))
		}
		b.Apply(ctx, ticks)
		if q, ok := b.Get(symbol); ok {
			return q.Price, nil
		}
	}

	reason := "no price received"
	if ok {
		reason = fmt.Sprintf("last price is %s old", q.Age(b.now()).Round(time.Millisecond))
	}
	return decimal.Zero, apperror.New(apperror.CodePriceUnavailable,
		apperror.WithContext(fmt.Sprintf("%s: %s", symbol, reason)))
}

// Subscribe returns a channel receiving the full book after every batch.
// Slow subscribers miss snapshots rather than block the feed.
func (b *PriceBook) Subscribe() <-chan []domain.Quote {
	ch := make(chan []domain.Quote, 1)
	b.subMu.Lock()
	b.subs = append(b.subs, ch)
	b.subMu.Unlock()
	return ch
}

func (b *PriceBook) publish(ctx context.Context) {
	snapshot := b.All()

	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- snapshot:
		default:
			b.logger.Debug(ctx, "price subscriber lagging, snapshot dropped")
		}
	}
}
