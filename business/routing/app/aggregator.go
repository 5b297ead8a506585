package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/perp-router/business/routing/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/logger"
)

const (
	tracerName = "routing"
	meterName  = "routing"

	// DefaultQuoteTimeout bounds each provider call.
	DefaultQuoteTimeout = 10 * time.Second
)

// Selection is the outcome of one aggregation round.
type Selection struct {
	Best   string
	Quote  *domain.Quote
	States []domain.QuoteState
}

// Context returns the execution context for the best quote.
func (s Selection) Context() domain.QuoteContext {
	return domain.QuoteContext{Quote: s.Quote, RouteID: s.Best}
}

type aggregatorMetrics struct {
	quotes       metric.Int64Counter
	quoteErrors  metric.Int64Counter
	quoteLatency metric.Float64Histogram
}

// Aggregator asks every registered route for a quote in parallel.
type Aggregator struct {
	registry *Registry
	timeout  time.Duration
	logger   logger.LoggerInterface
	head     HeadSource

	tracer  trace.Tracer
	metrics *aggregatorMetrics
	now     func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithHead stamps quotes that carry no block number with the latest head.
func WithHead(h HeadSource) AggregatorOption {
	return func(a *Aggregator) { a.head = h }
}

// NewAggregator creates an Aggregator. timeout <= 0 uses DefaultQuoteTimeout.
func NewAggregator(registry *Registry, timeout time.Duration, log logger.LoggerInterface, opts ...AggregatorOption) (*Aggregator, error) {
	if timeout <= 0 {
		timeout = DefaultQuoteTimeout
	}
	a := &Aggregator{
		registry: registry,
		timeout:  timeout,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return a, nil
}

func (a *Aggregator) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	a.metrics = &aggregatorMetrics{}

	a.metrics.quotes, err = meter.Int64Counter(
		"routing_quotes_total",
		metric.WithDescription("Total provider quote requests"),
	)
	if err != nil {
		return err
	}

	a.metrics.quoteErrors, err = meter.Int64Counter(
		"routing_quote_errors_total",
		metric.WithDescription("Failed provider quote requests"),
	)
	if err != nil {
		return err
	}

	a.metrics.quoteLatency, err = meter.Float64Histogram(
		"routing_quote_latency_ms",
		metric.WithDescription("Provider quote latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// Registry returns the route registry.
func (a *Aggregator) Registry() *Registry {
	return a.registry
}

// Quote returns one state per route in registration order. A disabled
// request yields empty states without calling any provider. Provider
// errors and panics are confined to that provider's state.
func (a *Aggregator) Quote(ctx context.Context, req QuoteRequest) []domain.QuoteState {
	return a.quote(ctx, req, 0)
}

// Best runs Quote and selects the highest output. It returns
// NO_ROUTE_AVAILABLE, never a panic, when no quote qualifies.
func (a *Aggregator) Best(ctx context.Context, req QuoteRequest) (Selection, error) {
	states := a.Quote(ctx, req)
	return selectFrom(states)
}

func selectFrom(states []domain.QuoteState) (Selection, error) {
	sel := Selection{States: states}
	best, ok := domain.SelectBestQuote(states)
	if !ok {
		return sel, apperror.New(apperror.CodeNoRouteAvailable,
			apperror.WithContext(noRouteReason(states)))
	}
	sel.Best = best
	for _, s := range states {
		if s.Source == best {
			sel.Quote = s.Quote
			break
		}
	}
	return sel, nil
}

func noRouteReason(states []domain.QuoteState) string {
	if len(states) == 0 {
		return "no routes registered"
	}
	for _, s := range states {
		if s.Err != nil {
			return fmt.Sprintf("%s: %s", s.Source, s.Err)
		}
	}
	return "no route returned a quote"
}

func (a *Aggregator) quote(ctx context.Context, req QuoteRequest, seq uint64) []domain.QuoteState {
	routes := a.registry.All()

	if req.Disabled() {
		states := make([]domain.QuoteState, len(routes))
		for i, r := range routes {
			states[i] = domain.QuoteState{Source: r.ID()}
		}
		return states
	}

	ctx, span := a.tracer.Start(ctx, "routing.quote",
		trace.WithAttributes(
			attribute.String("token_in", req.TokenIn.Hex()),
			attribute.String("token_out", req.TokenOut.Hex()),
			attribute.String("amount", req.Amount),
			attribute.Int("routes", len(routes)),
			attribute.Int64("seq", int64(seq)),
		),
	)
	defer span.End()

	mapper := iter.Mapper[Route, domain.QuoteState]{MaxGoroutines: max(len(routes), 1)}
	return mapper.Map(routes, func(r *Route) domain.QuoteState {
		return a.quoteOne(ctx, *r, req, seq)
	})
}

func (a *Aggregator) quoteOne(ctx context.Context, route Route, req QuoteRequest, seq uint64) domain.QuoteState {
	state := domain.QuoteState{Source: route.ID()}
	attrs := metric.WithAttributes(attribute.String("route", route.ID()))

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := a.now()
	a.metrics.quotes.Add(ctx, 1, attrs)

	var (
		quote *domain.Quote
		err   error
		pc    panics.Catcher
	)
	pc.Try(func() {
		quote, err = route.Quote(ctx, req)
	})
	if r := pc.Recovered(); r != nil {
		err = apperror.New(apperror.CodeQuoteFailed,
			apperror.WithCause(r.AsError()),
			apperror.WithContext(fmt.Sprintf("%s panicked", route.ID())))
	}
	a.metrics.quoteLatency.Record(ctx, float64(a.now().Sub(start).Milliseconds()), attrs)

	if err == nil && quote == nil {
		err = apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(fmt.Sprintf("%s returned no quote", route.ID())))
	}
	if err != nil {
		a.metrics.quoteErrors.Add(ctx, 1, attrs)
		a.logger.Debug(ctx, "provider quote failed", "route", route.ID(), "error", err)
		state.Err = err
		return state
	}

	// Stamp a copy so the provider's value stays untouched.
	q := *quote
	q.RouteID = route.ID()
	q.Seq = seq
	if q.FetchedAt.IsZero() {
		q.FetchedAt = a.now()
	}
	if q.BlockNumber == 0 && a.head != nil {
		q.BlockNumber = a.head.LatestBlock()
	}
	state.Quote = &q
	return state
}
