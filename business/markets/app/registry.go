package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/perp-router/business/markets/domain"
	routingdomain "github.com/fd1az/perp-router/business/routing/domain"
	tradingdomain "github.com/fd1az/perp-router/business/trading/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/logger"
)

const (
	tracerName = "markets"
	meterName  = "markets"

	// DefaultPollInterval is the registry refresh period.
	DefaultPollInterval = 5 * time.Second

	maxConcurrentReads = 4
)

// Unavailability reasons surfaced on RouteInfo.
const (
	ReasonPairUnsupported = "pair not supported on this venue"
	ReasonOICapReached    = "open interest cap reached"
	ReasonNoMarketData    = "market data unavailable"
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Account      common.Address
	Pairs        []domain.Pair
	Venues       []domain.Venue
	PollInterval time.Duration
}

type registryMetrics struct {
	refreshes      metric.Int64Counter
	refreshErrors  metric.Int64Counter
	refreshLatency metric.Float64Histogram
}

// Registry holds the latest snapshot of every configured market. A single
// poller writes; readers take snapshots.
type Registry struct {
	reader InfoReader
	cfg    RegistryConfig
	logger logger.LoggerInterface

	mu          sync.RWMutex
	markets     map[string]domain.MarketInfo
	lastUpdated time.Time

	subMu sync.Mutex
	subs  []chan []domain.MarketInfo

	tracer  trace.Tracer
	metrics *registryMetrics
}

// NewRegistry creates a Registry. It does not poll until Run is called.
func NewRegistry(reader InfoReader, cfg RegistryConfig, log logger.LoggerInterface) (*Registry, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	r := &Registry{
		reader:  reader,
		cfg:     cfg,
		logger:  log,
		markets: make(map[string]domain.MarketInfo),
		tracer:  otel.Tracer(tracerName),
	}
	if err := r.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return r, nil
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	r.metrics = &registryMetrics{}

	r.metrics.refreshes, err = meter.Int64Counter(
		"markets_refresh_total",
		metric.WithDescription("Total market registry refreshes"),
	)
	if err != nil {
		return err
	}

	r.metrics.refreshErrors, err = meter.Int64Counter(
		"markets_refresh_errors_total",
		metric.WithDescription("Failed market registry refreshes"),
	)
	if err != nil {
		return err
	}

	r.metrics.refreshLatency, err = meter.Float64Histogram(
		"markets_refresh_latency_ms",
		metric.WithDescription("Market registry refresh latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// Run refreshes immediately and then every poll interval until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn(ctx, "market refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refresh reads every pair and swaps in the new snapshot. If any read fails
// the previous snapshot is kept untouched.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.reader == nil {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no market reader configured"))
	}

	ctx, span := r.tracer.Start(ctx, "markets.refresh",
		trace.WithAttributes(attribute.Int("pairs", len(r.cfg.Pairs))),
	)
	defer span.End()

	start := time.Now()
	r.metrics.refreshes.Add(ctx, 1)

	results := make([]domain.MarketInfo, len(r.cfg.Pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, pair := range r.cfg.Pairs {
		g.Go(func() error {
			info, err := r.reader.GetGlobalInfo(gctx, r.cfg.Account, pair)
			if err != nil {
				return fmt.Errorf("%s: %w", pair.Symbol, err)
			}
			results[i] = info
			return nil
		})
	}
	err := g.Wait()
	r.metrics.refreshLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		r.metrics.refreshErrors.Add(ctx, 1)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	next := make(map[string]domain.MarketInfo, len(results))
	for _, info := range results {
		next[strings.ToUpper(info.Symbol)] = info
	}

	r.mu.Lock()
	r.markets = next
	r.lastUpdated = time.Now()
	r.mu.Unlock()

	r.publish(ctx)
	return nil
}

// Get returns the market for symbol.
func (r *Registry) Get(symbol string) (domain.MarketInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[strings.ToUpper(symbol)]
	return m, ok
}

// All returns every market ordered by pair id.
func (r *Registry) All() []domain.MarketInfo {
	r.mu.RLock()
	out := make([]domain.MarketInfo, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PairID < out[j].PairID })
	return out
}

// LastUpdated returns the time of the last successful refresh.
func (r *Registry) LastUpdated() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastUpdated
}

// Subscribe returns a channel receiving every new snapshot. Slow
// subscribers miss snapshots rather than block the poller.
func (r *Registry) Subscribe() <-chan []domain.MarketInfo {
	ch := make(chan []domain.MarketInfo, 1)
	r.subMu.Lock()
	r.subs = append(r.subs, ch)
	r.subMu.Unlock()
	return ch
}

func (r *Registry) publish(ctx context.Context) {
	snapshot := r.All()

	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- snapshot:
		default:
			r.logger.Debug(ctx, "market subscriber lagging, snapshot dropped")
		}
	}
}

// MarketFees adapts a market into trading fee inputs.
func (r *Registry) MarketFees(_ context.Context, symbol string) (tradingdomain.MarketFees, error) {
	m, ok := r.Get(symbol)
	if !ok {
		return tradingdomain.MarketFees{}, apperror.NotFound(apperror.CodeMarketNotFound, symbol)
	}
	return tradingdomain.MarketFees{
		LongFee:     m.LongFee,
		ShortFee:    m.ShortFee,
		LongBorrow:  m.LongBorrowRate,
		ShortBorrow: m.ShortBorrowRate,
		FundingRate: m.FundingRate,
	}, nil
}

// Routes returns the venue routes for symbol on one side.
func (r *Registry) Routes(symbol string, long bool) []routingdomain.RouteInfo {
	var market *domain.MarketInfo
	if m, ok := r.Get(symbol); ok {
		market = &m
	}
	return VenueRoutes(market, symbol, r.cfg.Venues, long)
}

// VenueRoutes derives one RouteInfo per venue. market is nil when no data
// has been read for the pair yet.
func VenueRoutes(market *domain.MarketInfo, symbol string, venues []domain.Venue, long bool) []routingdomain.RouteInfo {
	routes := make([]routingdomain.RouteInfo, 0, len(venues))
	for _, v := range venues {
		switch {
		case !v.Supports(symbol):
			routes = append(routes, routingdomain.NewUnavailableRoute(v.ID, v.Name, ReasonPairUnsupported))
		case market == nil:
			routes = append(routes, routingdomain.NewUnavailableRoute(v.ID, v.Name, ReasonNoMarketData))
		case market.OICapReached(long):
			routes = append(routes, routingdomain.NewUnavailableRoute(v.ID, v.Name, ReasonOICapReached))
		default:
			fee := market.FeeFor(long)
			if v.Fee != nil {
				fee = *v.Fee
			}
			routes = append(routes, routingdomain.NewAvailableRoute(v.ID, v.Name, fee))
		}
	}
	return routes
}
