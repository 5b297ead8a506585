package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/perp-router/business/chain/app"
	"github.com/fd1az/perp-router/business/chain/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/cache"
	"github.com/fd1az/perp-router/internal/circuitbreaker"
	"github.com/fd1az/perp-router/internal/logger"
)

const gasPriceKey = "current"

// GasOracleConfig holds configuration for the gas oracle.
type GasOracleConfig struct {
	CacheTTL    time.Duration // how long a suggestion is reused
	MaxGasPrice *big.Int      // suggestions are capped here, nil for no cap
}

// DefaultGasOracleConfig returns a one-block cache and a 500 gwei cap.
func DefaultGasOracleConfig() GasOracleConfig {
	return GasOracleConfig{
		CacheTTL:    12 * time.Second,
		MaxGasPrice: GweiToWei(500),
	}
}

// GweiToWei converts whole gwei to wei.
func GweiToWei(gwei int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(gwei), big.NewInt(1_000_000_000))
}

type gasOracleMetrics struct {
	fetches      metric.Int64Counter
	cacheHits    metric.Int64Counter
	gasPriceGwei metric.Float64Gauge
}

// GasOracle serves node gas price suggestions through a short cache and a
// circuit breaker. It satisfies the routes' gas pricer.
type GasOracle struct {
	reader app.GasPriceReader
	config GasOracleConfig
	logger logger.LoggerInterface

	prices *cache.Cache[string, domain.GasPrice]
	cb     *circuitbreaker.CircuitBreaker[*big.Int]

	tracer  trace.Tracer
	metrics *gasOracleMetrics
	now     func() time.Time
}

// NewGasOracle creates a gas oracle reading from reader.
func NewGasOracle(reader app.GasPriceReader, cfg GasOracleConfig, log logger.LoggerInterface) (*GasOracle, error) {
	g := &GasOracle{
		reader: reader,
		config: cfg,
		logger: log,
		prices: cache.New[string, domain.GasPrice](0),
		cb:     circuitbreaker.New[*big.Int](circuitbreaker.DefaultConfig("gas-oracle")),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	if err := g.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return g, nil
}

func (g *GasOracle) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	g.metrics = &gasOracleMetrics{}

	g.metrics.fetches, err = meter.Int64Counter(
		"gas_price_fetches_total",
		metric.WithDescription("Gas price requests sent to the node"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	g.metrics.cacheHits, err = meter.Int64Counter(
		"gas_cache_hits_total",
		metric.WithDescription("Gas price requests served from cache"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	g.metrics.gasPriceGwei, err = meter.Float64Gauge(
		"gas_price_gwei",
		metric.WithDescription("Current gas price in gwei"),
		metric.WithUnit("gwei"),
	)
	return err
}

// GasPrice returns the current suggestion, cached for CacheTTL.
func (g *GasOracle) GasPrice(ctx context.Context) (domain.GasPrice, error) {
	ctx, span := g.tracer.Start(ctx, "gas.get_price")
	defer span.End()

	if price, ok := g.prices.Get(ctx, gasPriceKey); ok {
		g.metrics.cacheHits.Add(ctx, 1)
		span.AddEvent("cache_hit")
		return price, nil
	}

	g.metrics.fetches.Add(ctx, 1)
	wei, err := g.cb.Execute(func() (*big.Int, error) {
		return g.reader.SuggestGasPrice(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return domain.GasPrice{}, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext("failed to get gas price"))
	}

	if g.config.MaxGasPrice != nil && wei.Cmp(g.config.MaxGasPrice) > 0 {
		g.logger.Warn(ctx, "gas price above cap", "wei", wei.String(), "cap", g.config.MaxGasPrice.String())
		wei = new(big.Int).Set(g.config.MaxGasPrice)
	}

	price := domain.GasPrice{Wei: wei, FetchedAt: g.now()}
	g.prices.Set(ctx, gasPriceKey, price, g.config.CacheTTL)

	gwei := price.Gwei().InexactFloat64()
	g.metrics.gasPriceGwei.Record(ctx, gwei)
	span.SetAttributes(attribute.Float64("gwei", gwei))
	return price, nil
}

// SuggestGasPrice returns the cached suggestion in wei.
func (g *GasOracle) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := g.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(price.Wei), nil
}

// Close releases the cache.
func (g *GasOracle) Close() error {
	g.prices.Close()
	return nil
}
