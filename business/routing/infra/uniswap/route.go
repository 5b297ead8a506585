// Package uniswap implements the Uniswap V3 route: quotes come from the
// QuoterV2 contract and swaps are encoded locally for SwapRouter02.
package uniswap

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	execdomain "github.com/fd1az/perp-router/business/execution/domain"
	"github.com/fd1az/perp-router/business/routing/app"
	"github.com/fd1az/perp-router/business/routing/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/asset"
	"github.com/fd1az/perp-router/internal/circuitbreaker"
	"github.com/fd1az/perp-router/internal/logger"
)

const (
	// RouteID is the registry id of this route.
	RouteID = "uniswap"

	tracerName = "routing.uniswap"
	meterName  = "routing.uniswap"
)

var _ app.Route = (*Route)(nil)

// Config configures the route.
type Config struct {
	Quoter         common.Address
	Router         common.Address
	WrappedNative  common.Address
	DefaultFeeTier int
}

type routeMetrics struct {
	quotesTotal  metric.Int64Counter
	quoteLatency metric.Float64Histogram
	quoteErrors  metric.Int64Counter
}

// Route prices single-pool swaps across fee tiers and keeps the best.
type Route struct {
	caller    ethereum.ContractCaller
	gas       app.GasPricer
	cfg       Config
	quoterABI abi.ABI
	routerABI abi.ABI
	feeTiers  []int

	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]
	now    func() time.Time

	tracer  trace.Tracer
	metrics *routeMetrics
}

// payload is what Execute needs from a quote.
type payload struct {
	Fee int `json:"fee"`
}

// New creates a Uniswap route. gas may be nil.
func New(caller ethereum.ContractCaller, gas app.GasPricer, cfg Config, log logger.LoggerInterface) (*Route, error) {
	quoterABI, err := abi.JSON(strings.NewReader(QuoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}
	routerABI, err := abi.JSON(strings.NewReader(SwapRouter02ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}
	if cfg.Router == (common.Address{}) || cfg.Quoter == (common.Address{}) {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("uniswap quoter and router addresses are required"))
	}

	r := &Route{
		caller:    caller,
		gas:       gas,
		cfg:       cfg,
		quoterABI: quoterABI,
		routerABI: routerABI,
		feeTiers:  feeTiers(cfg.DefaultFeeTier),
		logger:    log,
		cb:        circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("uniswap-quoter")),
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
	}
	if err := r.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return r, nil
}

// feeTiers puts the preferred tier first and drops duplicates.
func feeTiers(preferred int) []int {
	tiers := []int{preferred, FeeTier005, FeeTier030, FeeTier100, FeeTier001}
	seen := make(map[int]bool, len(tiers))
	out := tiers[:0]
	for _, t := range tiers {
		if t <= 0 || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (r *Route) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	r.metrics = &routeMetrics{}

	r.metrics.quotesTotal, err = meter.Int64Counter(
		"uniswap_quotes_total",
		metric.WithDescription("Total quote requests"),
	)
	if err != nil {
		return err
	}

	r.metrics.quoteLatency, err = meter.Float64Histogram(
		"uniswap_quote_latency_ms",
		metric.WithDescription("Quote request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	r.metrics.quoteErrors, err = meter.Int64Counter(
		"uniswap_quote_errors_total",
		metric.WithDescription("Total quote errors"),
	)
	return err
}

func (r *Route) ID() string   { return RouteID }
func (r *Route) Name() string { return "Uniswap V3" }

// poolToken maps the native placeholder onto the wrapped token.
func (r *Route) poolToken(addr common.Address) common.Address {
	if app.IsNative(addr) {
		return r.cfg.WrappedNative
	}
	return addr
}

// Quote asks the quoter for every fee tier and keeps the highest output.
func (r *Route) Quote(ctx context.Context, req app.QuoteRequest) (*domain.Quote, error) {
	ctx, span := r.tracer.Start(ctx, "uniswap.quote",
		trace.WithAttributes(
			attribute.String("token_in", req.TokenIn.Hex()),
			attribute.String("token_out", req.TokenOut.Hex()),
			attribute.String("amount", req.Amount),
		),
	)
	defer span.End()

	if app.IsNative(req.TokenOut) {
		return nil, apperror.New(apperror.CodeRouteUnavailable,
			apperror.WithContext("uniswap route does not unwrap native output"))
	}
	amountIn, err := req.AmountInRaw()
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithCause(err),
			apperror.WithContext("uniswap amount"))
	}

	start := time.Now()
	r.metrics.quotesTotal.Add(ctx, 1)

	tokenIn, tokenOut := r.poolToken(req.TokenIn), r.poolToken(req.TokenOut)

	var best *QuoteResult
	var bestTier int
	var lastErr error
	for _, tier := range r.feeTiers {
		res, err := r.quoteTier(ctx, tokenIn, tokenOut, amountIn, tier)
		if err != nil {
			lastErr = err
			span.AddEvent("fee_tier_failed", trace.WithAttributes(
				attribute.Int("fee_tier", tier),
				attribute.String("error", err.Error()),
			))
			continue
		}
		if best == nil || res.AmountOut.Cmp(best.AmountOut) > 0 {
			best, bestTier = res, tier
		}
	}

	r.metrics.quoteLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

	if best == nil || best.AmountOut.Sign() <= 0 {
		r.metrics.quoteErrors.Add(ctx, 1)
		span.SetStatus(codes.Error, "no valid quote")
		return nil, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithCause(lastErr),
			apperror.WithContext("no uniswap pool found for token pair"))
	}

	raw, err := json.Marshal(payload{Fee: bestTier})
	if err != nil {
		return nil, fmt.Errorf("marshal uniswap payload: %w", err)
	}

	fetched := r.now()
	q := &domain.Quote{
		RouteID:      RouteID,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     asset.TrimDecimal(req.Amount),
		AmountOut:    asset.TrimDecimal(asset.FormatBaseUnits(best.AmountOut, req.DecimalsOut)),
		AmountInRaw:  amountIn.String(),
		AmountOutRaw: best.AmountOut.String(),
		PathID:       pathID(tokenIn, tokenOut, amountIn, bestTier, fetched),
		Payload:      raw,
	}
	if best.GasEstimate != nil && best.GasEstimate.IsUint64() {
		q.GasUnits = best.GasEstimate.Uint64()
	}
	if r.gas != nil && q.GasUnits > 0 {
		if price, err := r.gas.SuggestGasPrice(ctx); err == nil {
			q.GasNative = domain.GasCost(q.GasUnits, price)
		}
	}

	span.SetAttributes(
		attribute.String("amount_out", q.AmountOutRaw),
		attribute.Int("fee_tier", bestTier),
	)
	r.logger.Debug(ctx, "uniswap quote",
		"token_in", req.TokenIn.Hex(),
		"token_out", req.TokenOut.Hex(),
		"amount_in", q.AmountInRaw,
		"amount_out", q.AmountOutRaw,
		"fee_tier", bestTier,
	)
	return q, nil
}

func (r *Route) quoteTier(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, tier int) (*QuoteResult, error) {
	callData, err := r.quoterABI.Pack("quoteExactInputSingle", QuoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(tier)),
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}

	out, err := r.cb.Execute(func() ([]byte, error) {
		return r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.cfg.Quoter, Data: callData}, nil)
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("quoter call failed for fee tier %d", tier)))
	}

	var res QuoteResult
	if err := r.quoterABI.UnpackIntoInterface(&res, "quoteExactInputSingle", out); err != nil {
		return nil, fmt.Errorf("failed to decode quoter result: %w", err)
	}
	return &res, nil
}

// Execute encodes exactInputSingle for the tier the quote was priced on.
// A native input is sent as value and wrapped by the router.
func (r *Route) Execute(ctx context.Context, qc domain.QuoteContext, params app.ExecParams) (*execdomain.TxRequest, error) {
	_, span := r.tracer.Start(ctx, "uniswap.execute")
	defer span.End()

	q := qc.Quote
	if q == nil {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("uniswap quote is missing"))
	}
	var p payload
	if err := json.Unmarshal(q.Payload, &p); err != nil || p.Fee <= 0 {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithCause(err),
			apperror.WithContext("uniswap quote has no fee tier"))
	}
	if params.Sender == (common.Address{}) {
		return nil, apperror.New(apperror.CodeRequiredField,
			apperror.WithContext("sender"))
	}

	amountIn, ok := new(big.Int).SetString(q.AmountInRaw, 10)
	if !ok {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(fmt.Sprintf("uniswap amount in %q", q.AmountInRaw)))
	}
	amountOut, ok := new(big.Int).SetString(q.AmountOutRaw, 10)
	if !ok {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(fmt.Sprintf("uniswap amount out %q", q.AmountOutRaw)))
	}

	data, err := r.routerABI.Pack("exactInputSingle", ExactInputSingleParams{
		TokenIn:           r.poolToken(q.TokenIn),
		TokenOut:          r.poolToken(q.TokenOut),
		Fee:               big.NewInt(int64(p.Fee)),
		Recipient:         params.RecipientOrSender(),
		AmountIn:          amountIn,
		AmountOutMinimum:  params.MinOut(amountOut),
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeAssembleFailed,
			apperror.WithCause(err),
			apperror.WithContext("encode exactInputSingle"))
	}

	tx := &execdomain.TxRequest{To: r.cfg.Router, Data: data, Value: new(big.Int)}
	if app.IsNative(q.TokenIn) {
		tx.Value = amountIn
	} else {
		tx.Spender = r.cfg.Router
		tx.ApproveToken = q.TokenIn
		tx.ApproveAmount = amountIn
	}
	return tx, nil
}

// pathID identifies one on-chain quote; the fetch time keeps repeated
// quotes of the same pair distinct.
func pathID(tokenIn, tokenOut common.Address, amountIn *big.Int, tier int, at time.Time) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(at.UnixNano()))
	h := crypto.Keccak256Hash(
		tokenIn.Bytes(),
		tokenOut.Bytes(),
		amountIn.Bytes(),
		big.NewInt(int64(tier)).Bytes(),
		buf[:],
	)
	return RouteID + ":" + h.Hex()
}
