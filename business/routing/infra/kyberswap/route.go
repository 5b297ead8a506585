// Package kyberswap implements the KyberSwap aggregator route.
package kyberswap

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	execdomain "github.com/fd1az/perp-router/business/execution/domain"
	"github.com/fd1az/perp-router/business/routing/app"
	"github.com/fd1az/perp-router/business/routing/domain"
	"github.com/fd1az/perp-router/business/routing/infra/apiclient"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/asset"
	"github.com/fd1az/perp-router/internal/logger"
)

const (
	// RouteID is the registry id of this route.
	RouteID = "kyberswap"

	tracerName = "routing.kyberswap"

	// codeOK is the envelope code of a successful answer.
	codeOK = 0
)

var chainNames = map[uint64]string{
	1:     "ethereum",
	10:    "optimism",
	137:   "polygon",
	8453:  "base",
	42161: "arbitrum",
}

// ChainName returns the KyberSwap path segment for chainID.
func ChainName(chainID uint64) (string, bool) {
	name, ok := chainNames[chainID]
	return name, ok
}

// Config configures the route.
type Config struct {
	BaseURL      string
	ClientID     string
	ChainID      uint64
	Timeout      time.Duration
	RateLimitRPM int
}

// Route quotes through GET /{chain}/api/v1/routes and assembles through
// POST /{chain}/api/v1/route/build.
type Route struct {
	api    *apiclient.Client
	chain  string
	gas    app.GasPricer
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// New creates a KyberSwap route. gas is only consulted when a route
// summary carries no gas price.
func New(cfg Config, gas app.GasPricer, log logger.LoggerInterface) (*Route, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("kyberswap base url is required"))
	}
	chain, ok := ChainName(cfg.ChainID)
	if !ok {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("kyberswap does not support chain %d", cfg.ChainID)))
	}
	headers := map[string]string{}
	if cfg.ClientID != "" {
		headers["x-client-id"] = cfg.ClientID
	}
	api, err := apiclient.New(apiclient.Config{
		Name:         RouteID,
		BaseURL:      cfg.BaseURL,
		Headers:      headers,
		Timeout:      cfg.Timeout,
		RateLimitRPM: cfg.RateLimitRPM,
	})
	if err != nil {
		return nil, err
	}
	return &Route{
		api:    api,
		chain:  chain,
		gas:    gas,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}, nil
}

func (r *Route) ID() string   { return RouteID }
func (r *Route) Name() string { return "KyberSwap" }

// Quote fetches the best route summary for req.
func (r *Route) Quote(ctx context.Context, req app.QuoteRequest) (*domain.Quote, error) {
	ctx, span := r.tracer.Start(ctx, "kyberswap.quote",
		trace.WithAttributes(
			attribute.String("chain", r.chain),
			attribute.String("amount", req.Amount),
		),
	)
	defer span.End()

	amountIn, err := req.AmountInRaw()
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithCause(err),
			apperror.WithContext("kyberswap amount"))
	}

	query := map[string]string{
		"tokenIn":    req.TokenIn.Hex(),
		"tokenOut":   req.TokenOut.Hex(),
		"amountIn":   amountIn.String(),
		"gasInclude": "true",
	}
	var resp envelope[routesData]
	if err := r.api.Get(ctx, "routes", fmt.Sprintf("/%s/api/v1/routes", r.chain), query, &resp); err != nil {
		return nil, err
	}
	if err := resp.check(); err != nil {
		return nil, err
	}
	if len(resp.Data.RouteSummary) == 0 {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("kyberswap returned no routeSummary"))
	}

	var summary routeSummary
	if err := json.Unmarshal(resp.Data.RouteSummary, &summary); err != nil {
		return nil, apperror.New(apperror.CodeInvalidFormat,
			apperror.WithCause(err),
			apperror.WithContext("kyberswap routeSummary"))
	}
	out, err := asset.FromBaseUnits(summary.AmountOut, req.DecimalsOut)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithCause(err),
			apperror.WithContext("kyberswap amountOut"))
	}

	payload, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal kyberswap payload: %w", err)
	}

	gasUnits, _ := strconv.ParseUint(summary.Gas, 10, 64)
	q := &domain.Quote{
		RouteID:      RouteID,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     asset.TrimDecimal(req.Amount),
		AmountOut:    asset.TrimDecimal(out),
		AmountInRaw:  amountIn.String(),
		AmountOutRaw: summary.AmountOut,
		GasUnits:     gasUnits,
		GasUSD:       parseDecimal(summary.GasUSD),
		PriceImpact:  priceImpact(parseDecimal(summary.AmountInUSD), parseDecimal(summary.AmountOutUSD)),
		PathID:       pathID(summary.RouteID, payload),
		Payload:      payload,
	}
	q.GasNative = r.gasNative(ctx, gasUnits, summary.GasPrice)

	span.SetAttributes(attribute.String("amount_out", q.AmountOut))
	return q, nil
}

func (r *Route) gasNative(ctx context.Context, units uint64, quoted string) decimal.Decimal {
	if price, ok := new(big.Int).SetString(quoted, 10); ok && price.Sign() > 0 {
		return domain.GasCost(units, price)
	}
	if r.gas == nil || units == 0 {
		return decimal.Zero
	}
	price, err := r.gas.SuggestGasPrice(ctx)
	if err != nil {
		r.logger.Debug(ctx, "gas price unavailable", "route", RouteID, "error", err)
		return decimal.Zero
	}
	return domain.GasCost(units, price)
}

// Execute builds calldata for the quote's route summary.
func (r *Route) Execute(ctx context.Context, qc domain.QuoteContext, params app.ExecParams) (*execdomain.TxRequest, error) {
	ctx, span := r.tracer.Start(ctx, "kyberswap.execute")
	defer span.End()

	q := qc.Quote
	if q == nil || len(q.Payload) == 0 {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("kyberswap quote has no routeSummary"))
	}
	if params.Sender == (common.Address{}) {
		return nil, apperror.New(apperror.CodeRequiredField,
			apperror.WithContext("sender"))
	}

	var data routesData
	if err := json.Unmarshal(q.Payload, &data); err != nil || len(data.RouteSummary) == 0 {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithCause(err),
			apperror.WithContext("kyberswap routeSummary"))
	}

	body := buildRequest{
		RouteSummary:      data.RouteSummary,
		Sender:            params.Sender.Hex(),
		Recipient:         params.RecipientOrSender().Hex(),
		SlippageTolerance: params.SlippageBps(),
	}
	var resp envelope[buildData]
	err := r.api.Post(ctx, "route/build", fmt.Sprintf("/%s/api/v1/route/build", r.chain), nil, body, &resp)
	if err == nil {
		err = resp.check()
	}
	if err != nil {
		return nil, apperror.New(apperror.CodeAssembleFailed,
			apperror.WithCause(err),
			apperror.WithContext(RouteID))
	}
	return resp.Data.toRequest(q)
}

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func (e envelope[T]) check() error {
	if e.Code == codeOK {
		return nil
	}
	return apperror.New(apperror.CodeExternalServiceError,
		apperror.WithContext(fmt.Sprintf("kyberswap code %d: %s", e.Code, e.Message)))
}

type routesData struct {
	RouteSummary  json.RawMessage `json:"routeSummary"`
	RouterAddress string          `json:"routerAddress"`
}

type routeSummary struct {
	AmountIn     string `json:"amountIn"`
	AmountInUSD  string `json:"amountInUsd"`
	AmountOut    string `json:"amountOut"`
	AmountOutUSD string `json:"amountOutUsd"`
	Gas          string `json:"gas"`
	GasPrice     string `json:"gasPrice"`
	GasUSD       string `json:"gasUsd"`
	RouteID      string `json:"routeID"`
}

type buildRequest struct {
	RouteSummary      json.RawMessage `json:"routeSummary"`
	Sender            string          `json:"sender"`
	Recipient         string          `json:"recipient"`
	SlippageTolerance int64           `json:"slippageTolerance"`
}

type buildData struct {
	AmountIn         string `json:"amountIn"`
	AmountOut        string `json:"amountOut"`
	Gas              string `json:"gas"`
	Data             string `json:"data"`
	RouterAddress    string `json:"routerAddress"`
	TransactionValue string `json:"transactionValue"`
}

func (b buildData) toRequest(q *domain.Quote) (*execdomain.TxRequest, error) {
	if !common.IsHexAddress(b.RouterAddress) {
		return nil, apperror.New(apperror.CodeAssembleFailed,
			apperror.WithContext(fmt.Sprintf("kyberswap returned invalid router %q", b.RouterAddress)))
	}
	data, err := hexutil.Decode(b.Data)
	if err != nil {
		return nil, apperror.New(apperror.CodeAssembleFailed,
			apperror.WithCause(err),
			apperror.WithContext("kyberswap calldata"))
	}
	value := new(big.Int)
	if b.TransactionValue != "" {
		if _, ok := value.SetString(b.TransactionValue, 10); !ok {
			return nil, apperror.New(apperror.CodeAssembleFailed,
				apperror.WithContext(fmt.Sprintf("kyberswap returned invalid value %q", b.TransactionValue)))
		}
	}

	router := common.HexToAddress(b.RouterAddress)
	req := &execdomain.TxRequest{To: router, Data: data, Value: value}
	if !app.IsNative(q.TokenIn) {
		if amount, ok := new(big.Int).SetString(q.AmountInRaw, 10); ok {
			req.Spender = router
			req.ApproveToken = q.TokenIn
			req.ApproveAmount = amount
		}
	}
	return req, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// priceImpact is 1 - amountOutUsd/amountInUsd, floored at zero.
func priceImpact(inUSD, outUSD decimal.Decimal) decimal.Decimal {
	if !inUSD.IsPositive() || outUSD.IsNegative() {
		return decimal.Zero
	}
	impact := decimal.NewFromInt(1).Sub(outUSD.Div(inUSD))
	if impact.IsNegative() {
		return decimal.Zero
	}
	return impact
}

func pathID(routeID string, payload []byte) string {
	if routeID != "" {
		return RouteID + ":" + routeID
	}
	return RouteID + ":" + crypto.Keccak256Hash(payload).Hex()
}
