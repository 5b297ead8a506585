// Package paraswap implements the Paraswap aggregator route.
package paraswap

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
	RouteID = "paraswap"

	tracerName = "routing.paraswap"
)

// Config configures the route.
type Config struct {
	BaseURL      string
	APIKey       string
	Partner      string
	ChainID      uint64
	Timeout      time.Duration
	RateLimitRPM int
}

// Route quotes through GET /prices and assembles through
// POST /transactions/{network}.
type Route struct {
	api    *apiclient.Client
	cfg    Config
	gas    app.GasPricer
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// New creates a Paraswap route. gas may be nil, in which case quotes carry
// no native gas cost.
func New(cfg Config, gas app.GasPricer, log logger.LoggerInterface) (*Route, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("paraswap base url is required"))
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["X-API-KEY"] = cfg.APIKey
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
		cfg:    cfg,
		gas:    gas,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}, nil
}

func (r *Route) ID() string   { return RouteID }
func (r *Route) Name() string { return "Paraswap" }

// Quote prices req with a SELL-side price route.
func (r *Route) Quote(ctx context.Context, req app.QuoteRequest) (*domain.Quote, error) {
	ctx, span := r.tracer.Start(ctx, "paraswap.quote",
		trace.WithAttributes(
			attribute.String("token_in", req.TokenIn.Hex()),
			attribute.String("token_out", req.TokenOut.Hex()),
			attribute.String("amount", req.Amount),
		),
	)
	defer span.End()

	amountIn, err := req.AmountInRaw()
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithCause(err),
			apperror.WithContext("paraswap amount"))
	}

	query := map[string]string{
		"srcToken":     req.TokenIn.Hex(),
		"destToken":    req.TokenOut.Hex(),
		"amount":       amountIn.String(),
		"srcDecimals":  strconv.Itoa(int(req.DecimalsIn)),
		"destDecimals": strconv.Itoa(int(req.DecimalsOut)),
		"side":         "SELL",
		"network":      strconv.FormatUint(r.cfg.ChainID, 10),
	}
	if r.cfg.Partner != "" {
		query["partner"] = r.cfg.Partner
	}

	var resp pricesResponse
	if err := r.api.Get(ctx, "prices", "/prices", query, &resp); err != nil {
		return nil, err
	}
	if len(resp.PriceRoute) == 0 {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("paraswap returned no priceRoute"))
	}

	var pr priceRoute
	if err := json.Unmarshal(resp.PriceRoute, &pr); err != nil {
		return nil, apperror.New(apperror.CodeInvalidFormat,
			apperror.WithCause(err),
			apperror.WithContext("paraswap priceRoute"))
	}

	out, err := asset.FromBaseUnits(pr.DestAmount, req.DecimalsOut)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithCause(err),
			apperror.WithContext("paraswap destAmount"))
	}

	gasUnits, _ := strconv.ParseUint(pr.GasCost, 10, 64)
	q := &domain.Quote{
		RouteID:      RouteID,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     asset.TrimDecimal(req.Amount),
		AmountOut:    asset.TrimDecimal(out),
		AmountInRaw:  amountIn.String(),
		AmountOutRaw: pr.DestAmount,
		GasUnits:     gasUnits,
		GasUSD:       parseDecimal(pr.GasCostUSD),
		PriceImpact:  priceImpact(parseDecimal(pr.SrcUSD), parseDecimal(pr.DestUSD)),
		PathID:       pathID(pr.HMAC, resp.PriceRoute),
		BlockNumber:  pr.BlockNumber,
		Payload:      resp.PriceRoute,
	}
	if r.gas != nil && gasUnits > 0 {
		if price, err := r.gas.SuggestGasPrice(ctx); err == nil {
			q.GasNative = domain.GasCost(gasUnits, price)
		} else {
			r.logger.Debug(ctx, "gas price unavailable", "route", RouteID, "error", err)
		}
	}

	span.SetAttributes(attribute.String("amount_out", q.AmountOut))
	return q, nil
}

// Execute posts the quote's price route back to Paraswap for calldata.
func (r *Route) Execute(ctx context.Context, qc domain.QuoteContext, params app.ExecParams) (*execdomain.TxRequest, error) {
	ctx, span := r.tracer.Start(ctx, "paraswap.execute")
	defer span.End()

	q := qc.Quote
	if q == nil || len(q.Payload) == 0 {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("paraswap quote has no priceRoute"))
	}
	if params.Sender == (common.Address{}) {
		return nil, apperror.New(apperror.CodeRequiredField,
			apperror.WithContext("sender"))
	}

	var pr priceRoute
	if err := json.Unmarshal(q.Payload, &pr); err != nil {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithCause(err),
			apperror.WithContext("paraswap priceRoute"))
	}

	body := transactionRequest{
		SrcToken:     q.TokenIn.Hex(),
		DestToken:    q.TokenOut.Hex(),
		SrcAmount:    q.AmountInRaw,
		SrcDecimals:  pr.SrcDecimals,
		DestDecimals: pr.DestDecimals,
		Slippage:     params.SlippageBps(),
		PriceRoute:   q.Payload,
		UserAddress:  params.Sender.Hex(),
		Receiver:     params.RecipientOrSender().Hex(),
		Partner:      r.cfg.Partner,
	}
	path := fmt.Sprintf("/transactions/%d", r.cfg.ChainID)

	var tx transactionResponse
	if err := r.api.Post(ctx, "transactions", path, map[string]string{"ignoreChecks": "true"}, body, &tx); err != nil {
		return nil, apperror.New(apperror.CodeAssembleFailed,
			apperror.WithCause(err),
			apperror.WithContext(RouteID))
	}
	return tx.toRequest(q, pr)
}

type pricesResponse struct {
	PriceRoute json.RawMessage `json:"priceRoute"`
}

type priceRoute struct {
	BlockNumber        uint64 `json:"blockNumber"`
	SrcDecimals        int    `json:"srcDecimals"`
	DestDecimals       int    `json:"destDecimals"`
	SrcAmount          string `json:"srcAmount"`
	DestAmount         string `json:"destAmount"`
	GasCost            string `json:"gasCost"`
	GasCostUSD         string `json:"gasCostUSD"`
	SrcUSD             string `json:"srcUSD"`
	DestUSD            string `json:"destUSD"`
	TokenTransferProxy string `json:"tokenTransferProxy"`
	ContractAddress    string `json:"contractAddress"`
	HMAC               string `json:"hmac"`
}

type transactionRequest struct {
	SrcToken     string          `json:"srcToken"`
	DestToken    string          `json:"destToken"`
	SrcAmount    string          `json:"srcAmount"`
	SrcDecimals  int             `json:"srcDecimals"`
	DestDecimals int             `json:"destDecimals"`
	Slippage     int64           `json:"slippage"`
	PriceRoute   json.RawMessage `json:"priceRoute"`
	UserAddress  string          `json:"userAddress"`
	Receiver     string          `json:"receiver,omitempty"`
	Partner      string          `json:"partner,omitempty"`
}

type transactionResponse struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

func (t transactionResponse) toRequest(q *domain.Quote, pr priceRoute) (*execdomain.TxRequest, error) {
	if !common.IsHexAddress(t.To) {
		return nil, apperror.New(apperror.CodeAssembleFailed,
			apperror.WithContext(fmt.Sprintf("paraswap returned invalid to %q", t.To)))
	}
	data, err := hexutil.Decode(t.Data)
	if err != nil {
		return nil, apperror.New(apperror.CodeAssembleFailed,
			apperror.WithCause(err),
			apperror.WithContext("paraswap calldata"))
	}
	value, ok := new(big.Int).SetString(defaultZero(t.Value), 10)
	if !ok {
		return nil, apperror.New(apperror.CodeAssembleFailed,
			apperror.WithContext(fmt.Sprintf("paraswap returned invalid value %q", t.Value)))
	}

	req := &execdomain.TxRequest{
		To:    common.HexToAddress(t.To),
		Data:  data,
		Value: value,
	}
	if !app.IsNative(q.TokenIn) && common.IsHexAddress(pr.TokenTransferProxy) {
		amount, ok := new(big.Int).SetString(q.AmountInRaw, 10)
		if ok {
			req.Spender = common.HexToAddress(pr.TokenTransferProxy)
			req.ApproveToken = q.TokenIn
			req.ApproveAmount = amount
		}
	}
	return req, nil
}

func defaultZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// priceImpact is 1 - destUSD/srcUSD, floored at zero.
func priceImpact(srcUSD, destUSD decimal.Decimal) decimal.Decimal {
	if !srcUSD.IsPositive() || destUSD.IsNegative() {
		return decimal.Zero
	}
	impact := decimal.NewFromInt(1).Sub(destUSD.Div(srcUSD))
	if impact.IsNegative() {
		return decimal.Zero
	}
	return impact
}

func pathID(hmac string, payload []byte) string {
	if hmac != "" {
		return RouteID + ":" + hmac
	}
	return RouteID + ":" + crypto.Keccak256Hash(payload).Hex()
}
