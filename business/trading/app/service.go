package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/perp-router/business/trading/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/logger"
)

const tracerName = "trading"

// PreviewRequest describes a draft order as entered by a user. Empty
// strings mean "not set".
type PreviewRequest struct {
	Symbol            string
	Direction         domain.Direction
	Amount            string
	Leverage          string
	LimitPrice        string
	Balance           string
	TakeProfitPrice   string
	TakeProfitPercent string
	StopLossPrice     string
	StopLossPercent   string

	// MarkPrice overrides the price feed when non-zero.
	MarkPrice decimal.Decimal
}

// Preview is the derived state of a draft order.
type Preview struct {
	Symbol     string
	Direction  domain.Direction
	Leverage   decimal.Decimal
	Details    domain.TradeDetails
	TakeProfit domain.Target
	StopLoss   domain.Target
	Issues     []domain.Issue
}

// Valid reports whether the preview has no blocking issues.
func (p Preview) Valid() bool {
	return len(p.Issues) == 0
}

// Service computes order previews from live market data.
type Service struct {
	fees   FeeSource
	prices PriceSource
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewService creates a trading Service. fees and prices may be nil, in
// which case previews run on zero fees and require MarkPrice.
func NewService(fees FeeSource, prices PriceSource, log logger.LoggerInterface) *Service {
	return &Service{
		fees:   fees,
		prices: prices,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
}

// Preview builds an OrderForm from the request and returns its economics.
// Fee or price lookups that fail degrade to zero; input that cannot be
// applied to the form is an INVALID_INPUT error.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (Preview, error) {
	ctx, span := s.tracer.Start(ctx, "trading.preview",
		trace.WithAttributes(
			attribute.String("symbol", req.Symbol),
			attribute.String("direction", string(req.Direction)),
		),
	)
	defer span.End()

	form, err := s.buildForm(ctx, req)
	if err != nil {
		return Preview{}, err
	}

	fees := s.marketFees(ctx, req.Symbol)
	mark := req.MarkPrice
	if !mark.IsPositive() {
		mark = s.markPrice(ctx, req.Symbol)
	}

	return Preview{
		Symbol:     req.Symbol,
		Direction:  form.Direction(),
		Leverage:   form.Leverage(),
		Details:    form.Details(mark, fees),
		TakeProfit: form.TakeProfit(),
		StopLoss:   form.StopLoss(),
		Issues:     form.Validate(),
	}, nil
}

// ConvertRequest asks for one target representation from the other.
type ConvertRequest struct {
	Entry     decimal.Decimal
	Leverage  decimal.Decimal
	Direction domain.Direction
	Kind      domain.TargetKind
	Price     decimal.Decimal // set one of Price or Percent
	Percent   decimal.Decimal
}

// ConvertTarget fills in whichever of price or percent is missing.
func (s *Service) ConvertTarget(req ConvertRequest) (domain.Target, error) {
	if !req.Entry.IsPositive() || !req.Leverage.IsPositive() {
		return domain.Target{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("entry and leverage must be positive"))
	}
	if req.Price.IsPositive() {
		return domain.Target{
			Enabled: true,
			Price:   req.Price,
			Percent: domain.PercentFromPrice(req.Entry, req.Leverage, req.Price, req.Direction, req.Kind),
		}, nil
	}
	if req.Percent.IsNegative() {
		return domain.Target{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("percent must not be negative"))
	}
	return domain.Target{
		Enabled: true,
		Percent: req.Percent,
		Price:   domain.PriceFromPercent(req.Entry, req.Leverage, req.Percent, req.Direction, req.Kind),
	}, nil
}

func (s *Service) buildForm(ctx context.Context, req PreviewRequest) (*domain.OrderForm, error) {
	leverage, err := decimal.NewFromString(req.Leverage)
	if err != nil || !leverage.IsPositive() {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("invalid leverage %q", req.Leverage)))
	}
	dir := req.Direction
	if dir == "" {
		dir = domain.Long
	}

	form := domain.NewOrderForm(dir, leverage)
	if req.Balance != "" {
		balance, err := decimal.NewFromString(req.Balance)
		if err != nil {
			return nil, apperror.New(apperror.CodeInvalidInput,
				apperror.WithContext(fmt.Sprintf("invalid balance %q", req.Balance)))
		}
		form.SetBalance(balance)
	}

	entry := req.MarkPrice
	if !entry.IsPositive() {
		entry = s.markPrice(ctx, req.Symbol)
	}
	form.SetEntryPrice(entry)

	steps := []struct {
		field string
		value string
		apply func(string) bool
	}{
		{"limit_price", req.LimitPrice, form.SetLimitPrice},
		{"amount", req.Amount, form.SetAmount},
		{"take_profit_price", req.TakeProfitPrice, form.SetTakeProfitPrice},
		{"take_profit_percent", req.TakeProfitPercent, form.SetTakeProfitPercent},
		{"stop_loss_price", req.StopLossPrice, form.SetStopLossPrice},
		{"stop_loss_percent", req.StopLossPercent, form.SetStopLossPercent},
	}
	for _, step := range steps {
		if step.value == "" {
			continue
		}
		if !step.apply(step.value) {
			code := apperror.CodeInvalidInput
			if step.field == "amount" {
				code = apperror.CodeInsufficientMargin
			}
			return nil, apperror.New(code,
				apperror.WithContext(fmt.Sprintf("%s %q rejected", step.field, step.value)))
		}
	}

	return form, nil
}

func (s *Service) marketFees(ctx context.Context, symbol string) domain.MarketFees {
	if s.fees == nil {
		return domain.MarketFees{}
	}
	fees, err := s.fees.MarketFees(ctx, symbol)
	if err != nil {
		s.logger.Debug(ctx, "market fees unavailable", "symbol", symbol, "error", err)
		return domain.MarketFees{}
	}
	return fees
}

func (s *Service) markPrice(ctx context.Context, symbol string) decimal.Decimal {
	if s.prices == nil {
		return decimal.Zero
	}
	price, err := s.prices.Price(ctx, symbol)
	if err != nil {
		s.logger.Debug(ctx, "mark price unavailable", "symbol", symbol, "error", err)
		return decimal.Zero
	}
	return price
}

// IssuesError converts validation issues into an AppError, or nil.
func IssuesError(issues []domain.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	first := issues[0]
	opts := []apperror.Option{apperror.WithContext(first.Message)}
	for _, issue := range issues {
		opts = append(opts, apperror.WithDetail(string(issue.Code), issue.Message))
	}
	return apperror.New(issueCode(first.Code), opts...)
}

func issueCode(c domain.IssueCode) apperror.Code {
	switch c {
	case domain.IssueInsufficientMargin:
		return apperror.CodeInsufficientMargin
	case domain.IssueStopLossBeyondLiquidation:
		return apperror.CodeInvalidStopLoss
	case domain.IssueAmountExceedsBalance:
		return apperror.CodeAmountExceedsBalance
	default:
		return apperror.CodeValidationError
	}
}
