package api

import (
	"time"

	"github.com/shopspring/decimal"

	execdomain "github.com/fd1az/perp-router/business/execution/domain"
	marketsdomain "github.com/fd1az/perp-router/business/markets/domain"
	pricingdomain "github.com/fd1az/perp-router/business/pricing/domain"
	routingapp "github.com/fd1az/perp-router/business/routing/app"
	routingdomain "github.com/fd1az/perp-router/business/routing/domain"
	tradingapp "github.com/fd1az/perp-router/business/trading/app"
	tradingdomain "github.com/fd1az/perp-router/business/trading/domain"
)

// Decimals travel as strings so clients never lose precision.

type priceView struct {
	Symbol    string    `json:"symbol"`
	Price     string    `json:"price"`
	ChangeBps string    `json:"change_bps"`
	Direction string    `json:"direction"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toPriceView(q pricingdomain.Quote) priceView {
	return priceView{
		Symbol:    q.Symbol,
		Price:     q.Price.String(),
		ChangeBps: q.Change.BasisPoints.StringFixed(2),
		Direction: string(q.Change.Direction),
		UpdatedAt: q.ReceivedAt,
	}
}

type marketView struct {
	PairID          uint64    `json:"pair_id"`
	Symbol          string    `json:"symbol"`
	FundingRate     string    `json:"funding_rate"`
	LongBorrowRate  string    `json:"long_borrow_rate"`
	ShortBorrowRate string    `json:"short_borrow_rate"`
	LongOI          string    `json:"long_oi"`
	ShortOI         string    `json:"short_oi"`
	MaxLongOI       string    `json:"max_long_oi"`
	MaxShortOI      string    `json:"max_short_oi"`
	LongFee         string    `json:"long_fee"`
	ShortFee        string    `json:"short_fee"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toMarketView(m marketsdomain.MarketInfo) marketView {
	return marketView{
		PairID:          m.PairID,
		Symbol:          m.Symbol,
		FundingRate:     m.FundingRate.String(),
		LongBorrowRate:  m.LongBorrowRate.String(),
		ShortBorrowRate: m.ShortBorrowRate.String(),
		LongOI:          m.LongOI.String(),
		ShortOI:         m.ShortOI.String(),
		MaxLongOI:       m.MaxLongOI.String(),
		MaxShortOI:      m.MaxShortOI.String(),
		LongFee:         m.LongFee.String(),
		ShortFee:        m.ShortFee.String(),
		UpdatedAt:       m.UpdatedAt,
	}
}

type routeInfoView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Fee       string `json:"fee,omitempty"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type routesResponse struct {
	Pair      string          `json:"pair"`
	Direction string          `json:"direction"`
	Routes    []routeInfoView `json:"routes"`
	Best      string          `json:"best,omitempty"`
}

func toRouteInfoViews(routes []routingdomain.RouteInfo) []routeInfoView {
	out := make([]routeInfoView, 0, len(routes))
	for _, r := range routes {
		v := routeInfoView{ID: r.ID, Name: r.Name, Available: r.Available, Reason: r.Reason}
		if r.Available {
			v.Fee = r.Fee.String()
		}
		out = append(out, v)
	}
	return out
}

type quoteRequest struct {
	In     string `json:"in" binding:"required"`
	Out    string `json:"out" binding:"required"`
	Amount string `json:"amount"`
}

type quoteView struct {
	Route        string    `json:"route"`
	TokenIn      string    `json:"token_in"`
	TokenOut     string    `json:"token_out"`
	AmountIn     string    `json:"amount_in"`
	AmountOut    string    `json:"amount_out"`
	AmountOutRaw string    `json:"amount_out_raw"`
	GasNative    string    `json:"gas_native"`
	GasUSD       string    `json:"gas_usd"`
	PriceImpact  string    `json:"price_impact"`
	PathID       string    `json:"path_id"`
	Seq          uint64    `json:"seq,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

func toQuoteView(q *routingdomain.Quote) *quoteView {
	if q == nil {
		return nil
	}
	return &quoteView{
		Route:        q.RouteID,
		TokenIn:      q.TokenIn.Hex(),
		TokenOut:     q.TokenOut.Hex(),
		AmountIn:     q.AmountIn,
		AmountOut:    q.AmountOut,
		AmountOutRaw: q.AmountOutRaw,
		GasNative:    q.GasNative.String(),
		GasUSD:       q.GasUSD.StringFixed(4),
		PriceImpact:  q.PriceImpact.String(),
		PathID:       q.PathID,
		Seq:          q.Seq,
		FetchedAt:    q.FetchedAt,
	}
}

type quoteStateView struct {
	Source  string     `json:"source"`
	Loading bool       `json:"loading"`
	Error   string     `json:"error,omitempty"`
	Quote   *quoteView `json:"quote,omitempty"`
}

func toStateViews(states []routingdomain.QuoteState) []quoteStateView {
	out := make([]quoteStateView, 0, len(states))
	for _, st := range states {
		out = append(out, quoteStateView{
			Source:  st.Source,
			Loading: st.Loading,
			Error:   st.ErrString(),
			Quote:   toQuoteView(st.Quote),
		})
	}
	return out
}

type quotesResponse struct {
	States []quoteStateView `json:"states"`
	Best   string           `json:"best,omitempty"`
	Quote  *quoteView       `json:"quote,omitempty"`
}

type sessionView struct {
	ID        string           `json:"id"`
	Seq       uint64           `json:"seq"`
	Amount    string           `json:"amount"`
	Best      string           `json:"best,omitempty"`
	Loading   bool             `json:"loading"`
	States    []quoteStateView `json:"states"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func toSessionView(s routingapp.Snapshot) sessionView {
	return sessionView{
		ID:        s.SessionID,
		Seq:       s.Seq,
		Amount:    s.Request.Amount,
		Best:      s.Best,
		Loading:   s.Loading,
		States:    toStateViews(s.States),
		UpdatedAt: s.UpdatedAt,
	}
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type previewRequest struct {
	Pair              string `json:"pair" binding:"required"`
	Direction         string `json:"direction"`
	Amount            string `json:"amount"`
	Leverage          string `json:"leverage" binding:"required"`
	LimitPrice        string `json:"limit_price"`
	Balance           string `json:"balance"`
	MarkPrice         string `json:"mark_price"`
	TakeProfitPrice   string `json:"tp_price"`
	TakeProfitPercent string `json:"tp_percent"`
	StopLossPrice     string `json:"sl_price"`
	StopLossPercent   string `json:"sl_percent"`
}

type targetView struct {
	Enabled bool   `json:"enabled"`
	Price   string `json:"price"`
	Percent string `json:"percent"`
}

func toTargetView(t tradingdomain.Target) targetView {
	return targetView{Enabled: t.Enabled, Price: t.Price.String(), Percent: t.Percent.String()}
}

type issueView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type previewResponse struct {
	Pair             string      `json:"pair"`
	Direction        string      `json:"direction"`
	Leverage         string      `json:"leverage"`
	EntryPrice       string      `json:"entry_price"`
	Size             string      `json:"size"`
	Notional         string      `json:"notional"`
	Margin           string      `json:"margin"`
	LiquidationPrice string      `json:"liquidation_price"`
	TradingFee       string      `json:"trading_fee"`
	HourlyInterest   string      `json:"hourly_interest"`
	TakeProfit       targetView  `json:"take_profit"`
	StopLoss         targetView  `json:"stop_loss"`
	Issues           []issueView `json:"issues"`
	Valid            bool        `json:"valid"`
}

func toPreviewResponse(p tradingapp.Preview) previewResponse {
	d := p.Details
	out := previewResponse{
		Pair:             p.Symbol,
		Direction:        string(p.Direction),
		Leverage:         p.Leverage.String(),
		EntryPrice:       d.EntryPrice.String(),
		Size:             d.Size.String(),
		Notional:         d.Notional.String(),
		Margin:           d.Margin.String(),
		LiquidationPrice: d.LiquidationPrice.String(),
		TradingFee:       d.TradingFee.String(),
		HourlyInterest:   d.HourlyInterest.String(),
		TakeProfit:       toTargetView(p.TakeProfit),
		StopLoss:         toTargetView(p.StopLoss),
		Issues:           make([]issueView, 0, len(p.Issues)),
		Valid:            p.Valid(),
	}
	for _, i := range p.Issues {
		out.Issues = append(out.Issues, issueView{Code: string(i.Code), Message: i.Message})
	}
	return out
}

type convertRequest struct {
	Entry     string `json:"entry" binding:"required"`
	Leverage  string `json:"leverage" binding:"required"`
	Direction string `json:"direction"`
	Kind      string `json:"kind" binding:"required"` // take_profit | stop_loss
	Price     string `json:"price"`
	Percent   string `json:"percent"`
}

type executeSwapRequest struct {
	SessionID string `json:"session_id"`
	Route     string `json:"route"`
	In        string `json:"in"`
	Out       string `json:"out"`
	Amount    string `json:"amount"`
	Slippage  string `json:"slippage"` // fraction, 0.005 = 0.5%
	Recipient string `json:"recipient"`
}

type receiptView struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	Status      string `json:"status"`
	GasUsed     uint64 `json:"gas_used"`
}

func toReceiptView(r *execdomain.Receipt) receiptView {
	status := "reverted"
	if r.Succeeded() {
		status = "success"
	}
	return receiptView{
		TxHash:      r.Hash.Hex(),
		BlockNumber: r.BlockNumber,
		Status:      status,
		GasUsed:     r.GasUsed,
	}
}

// parseDecimal parses s, treating "" as zero.
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
