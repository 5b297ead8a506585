package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Target is one side of the take-profit/stop-loss pair. Price and Percent
// are always kept as inverses of each other.
type Target struct {
	Enabled bool
	Price   decimal.Decimal
	Percent decimal.Decimal
}

// IsSet reports whether a target value is present.
func (t Target) IsSet() bool {
	return t.Price.IsPositive()
}

// IssueCode identifies an order validation failure.
type IssueCode string

const (
	IssueInsufficientMargin        IssueCode = "insufficient_margin"
	IssueStopLossBeyondLiquidation IssueCode = "stop_loss_beyond_liquidation"
	IssueAmountExceedsBalance      IssueCode = "amount_exceeds_balance"
)

// Issue is a validation failure that blocks submission.
type Issue struct {
	Code    IssueCode
	Message string
}

// OrderForm is the draft state of an order. Amount, margin and slider are
// kept consistent with leverage and balance by the setters, which are the
// only way to change them. A setter returning false left the form untouched.
type OrderForm struct {
	direction Direction
	leverage  decimal.Decimal
	balance   decimal.Decimal

	amount decimal.Decimal
	margin decimal.Decimal
	slider decimal.Decimal

	limitPrice decimal.Decimal
	entryPrice decimal.Decimal

	takeProfit Target
	stopLoss   Target
}

// NewOrderForm returns an empty form.
func NewOrderForm(dir Direction, leverage decimal.Decimal) *OrderForm {
	if !leverage.IsPositive() {
		leverage = decimal.NewFromInt(1)
	}
	return &OrderForm{direction: dir, leverage: leverage}
}

func (f *OrderForm) Direction() Direction        { return f.direction }
func (f *OrderForm) Leverage() decimal.Decimal   { return f.leverage }
func (f *OrderForm) Balance() decimal.Decimal    { return f.balance }
func (f *OrderForm) Amount() decimal.Decimal     { return f.amount }
func (f *OrderForm) Margin() decimal.Decimal     { return f.margin }
func (f *OrderForm) Slider() decimal.Decimal     { return f.slider }
func (f *OrderForm) LimitPrice() decimal.Decimal { return f.limitPrice }
func (f *OrderForm) EntryPrice() decimal.Decimal { return f.entryPrice }
func (f *OrderForm) TakeProfit() Target          { return f.takeProfit }
func (f *OrderForm) StopLoss() Target            { return f.stopLoss }

// MaxLeveragedAmount returns balance * leverage.
func (f *OrderForm) MaxLeveragedAmount() decimal.Decimal {
	return MaxLeveragedAmount(f.balance, f.leverage)
}

// ReferencePrice is the limit price when set, otherwise the entry snapshot.
func (f *OrderForm) ReferencePrice() decimal.Decimal {
	if f.limitPrice.IsPositive() {
		return f.limitPrice
	}
	return f.entryPrice
}

// SetAmount sets the notional amount and derives margin and slider.
// An empty string clears the amount.
func (f *OrderForm) SetAmount(s string) bool {
	if isBlank(s) {
		f.clearAmount()
		return true
	}
	amount, ok := parseNonNegative(s)
	if !ok {
		return false
	}
	return f.applyAmount(amount)
}

// SetMargin sets the margin and derives amount and slider.
func (f *OrderForm) SetMargin(s string) bool {
	if isBlank(s) {
		f.clearAmount()
		return true
	}
	margin, ok := parseNonNegative(s)
	if !ok {
		return false
	}
	if margin.LessThan(MinMargin) {
		return false
	}
	f.margin = margin
	f.amount = AmountFromMargin(margin, f.leverage)
	f.slider = SliderFromAmount(f.amount, f.MaxLeveragedAmount())
	return true
}

// SetSlider sets the slider percentage and derives amount and margin.
func (f *OrderForm) SetSlider(pct decimal.Decimal) bool {
	pct = clampPercent(pct)
	amount := AmountFromSlider(f.MaxLeveragedAmount(), pct)
	if amount.IsZero() {
		f.clearAmount()
		return true
	}
	margin := MarginFromAmount(amount, f.leverage)
	if margin.LessThan(MinMargin) {
		return false
	}
	f.amount, f.margin, f.slider = amount, margin, pct
	return true
}

// SetLeverage changes leverage. The slider is durable: amount is rederived
// from it against the new max leveraged amount.
func (f *OrderForm) SetLeverage(leverage decimal.Decimal) bool {
	if !leverage.IsPositive() {
		return false
	}
	prevMax := f.MaxLeveragedAmount()
	f.leverage = leverage
	f.rederive(prevMax)
	f.refreshTargets()
	return true
}

// SetBalance updates the account balance, keeping the slider durable.
func (f *OrderForm) SetBalance(balance decimal.Decimal) {
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	prevMax := f.MaxLeveragedAmount()
	f.balance = balance
	f.rederive(prevMax)
}

// SetDirection flips the side. Target percentages are kept and prices
// recomputed for the new side.
func (f *OrderForm) SetDirection(dir Direction) {
	f.direction = dir
	f.refreshTargets()
}

// SetEntryPrice records the price snapshot targets are measured from.
func (f *OrderForm) SetEntryPrice(price decimal.Decimal) {
	if price.IsNegative() {
		price = decimal.Zero
	}
	f.entryPrice = price
	f.refreshTargets()
}

// SetLimitPrice sets or, with an empty string, clears the limit price.
func (f *OrderForm) SetLimitPrice(s string) bool {
	if isBlank(s) {
		f.limitPrice = decimal.Zero
		f.refreshTargets()
		return true
	}
	price, ok := parseNonNegative(s)
	if !ok || price.IsZero() {
		return false
	}
	f.limitPrice = price
	f.refreshTargets()
	return true
}

// EnableTakeProfit toggles the take-profit target.
func (f *OrderForm) EnableTakeProfit(on bool) { f.takeProfit.Enabled = on }

// EnableStopLoss toggles the stop-loss target.
func (f *OrderForm) EnableStopLoss(on bool) { f.stopLoss.Enabled = on }

// SetTakeProfitPrice sets the take-profit price and derives its percentage.
func (f *OrderForm) SetTakeProfitPrice(s string) bool {
	return f.setTargetPrice(&f.takeProfit, TakeProfit, s)
}

// SetTakeProfitPercent sets the take-profit gain percentage and derives its price.
func (f *OrderForm) SetTakeProfitPercent(s string) bool {
	return f.setTargetPercent(&f.takeProfit, TakeProfit, s)
}

// SetStopLossPrice sets the stop-loss price and derives its percentage.
func (f *OrderForm) SetStopLossPrice(s string) bool {
	return f.setTargetPrice(&f.stopLoss, StopLoss, s)
}

// SetStopLossPercent sets the stop-loss loss percentage and derives its price.
func (f *OrderForm) SetStopLossPercent(s string) bool {
	return f.setTargetPercent(&f.stopLoss, StopLoss, s)
}

// LiquidationPrice for the current reference price.
func (f *OrderForm) LiquidationPrice() decimal.Decimal {
	return LiquidationPrice(f.ReferencePrice(), f.leverage, f.direction)
}

// Details derives the trade economics for the current form.
func (f *OrderForm) Details(marketPrice decimal.Decimal, fees MarketFees) TradeDetails {
	return ComputeTradeDetails(TradeInput{
		Amount:      f.amount,
		Leverage:    f.leverage,
		MarketPrice: marketPrice,
		LimitPrice:  f.limitPrice,
		Direction:   f.direction,
		Fees:        fees,
	})
}

// Validate returns every issue that blocks submission.
func (f *OrderForm) Validate() []Issue {
	var issues []Issue

	if f.amount.IsPositive() && f.margin.LessThan(MinMargin) {
		issues = append(issues, Issue{
			Code:    IssueInsufficientMargin,
			Message: "margin is below the minimum of " + MinMargin.String(),
		})
	}
	if f.amount.IsPositive() && f.margin.GreaterThan(f.balance) {
		issues = append(issues, Issue{
			Code:    IssueAmountExceedsBalance,
			Message: "margin " + f.margin.StringFixed(2) + " exceeds balance " + f.balance.StringFixed(2),
		})
	}
	if f.stopLoss.Enabled && f.stopLoss.IsSet() {
		liq := f.LiquidationPrice()
		if StopLossBeyondLiquidation(f.stopLoss.Price, liq, f.direction) {
			issues = append(issues, Issue{
				Code:    IssueStopLossBeyondLiquidation,
				Message: "stop loss " + f.stopLoss.Price.String() + " is beyond liquidation price " + liq.StringFixed(4),
			})
		}
	}

	return issues
}

func (f *OrderForm) applyAmount(amount decimal.Decimal) bool {
	if amount.IsZero() {
		f.clearAmount()
		return true
	}
	margin := MarginFromAmount(amount, f.leverage)
	if margin.LessThan(MinMargin) {
		return false
	}
	f.amount = amount
	f.margin = margin
	f.slider = SliderFromAmount(amount, f.MaxLeveragedAmount())
	return true
}

// rederive recomputes amount after max leveraged amount changed. When no
// max was known before, the typed amount is kept and the slider derived.
func (f *OrderForm) rederive(prevMax decimal.Decimal) {
	newMax := f.MaxLeveragedAmount()
	if prevMax.IsZero() || newMax.IsZero() {
		f.margin = MarginFromAmount(f.amount, f.leverage)
		f.slider = SliderFromAmount(f.amount, newMax)
		return
	}
	if f.slider.IsZero() {
		f.margin = MarginFromAmount(f.amount, f.leverage)
		return
	}
	f.amount = AmountFromSlider(newMax, f.slider)
	f.margin = MarginFromAmount(f.amount, f.leverage)
}

func (f *OrderForm) clearAmount() {
	f.amount = decimal.Zero
	f.margin = decimal.Zero
	f.slider = decimal.Zero
}

func (f *OrderForm) setTargetPrice(t *Target, k TargetKind, s string) bool {
	if isBlank(s) {
		t.Price, t.Percent = decimal.Zero, decimal.Zero
		return true
	}
	price, ok := parseNonNegative(s)
	if !ok || price.IsZero() {
		return false
	}
	t.Price = price
	t.Percent = PercentFromPrice(f.ReferencePrice(), f.leverage, price, f.direction, k)
	t.Enabled = true
	return true
}

func (f *OrderForm) setTargetPercent(t *Target, k TargetKind, s string) bool {
	if isBlank(s) {
		t.Price, t.Percent = decimal.Zero, decimal.Zero
		return true
	}
	pct, ok := parseNonNegative(s)
	if !ok {
		return false
	}
	t.Percent = pct
	t.Price = PriceFromPercent(f.ReferencePrice(), f.leverage, pct, f.direction, k)
	t.Enabled = true
	return true
}

// refreshTargets recomputes target prices from their percentages. A target
// typed as a price before the reference price was known gets its
// percentage derived instead.
func (f *OrderForm) refreshTargets() {
	ref := f.ReferencePrice()
	f.refreshTarget(&f.takeProfit, TakeProfit, ref)
	f.refreshTarget(&f.stopLoss, StopLoss, ref)
}

func (f *OrderForm) refreshTarget(t *Target, k TargetKind, ref decimal.Decimal) {
	switch {
	case t.Percent.IsPositive():
		t.Price = PriceFromPercent(ref, f.leverage, t.Percent, f.direction, k)
	case t.Price.IsPositive() && ref.IsPositive():
		t.Percent = PercentFromPrice(ref, f.leverage, t.Price, f.direction, k)
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func parseNonNegative(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}
