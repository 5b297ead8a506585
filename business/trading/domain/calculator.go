package domain

import (
	"github.com/shopspring/decimal"
)

var (
	// MaintenanceLossFraction is the share of margin that can be lost before
	// a position is liquidated.
	MaintenanceLossFraction = decimal.RequireFromString("0.9")

	// MinMargin is the smallest margin, in account currency, an order may carry.
	MinMargin = decimal.NewFromInt(1)

	hundred = decimal.NewFromInt(100)
)

const (
	// marginScale bounds the precision of amount/leverage divisions.
	marginScale = 18
	// amountScale is the precision amounts are rounded back to after a
	// margin to amount conversion, absorbing division residue.
	amountScale = 12
)

// MarginFromAmount returns amount / leverage, or zero for a non-positive leverage.
func MarginFromAmount(amount, leverage decimal.Decimal) decimal.Decimal {
	if !leverage.IsPositive() || amount.IsNegative() {
		return decimal.Zero
	}
	return amount.DivRound(leverage, marginScale)
}

// AmountFromMargin returns margin * leverage.
func AmountFromMargin(margin, leverage decimal.Decimal) decimal.Decimal {
	if !leverage.IsPositive() || margin.IsNegative() {
		return decimal.Zero
	}
	return margin.Mul(leverage).Round(amountScale)
}

// MaxLeveragedAmount returns balance * leverage.
func MaxLeveragedAmount(balance, leverage decimal.Decimal) decimal.Decimal {
	if !balance.IsPositive() || !leverage.IsPositive() {
		return decimal.Zero
	}
	return balance.Mul(leverage)
}

// SliderFromAmount returns amount as a percentage of maxLeveraged, clamped to [0, 100].
func SliderFromAmount(amount, maxLeveraged decimal.Decimal) decimal.Decimal {
	if !maxLeveraged.IsPositive() || !amount.IsPositive() {
		return decimal.Zero
	}
	return clampPercent(amount.Div(maxLeveraged).Mul(hundred))
}

// AmountFromSlider returns maxLeveraged * pct / 100 with pct clamped to [0, 100].
func AmountFromSlider(maxLeveraged, pct decimal.Decimal) decimal.Decimal {
	if !maxLeveraged.IsPositive() {
		return decimal.Zero
	}
	return maxLeveraged.Mul(clampPercent(pct)).Div(hundred)
}

// LiquidationPrice returns the price at which MaintenanceLossFraction of the
// margin is lost:
//
//	long:  price * (1 - 0.9/leverage)
//	short: price * (1 + 0.9/leverage)
//
// Returns zero for missing inputs. A long below 0.9x leverage floors at zero.
func LiquidationPrice(price, leverage decimal.Decimal, dir Direction) decimal.Decimal {
	if !price.IsPositive() || !leverage.IsPositive() {
		return decimal.Zero
	}
	move := MaintenanceLossFraction.Div(leverage)
	if dir.IsLong() {
		liq := price.Mul(decimal.NewFromInt(1).Sub(move))
		if liq.IsNegative() {
			return decimal.Zero
		}
		return liq
	}
	return price.Mul(decimal.NewFromInt(1).Add(move))
}

// movesUp reports whether a target of kind k sits above entry for dir.
func movesUp(dir Direction, k TargetKind) bool {
	return (k == TakeProfit) == dir.IsLong()
}

// PriceFromPercent converts a gain (take-profit) or loss (stop-loss)
// percentage of margin into an absolute price. The required price move is
// pct / leverage percent of entry.
func PriceFromPercent(entry, leverage, pct decimal.Decimal, dir Direction, k TargetKind) decimal.Decimal {
	if !entry.IsPositive() || !leverage.IsPositive() {
		return decimal.Zero
	}
	move := pct.Div(leverage).Div(hundred)
	var price decimal.Decimal
	if movesUp(dir, k) {
		price = entry.Mul(decimal.NewFromInt(1).Add(move))
	} else {
		price = entry.Mul(decimal.NewFromInt(1).Sub(move))
	}
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}

// PercentFromPrice is the inverse of PriceFromPercent. The result is the
// share of margin at stake: positive gain for a healthy take-profit and
// positive loss for a stop-loss placed on the losing side of entry.
func PercentFromPrice(entry, leverage, price decimal.Decimal, dir Direction, k TargetKind) decimal.Decimal {
	if !entry.IsPositive() || !leverage.IsPositive() || !price.IsPositive() {
		return decimal.Zero
	}
	pct := price.Sub(entry).Div(entry).Mul(hundred).Mul(leverage)
	if !movesUp(dir, k) {
		pct = pct.Neg()
	}
	return pct
}

// StopLossBeyondLiquidation reports whether a stop-loss would only trigger
// after liquidation: long sl <= liq, short sl >= liq.
func StopLossBeyondLiquidation(stopLoss, liquidation decimal.Decimal, dir Direction) bool {
	if !stopLoss.IsPositive() || !liquidation.IsPositive() {
		return false
	}
	if dir.IsLong() {
		return stopLoss.LessThanOrEqual(liquidation)
	}
	return stopLoss.GreaterThanOrEqual(liquidation)
}

// MarketFees holds the fee and rate inputs for one market. Fees are
// fractions; borrow and funding rates are hourly percentages.
type MarketFees struct {
	LongFee     decimal.Decimal
	ShortFee    decimal.Decimal
	LongBorrow  decimal.Decimal
	ShortBorrow decimal.Decimal
	FundingRate decimal.Decimal
}

// FeeFor returns the trading fee fraction for dir.
func (f MarketFees) FeeFor(dir Direction) decimal.Decimal {
	if dir.IsLong() {
		return f.LongFee
	}
	return f.ShortFee
}

// BorrowFor returns the borrow rate for dir.
func (f MarketFees) BorrowFor(dir Direction) decimal.Decimal {
	if dir.IsLong() {
		return f.LongBorrow
	}
	return f.ShortBorrow
}

// TradingFee returns size * fee[dir].
func TradingFee(size decimal.Decimal, fees MarketFees, dir Direction) decimal.Decimal {
	if !size.IsPositive() {
		return decimal.Zero
	}
	return size.Mul(fees.FeeFor(dir))
}

// EffectiveFundingRate flips the funding sign for longs.
func EffectiveFundingRate(rate decimal.Decimal, dir Direction) decimal.Decimal {
	if dir.IsLong() {
		return rate.Neg()
	}
	return rate
}

// HourlyInterest returns size * (borrow[dir] + effective funding) / 100.
func HourlyInterest(size decimal.Decimal, fees MarketFees, dir Direction) decimal.Decimal {
	if !size.IsPositive() {
		return decimal.Zero
	}
	rate := fees.BorrowFor(dir).Add(EffectiveFundingRate(fees.FundingRate, dir))
	return size.Mul(rate).Div(hundred)
}

// TradeInput is everything ComputeTradeDetails needs.
type TradeInput struct {
	Amount      decimal.Decimal // notional, account currency
	Leverage    decimal.Decimal
	MarketPrice decimal.Decimal
	LimitPrice  decimal.Decimal // zero for market orders
	Direction   Direction
	Fees        MarketFees
}

// TradeDetails are the derived economics of a draft order.
type TradeDetails struct {
	EntryPrice       decimal.Decimal
	Size             decimal.Decimal // asset units, amount / entry
	Notional         decimal.Decimal
	Margin           decimal.Decimal
	LiquidationPrice decimal.Decimal
	TradingFee       decimal.Decimal
	HourlyInterest   decimal.Decimal
}

// EntryPrice returns the limit price when set, otherwise the market price.
func (in TradeInput) EntryPrice() decimal.Decimal {
	if in.LimitPrice.IsPositive() {
		return in.LimitPrice
	}
	return in.MarketPrice
}

// ComputeTradeDetails derives TradeDetails. Fees and interest are charged on
// the notional amount. Missing prices yield zero size and liquidation price.
func ComputeTradeDetails(in TradeInput) TradeDetails {
	entry := in.EntryPrice()
	d := TradeDetails{
		EntryPrice:       entry,
		Margin:           MarginFromAmount(in.Amount, in.Leverage),
		LiquidationPrice: LiquidationPrice(entry, in.Leverage, in.Direction),
	}
	if !in.Amount.IsPositive() {
		return d
	}
	d.Notional = in.Amount
	if entry.IsPositive() {
		d.Size = in.Amount.DivRound(entry, marginScale)
	}
	d.TradingFee = TradingFee(in.Amount, in.Fees, in.Direction)
	d.HourlyInterest = HourlyInterest(in.Amount, in.Fees, in.Direction)
	return d
}

func clampPercent(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}
