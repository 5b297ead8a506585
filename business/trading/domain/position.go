package domain

import (
	"github.com/shopspring/decimal"
)

// Position is an open on-chain position as reported by the order backend.
// Numeric fields are kept as received; Size is notional in account currency.
type Position struct {
	ID          string
	Market      string
	Size        string
	Margin      string
	EntryPrice  string
	PositionFee string
	BorrowFee   string
	FundingFee  string
	IsLong      bool
}

// Direction returns the position side.
func (p Position) Direction() Direction {
	if p.IsLong {
		return Long
	}
	return Short
}

// Leverage is size / margin.
func (p Position) Leverage() decimal.Decimal {
	size, margin := parseOrZero(p.Size), parseOrZero(p.Margin)
	if !margin.IsPositive() {
		return decimal.Zero
	}
	return size.DivRound(margin, 4)
}

// LiquidationPrice derives the liquidation price from entry and leverage.
func (p Position) LiquidationPrice() decimal.Decimal {
	return LiquidationPrice(parseOrZero(p.EntryPrice), p.Leverage(), p.Direction())
}

// AccruedFees is the sum of position, borrow and funding fees.
func (p Position) AccruedFees() decimal.Decimal {
	return parseOrZero(p.PositionFee).Add(parseOrZero(p.BorrowFee)).Add(parseOrZero(p.FundingFee))
}

// PnL returns the net profit at livePrice after accrued fees.
func (p Position) PnL(livePrice decimal.Decimal) decimal.Decimal {
	entry, size := parseOrZero(p.EntryPrice), parseOrZero(p.Size)
	if !entry.IsPositive() || !livePrice.IsPositive() || !size.IsPositive() {
		return decimal.Zero
	}
	gross := size.Mul(livePrice.Sub(entry)).Div(entry)
	if !p.IsLong {
		gross = gross.Neg()
	}
	return gross.Sub(p.AccruedFees())
}

// PnLPercent returns PnL as a percentage of margin.
func (p Position) PnLPercent(livePrice decimal.Decimal) decimal.Decimal {
	margin := parseOrZero(p.Margin)
	if !margin.IsPositive() {
		return decimal.Zero
	}
	return p.PnL(livePrice).Div(margin).Mul(hundred)
}

func parseOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
