// Package domain contains the market registry types.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketInfo is one pair's on-chain state. Rates are hourly percentages,
// fees are fractions, open interest is in account currency.
type MarketInfo struct {
	PairID          uint64
	Symbol          string
	FundingRate     decimal.Decimal
	LongBorrowRate  decimal.Decimal
	ShortBorrowRate decimal.Decimal
	LongOI          decimal.Decimal
	ShortOI         decimal.Decimal
	MaxLongOI       decimal.Decimal
	MaxShortOI      decimal.Decimal
	LongFee         decimal.Decimal
	ShortFee        decimal.Decimal
	UpdatedAt       time.Time
}

// OICapReached reports whether open interest on one side is at its cap.
// A zero cap means uncapped.
func (m MarketInfo) OICapReached(long bool) bool {
	if long {
		return m.MaxLongOI.IsPositive() && m.LongOI.GreaterThanOrEqual(m.MaxLongOI)
	}
	return m.MaxShortOI.IsPositive() && m.ShortOI.GreaterThanOrEqual(m.MaxShortOI)
}

// FeeFor returns the trading fee fraction for a side.
func (m MarketInfo) FeeFor(long bool) decimal.Decimal {
	if long {
		return m.LongFee
	}
	return m.ShortFee
}

// Pair is a configured tradable pair.
type Pair struct {
	ID     uint64
	Symbol string
}

// BaseSymbol returns the base asset of a pair symbol: "ETH-USD" -> "ETH".
func BaseSymbol(symbol string) string {
	base, _, _ := strings.Cut(strings.ToUpper(symbol), "-")
	return base
}

// Venue is an execution backend for perp orders.
type Venue struct {
	ID    string
	Name  string
	Pairs []string // empty means every pair
	Fee   *decimal.Decimal
}

// Supports reports whether the venue lists symbol.
func (v Venue) Supports(symbol string) bool {
	if len(v.Pairs) == 0 {
		return true
	}
	for _, p := range v.Pairs {
		if strings.EqualFold(p, symbol) {
			return true
		}
	}
	return false
}
