// Package domain contains the route and quote types and the best-route selection.
package domain

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/perp-router/internal/asset"
)

// Quote is one provider's answer to a quote request. Amounts are decimal
// strings in human units, with base-unit twins for execution. A Quote is
// never mutated after it is returned.
type Quote struct {
	RouteID      string
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     string
	AmountOut    string
	AmountInRaw  string
	AmountOutRaw string
	GasUnits     uint64
	GasNative    decimal.Decimal
	GasUSD       decimal.Decimal
	PriceImpact  decimal.Decimal // fraction
	PathID       string          // opaque, single-use
	BlockNumber  uint64
	Seq          uint64
	FetchedAt    time.Time

	// Payload carries provider-specific data needed to assemble the quote
	// into a transaction.
	Payload json.RawMessage
}

// Output parses AmountOut.
func (q *Quote) Output() (decimal.Decimal, bool) {
	if q == nil || q.AmountOut == "" {
		return decimal.Zero, false
	}
	out, err := decimal.NewFromString(q.AmountOut)
	if err != nil {
		return decimal.Zero, false
	}
	return out, true
}

// Age returns how long ago the quote was fetched.
func (q *Quote) Age(now time.Time) time.Duration {
	if q == nil || q.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(q.FetchedAt)
}

// GasCost converts a gas estimate into native units at gasPriceWei. A nil
// or non-positive price yields zero.
func GasCost(units uint64, gasPriceWei *big.Int) decimal.Decimal {
	if units == 0 || gasPriceWei == nil || gasPriceWei.Sign() <= 0 {
		return decimal.Zero
	}
	wei := new(big.Int).Mul(new(big.Int).SetUint64(units), gasPriceWei)
	return asset.ToDecimal(wei, 18)
}

// QuoteState is the view of one source: a quote, still loading, or failed.
type QuoteState struct {
	Source  string
	Quote   *Quote
	Loading bool
	Err     error
}

// Usable reports whether the state can take part in best-route selection.
func (s QuoteState) Usable() bool {
	if s.Loading || s.Err != nil || s.Quote == nil {
		return false
	}
	_, ok := s.Quote.Output()
	return ok
}

// ErrString returns the error message or "".
func (s QuoteState) ErrString() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// QuoteContext binds a quote to the route that produced it. It is the only
// input execution accepts, so a swap always runs against the quote it was
// priced on.
type QuoteContext struct {
	Quote   *Quote
	RouteID string
}
