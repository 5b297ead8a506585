// Package app contains the route registry, the quote aggregator and quote
// sessions of the routing context.
package app

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	execdomain "github.com/fd1az/perp-router/business/execution/domain"
	"github.com/fd1az/perp-router/business/routing/domain"
	"github.com/fd1az/perp-router/internal/asset"
)

// NativeToken is the placeholder address aggregators use for the chain's
// native asset.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// IsNative reports whether addr denotes the native asset.
func IsNative(addr common.Address) bool {
	return addr == NativeToken
}

// QuoteRequest describes what to quote. Amount is in human units of TokenIn.
type QuoteRequest struct {
	TokenIn     common.Address
	TokenOut    common.Address
	DecimalsIn  uint8
	DecimalsOut uint8
	Amount      string
	Enabled     bool
}

// Disabled reports whether the request must not reach any provider.
func (r QuoteRequest) Disabled() bool {
	if !r.Enabled {
		return true
	}
	if r.TokenIn == (common.Address{}) || r.TokenOut == (common.Address{}) {
		return true
	}
	amt := strings.TrimSpace(r.Amount)
	if amt == "" {
		return true
	}
	d, err := decimal.NewFromString(amt)
	return err != nil || !d.IsPositive()
}

// AmountInRaw converts Amount to base units of TokenIn.
func (r QuoteRequest) AmountInRaw() (*big.Int, error) {
	return asset.ToBaseUnitsBig(r.Amount, r.DecimalsIn)
}

// WithAmount returns a copy of r with a new amount.
func (r QuoteRequest) WithAmount(amount string) QuoteRequest {
	r.Amount = amount
	return r
}

// ExecParams are the caller-specific inputs to assembling a swap.
type ExecParams struct {
	Sender    common.Address
	Recipient common.Address // zero means Sender

	// Slippage is a fraction, e.g. 0.005 for 0.5%.
	Slippage decimal.Decimal
}

// RecipientOrSender returns the address that receives the output.
func (p ExecParams) RecipientOrSender() common.Address {
	if p.Recipient == (common.Address{}) {
		return p.Sender
	}
	return p.Recipient
}

// SlippageBps returns Slippage in basis points, rounded down.
func (p ExecParams) SlippageBps() int64 {
	return p.Slippage.Mul(decimal.NewFromInt(10000)).IntPart()
}

// MinOut applies slippage to a raw output amount.
func (p ExecParams) MinOut(raw *big.Int) *big.Int {
	if raw == nil {
		return new(big.Int)
	}
	bps := p.SlippageBps()
	if bps <= 0 {
		return new(big.Int).Set(raw)
	}
	if bps > 10000 {
		bps = 10000
	}
	out := new(big.Int).Mul(raw, big.NewInt(10000-bps))
	return out.Div(out, big.NewInt(10000))
}

// HeadSource reports the latest block number seen, 0 while unknown.
type HeadSource interface {
	LatestBlock() uint64
}

// GasPricer suggests the current gas price in wei.
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Route is one swap venue: it prices a request and turns a quote it
// produced into a transaction.
type Route interface {
	ID() string
	Name() string
	Quote(ctx context.Context, req QuoteRequest) (*domain.Quote, error)
	Execute(ctx context.Context, qc domain.QuoteContext, params ExecParams) (*execdomain.TxRequest, error)
}
