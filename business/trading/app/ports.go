// Package app contains application services and port definitions for the trading context.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fd1az/perp-router/business/trading/domain"
)

// FeeSource provides the fee and rate inputs of a market.
type FeeSource interface {
	MarketFees(ctx context.Context, symbol string) (domain.MarketFees, error)
}

// PriceSource provides the latest mark price of a symbol.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}
