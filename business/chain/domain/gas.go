package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/perp-router/internal/asset"
)

// GasPrice is a suggested gas price.
type GasPrice struct {
	Wei       *big.Int
	FetchedAt time.Time
}

// Gwei returns the price in gwei.
func (g GasPrice) Gwei() decimal.Decimal {
	return asset.ToDecimal(g.Wei, 9)
}
