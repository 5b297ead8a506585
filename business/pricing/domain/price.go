// Package domain contains the core domain types for the pricing context.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one price update for a symbol as received from the feed.
type Tick struct {
	Symbol     string
	Price      decimal.Decimal
	ReceivedAt time.Time
}

// NewTick creates a Tick stamped now. The symbol is normalized.
func NewTick(symbol string, price decimal.Decimal) Tick {
	return Tick{
		Symbol:     NormalizeSymbol(symbol),
		Price:      price,
		ReceivedAt: time.Now(),
	}
}

// Age returns how long ago the tick was received.
func (t Tick) Age(now time.Time) time.Duration {
	return now.Sub(t.ReceivedAt)
}

// NormalizeSymbol maps "btc", "BTC-USD" and "BTC/USD" to "BTC". The feed
// keys prices by base asset only.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexAny(s, "-/"); i > 0 {
		s = s[:i]
	}
	return s
}

// Quote is the book entry for a symbol: the latest tick and how it moved
// relative to the one before.
type Quote struct {
	Tick
	Change Change
}
