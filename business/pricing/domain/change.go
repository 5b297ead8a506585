package domain

import "github.com/shopspring/decimal"

// Change is the movement between two consecutive prices.
type Change struct {
	Previous    decimal.Decimal
	Current     decimal.Decimal
	Absolute    decimal.Decimal // Current - Previous
	BasisPoints decimal.Decimal // (Current - Previous) / Previous * 10000
	Direction   ChangeDirection
}

// ChangeDirection is the sign of a Change.
type ChangeDirection string

const (
	ChangeUp   ChangeDirection = "UP"
	ChangeDown ChangeDirection = "DOWN"
	ChangeFlat ChangeDirection = "FLAT"
)

var bpsMultiplier = decimal.NewFromInt(10000)

// CalculateChange computes the change from prev to cur. A zero previous
// price yields zero basis points.
func CalculateChange(prev, cur decimal.Decimal) Change {
	absolute := cur.Sub(prev)
	bps := decimal.Zero
	if !prev.IsZero() {
		bps = absolute.Div(prev).Mul(bpsMultiplier)
	}

	direction := ChangeFlat
	switch {
	case absolute.IsPositive():
		direction = ChangeUp
	case absolute.IsNegative():
		direction = ChangeDown
	}

	return Change{
		Previous:    prev,
		Current:     cur,
		Absolute:    absolute,
		BasisPoints: bps,
		Direction:   direction,
	}
}

// Arrow returns a one-character marker for display.
func (d ChangeDirection) Arrow() string {
	switch d {
	case ChangeUp:
		return "▲"
	case ChangeDown:
		return "▼"
	default:
		return "•"
	}
}
