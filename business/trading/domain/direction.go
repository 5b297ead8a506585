// Package domain contains the order economics types and pure calculations.
package domain

import (
	"fmt"
	"strings"
)

// Direction is the side of a perpetual position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// ParseDirection accepts long/short in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return Long, nil
	case "SHORT", "SELL":
		return Short, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// IsLong reports whether d is the long side.
func (d Direction) IsLong() bool {
	return d == Long
}

// String returns a human-readable direction.
func (d Direction) String() string {
	switch d {
	case Long:
		return "Long"
	case Short:
		return "Short"
	default:
		return "Unknown"
	}
}

// TargetKind distinguishes take-profit from stop-loss targets.
type TargetKind int

const (
	TakeProfit TargetKind = iota
	StopLoss
)

func (k TargetKind) String() string {
	if k == StopLoss {
		return "stop_loss"
	}
	return "take_profit"
}
