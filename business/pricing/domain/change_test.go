package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculateChange(t *testing.T) {
	tests := []struct {
		name          string
		prev          string
		cur           string
		wantAbsolute  string
		wantBPS       string
		wantDirection ChangeDirection
	}{
		{
			name:          "unchanged",
			prev:          "3400.00",
			cur:           "3400.00",
			wantAbsolute:  "0",
			wantBPS:       "0",
			wantDirection: ChangeFlat,
		},
		{
			name:          "up_1pct",
			prev:          "3400.00",
			cur:           "3434.00",
			wantAbsolute:  "34",
			wantBPS:       "100",
			wantDirection: ChangeUp,
		},
		{
			name:          "down_1pct",
			prev:          "3400.00",
			cur:           "3366.00",
			wantAbsolute:  "-34",
			wantBPS:       "-100",
			wantDirection: ChangeDown,
		},
		{
			name:          "first_tick_zero_previous",
			prev:          "0",
			cur:           "3400.00",
			wantAbsolute:  "3400",
			wantBPS:       "0",
			wantDirection: ChangeUp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateChange(decimal.RequireFromString(tt.prev), decimal.RequireFromString(tt.cur))

			if !got.Absolute.Equal(decimal.RequireFromString(tt.wantAbsolute)) {
				t.Errorf("Absolute = %s, want %s", got.Absolute, tt.wantAbsolute)
			}
			if !got.BasisPoints.Equal(decimal.RequireFromString(tt.wantBPS)) {
				t.Errorf("BasisPoints = %s, want %s", got.BasisPoints, tt.wantBPS)
			}
			if got.Direction != tt.wantDirection {
				t.Errorf("Direction = %s, want %s", got.Direction, tt.wantDirection)
			}
		})
	}
}

func TestNormalizeSymbol(t *testing.T) {
	tests := map[string]string{
		"btc":      "BTC",
		"BTC-USD":  "BTC",
		"eth/usdc": "ETH",
		" SOL ":    "SOL",
		"-USD":     "-USD",
	}
	for in, want := range tests {
		if got := NormalizeSymbol(in); got != want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}
