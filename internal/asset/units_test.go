package asset_test

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/fd1az/perp-router/internal/asset"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		amount   string
		decimals uint8
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1.5", 6, "1500000"},
		{"0.000001", 6, "1"},
		{"0.0000019", 6, "1"}, // truncated, not rounded
		{"0.1234567", 6, "123456"},
		{".5", 2, "50"},
		{"12.", 2, "1200"},
		{"7.99", 0, "7"},
		{"0", 18, "0"},
		{"000123.40", 3, "123400"},
		{"1000000000000.123456789012345678", 18, "1000000000000123456789012345678"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s@%d", tt.amount, tt.decimals), func(t *testing.T) {
			got, err := asset.ToBaseUnits(tt.amount, tt.decimals)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestToBaseUnits_Invalid(t *testing.T) {
	for _, in := range []string{"", " ", ".", "-1", "1.2.3", "1e6", "abc", "1,5"} {
		if _, err := asset.ToBaseUnits(in, 6); !errors.Is(err, asset.ErrInvalidUnits) {
			t.Errorf("ToBaseUnits(%q): expected ErrInvalidUnits, got %v", in, err)
		}
	}
}

func TestFromBaseUnits(t *testing.T) {
	tests := []struct {
		raw      string
		decimals uint8
		want     string
	}{
		{"1500000", 6, "1.500000"},
		{"1", 6, "0.000001"},
		{"0", 6, "0.000000"},
		{"42", 0, "42"},
		{"1000000000000000000", 18, "1.000000000000000000"},
		{"123", 5, "0.00123"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s@%d", tt.raw, tt.decimals), func(t *testing.T) {
			got, err := asset.FromBaseUnits(tt.raw, tt.decimals)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	if _, err := asset.FromBaseUnits("-5", 6); err == nil {
		t.Error("expected error for negative base units")
	}
}

func TestUnits_RoundTrip(t *testing.T) {
	amounts := []string{
		"0",
		"1",
		"0.1",
		"0.000000000000000001",
		"123.456",
		"999999999999.999999999999999999",
		"1000000000000",
		"42.000100",
		"3.14159265358979323",
	}

	for d := uint8(0); d <= 18; d++ {
		for _, a := range amounts {
			raw, err := asset.ToBaseUnits(a, d)
			if err != nil {
				t.Fatalf("ToBaseUnits(%s, %d): %v", a, d, err)
			}
			back, err := asset.FromBaseUnits(raw, d)
			if err != nil {
				t.Fatalf("FromBaseUnits(%s, %d): %v", raw, d, err)
			}

			want := asset.TrimDecimal(truncateFraction(a, int(d)))
			if got := asset.TrimDecimal(back); got != want {
				t.Errorf("round trip %s@%d: expected %s, got %s", a, d, want, got)
			}
		}
	}
}

func TestFormatBaseUnits_LargeValues(t *testing.T) {
	n, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	if got := asset.FormatBaseUnits(n, 18); got != "123456789012.345678901234567890" {
		t.Errorf("unexpected format: %s", got)
	}
}

func TestToDecimal(t *testing.T) {
	wei, _ := new(big.Int).SetString("21000000000000", 10)
	if got := asset.ToDecimal(wei, 18).String(); got != "0.000021" {
		t.Errorf("expected 0.000021, got %s", got)
	}
	if !asset.ToDecimal(nil, 6).IsZero() {
		t.Error("nil should be zero")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := asset.DefaultRegistry()

	usdc, ok := r.GetBySymbolAndChain("usdc", asset.ChainIDArbitrum)
	if !ok || usdc.Address() != asset.AddrUSDCArbitrum || usdc.Decimals() != 6 {
		t.Fatalf("unexpected USDC lookup: %v %v", usdc, ok)
	}
	if eth, ok := r.GetNative(asset.ChainIDArbitrum); !ok || !eth.IsNative() {
		t.Error("expected native ETH on Arbitrum")
	}
	if _, ok := r.GetToken(asset.ChainIDBase, asset.AddrUSDCArbitrum); ok {
		t.Error("Arbitrum USDC should not resolve on Base")
	}
	if err := r.Register(asset.ArbUSDC); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	syms := make([]string, 0)
	for _, a := range r.Chain(asset.ChainIDArbitrum) {
		syms = append(syms, a.Symbol())
	}
	want := fmt.Sprint([]string{"ARB", "ETH", "USDC", "USDT", "WBTC", "WETH"})
	if fmt.Sprint(syms) != want {
		t.Errorf("expected %s, got %v", want, syms)
	}
}

func TestTrimDecimal(t *testing.T) {
	tests := map[string]string{
		"1.500000": "1.5",
		"0.000000": "0",
		"001.10":   "1.1",
		"42":       "42",
		"42.":      "42",
	}
	for in, want := range tests {
		if got := asset.TrimDecimal(in); got != want {
			t.Errorf("TrimDecimal(%q) = %q, want %q", in, got, want)
		}
	}
}

// truncateFraction drops fractional digits beyond d, mirroring the
// truncation contract of ToBaseUnits.
func truncateFraction(s string, d int) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			end := i + 1 + d
			if end > len(s) {
				end = len(s)
			}
			return s[:end]
		}
	}
	return s
}
