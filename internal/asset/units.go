package asset

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDecimals bounds the decimal count accepted by the unit conversions.
const MaxDecimals = 36

// ErrInvalidUnits is returned for amounts that are not plain unsigned decimals.
var ErrInvalidUnits = errors.New("asset: invalid unit amount")

// ToBaseUnits converts a human-readable decimal string into an integer string
// of base units. The fractional part is right-padded or truncated to exactly
// decimals digits; nothing is ever rounded.
//
//	ToBaseUnits("1.5", 6)        == "1500000"
//	ToBaseUnits("0.1234567", 6)  == "123456"
func ToBaseUnits(amount string, decimals uint8) (string, error) {
	raw, err := ToBaseUnitsBig(amount, decimals)
	if err != nil {
		return "", err
	}
	return raw.String(), nil
}

// ToBaseUnitsBig is ToBaseUnits returning a big.Int.
func ToBaseUnitsBig(amount string, decimals uint8) (*big.Int, error) {
	if decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: %d decimals", ErrInvalidUnits, decimals)
	}

	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidUnits)
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && strings.Contains(frac, ".") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUnits, amount)
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUnits, amount)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUnits, amount)
	}

	d := int(decimals)
	if len(frac) > d {
		frac = frac[:d]
	} else {
		frac += strings.Repeat("0", d-len(frac))
	}

	digits := whole + frac
	if digits == "" {
		digits = "0"
	}

	raw, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUnits, amount)
	}
	return raw, nil
}

// FromBaseUnits converts an integer string of base units back into a decimal
// string. The fractional remainder is left-padded with zeros to decimals
// digits, so FromBaseUnits("1500000", 6) == "1.500000".
func FromBaseUnits(raw string, decimals uint8) (string, error) {
	if decimals > MaxDecimals {
		return "", fmt.Errorf("%w: %d decimals", ErrInvalidUnits, decimals)
	}

	s := strings.TrimSpace(raw)
	if s == "" || !isDigits(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUnits, raw)
	}

	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidUnits, raw)
	}
	return FormatBaseUnits(n, decimals), nil
}

// FormatBaseUnits formats a non-negative big.Int of base units. Negative
// values format as "0".
func FormatBaseUnits(n *big.Int, decimals uint8) string {
	if n == nil || n.Sign() <= 0 {
		if decimals == 0 {
			return "0"
		}
		return "0." + strings.Repeat("0", int(decimals))
	}
	if decimals == 0 {
		return n.String()
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	q, r := new(big.Int).QuoRem(n, scale, new(big.Int))

	frac := r.String()
	frac = strings.Repeat("0", int(decimals)-len(frac)) + frac

	return q.String() + "." + frac
}

// TrimDecimal strips trailing fractional zeros and a dangling dot, and
// normalises leading zeros in the whole part: "001.500" -> "1.5".
func TrimDecimal(s string) string {
	whole, frac, _ := strings.Cut(strings.TrimSpace(s), ".")

	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	frac = strings.TrimRight(frac, "0")

	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// ToDecimal converts base units into a decimal.Decimal. A nil n is zero.
func ToDecimal(n *big.Int, decimals uint8) decimal.Decimal {
	if n == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n, -int32(decimals))
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
