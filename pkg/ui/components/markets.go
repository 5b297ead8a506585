package components

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MarketRow is one pair in the markets panel. Fees are fractions, rates
// hourly percentages.
type MarketRow struct {
	Symbol      string
	LongFee     decimal.Decimal
	ShortFee    decimal.Decimal
	FundingRate decimal.Decimal
	LongOI      decimal.Decimal
	MaxLongOI   decimal.Decimal
	ShortOI     decimal.Decimal
	MaxShortOI  decimal.Decimal
}

// MarketsComponent renders fees, funding and open interest per pair.
type MarketsComponent struct {
	rows []MarketRow
}

// NewMarketsComponent creates a markets panel.
func NewMarketsComponent() *MarketsComponent {
	return &MarketsComponent{}
}

// Update replaces the rows.
func (m *MarketsComponent) Update(rows []MarketRow) {
	m.rows = rows
}

// View renders the panel.
func (m *MarketsComponent) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("MARKETS"))
	b.WriteString("\n\n")

	if len(m.rows) == 0 {
		b.WriteString(dimStyle.Render("  Waiting for market data..."))
		return b.String()
	}

	fmt.Fprintf(&b, "  %-8s  %8s  %8s  %10s  %7s  %7s\n", "Pair", "Long fee", "Short fee", "Funding/h", "Long OI", "Short OI")
	b.WriteString(dimStyle.Render("  "+strings.Repeat("─", 60)) + "\n")

	for _, r := range m.rows {
		funding := fmt.Sprintf("%+.4f%%", r.FundingRate.InexactFloat64())
		fundingStyle := positiveStyle
		if r.FundingRate.IsNegative() {
			fundingStyle = negativeStyle
		}
		fmt.Fprintf(&b, "  %-8s  %8s  %9s  %s  %s  %s\n",
			r.Symbol,
			r.LongFee.Mul(hundred).StringFixed(3)+"%",
			r.ShortFee.Mul(hundred).StringFixed(3)+"%",
			fundingStyle.Render(fmt.Sprintf("%10s", funding)),
			utilization(r.LongOI, r.MaxLongOI),
			utilization(r.ShortOI, r.MaxShortOI),
		)
	}
	return b.String()
}

// utilization renders OI as a share of its cap. Uncapped sides show "-".
func utilization(oi, max decimal.Decimal) string {
	if !max.IsPositive() {
		return dimStyle.Render(fmt.Sprintf("%7s", "-"))
	}
	pct := oi.Div(max).Mul(hundred)
	s := fmt.Sprintf("%6.1f%%", pct.InexactFloat64())
	switch {
	case pct.GreaterThanOrEqual(hundred):
		return negativeStyle.Render(s)
	case pct.GreaterThanOrEqual(decimal.NewFromInt(90)):
		return warnStyle.Render(s)
	default:
		return s
	}
}
