// Package components renders the dashboard panels. Components only format
// what they are given.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	bestStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981"))
)

// PriceRow is one symbol in the price panel.
type PriceRow struct {
	Symbol    string
	Price     decimal.Decimal
	ChangeBps decimal.Decimal
	Age       time.Duration
}

// PricesComponent renders the latest price per symbol.
type PricesComponent struct {
	rows  []PriceRow
	stale time.Duration
}

// NewPricesComponent creates a prices panel. Rows older than stale are
// dimmed.
func NewPricesComponent(stale time.Duration) *PricesComponent {
	return &PricesComponent{stale: stale}
}

// Update replaces the rows.
func (p *PricesComponent) Update(rows []PriceRow) {
	p.rows = rows
}

// View renders the panel.
func (p *PricesComponent) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("PRICES"))
	b.WriteString("\n\n")

	if len(p.rows) == 0 {
		b.WriteString(dimStyle.Render("  Waiting for price data..."))
		return b.String()
	}

	fmt.Fprintf(&b, "  %-8s  %14s  %12s  %8s\n", "Symbol", "Price", "Change", "Age")
	b.WriteString(dimStyle.Render("  "+strings.Repeat("─", 48)) + "\n")

	for _, row := range p.rows {
		change := fmt.Sprintf("%+.1f bps", row.ChangeBps.InexactFloat64())
		style := positiveStyle
		if row.ChangeBps.IsNegative() {
			style = negativeStyle
		} else if row.ChangeBps.IsZero() {
			style = dimStyle
		}

		age := row.Age.Round(time.Second).String()
		if p.stale > 0 && row.Age > p.stale {
			age = warnStyle.Render(fmt.Sprintf("%8s", age))
		} else {
			age = dimStyle.Render(fmt.Sprintf("%8s", age))
		}

		fmt.Fprintf(&b, "  %-8s  %14s  %s  %s\n",
			row.Symbol,
			"$"+row.Price.StringFixed(2),
			style.Render(fmt.Sprintf("%12s", change)),
			age,
		)
	}
	return b.String()
}
