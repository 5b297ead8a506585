package ui

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	marketsdomain "github.com/fd1az/perp-router/business/markets/domain"
	pricingdomain "github.com/fd1az/perp-router/business/pricing/domain"
	routingapp "github.com/fd1az/perp-router/business/routing/app"
	"github.com/fd1az/perp-router/pkg/ui/components"
)

// PriceRows converts book quotes into panel rows ordered by symbol.
func PriceRows(quotes []pricingdomain.Quote, now time.Time) []components.PriceRow {
	rows := make([]components.PriceRow, 0, len(quotes))
	for _, q := range quotes {
		rows = append(rows, components.PriceRow{
			Symbol:    q.Symbol,
			Price:     q.Price,
			ChangeBps: q.Change.BasisPoints,
			Age:       q.Age(now),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })
	return rows
}

// MarketRows converts registry markets into panel rows.
func MarketRows(markets []marketsdomain.MarketInfo) []components.MarketRow {
	rows := make([]components.MarketRow, 0, len(markets))
	for _, m := range markets {
		rows = append(rows, components.MarketRow{
			Symbol:      m.Symbol,
			LongFee:     m.LongFee,
			ShortFee:    m.ShortFee,
			FundingRate: m.FundingRate,
			LongOI:      m.LongOI,
			MaxLongOI:   m.MaxLongOI,
			ShortOI:     m.ShortOI,
			MaxShortOI:  m.MaxShortOI,
		})
	}
	return rows
}

var hundred = decimal.NewFromInt(100)

// SessionRows converts a session snapshot into its panel view.
func SessionRows(snap routingapp.Snapshot, pair string) components.SessionView {
	view := components.SessionView{
		ID:      snap.SessionID,
		Pair:    pair,
		Amount:  snap.Request.Amount,
		Best:    snap.Best,
		Loading: snap.Loading,
		Rows:    make([]components.QuoteRow, 0, len(snap.States)),
	}
	for _, st := range snap.States {
		row := components.QuoteRow{Route: st.Source, Loading: st.Loading}
		switch {
		case st.Err != nil:
			row.Err = st.ErrString()
		case st.Quote != nil:
			row.AmountOut = st.Quote.AmountOut
			row.GasUSD = st.Quote.GasUSD.StringFixed(2)
			row.Impact = st.Quote.PriceImpact.Mul(hundred).StringFixed(2) + "%"
		}
		view.Rows = append(view.Rows, row)
	}
	return view
}
