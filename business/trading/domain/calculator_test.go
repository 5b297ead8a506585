package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecEqual(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{"expected %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func TestMarginAmountRoundTrip(t *testing.T) {
	amounts := []string{"1", "10.5", "100", "333.33", "1000000", "999999999999.99"}
	leverages := []string{"1", "2", "3", "7", "25", "100", "150"}

	for _, a := range amounts {
		for _, l := range leverages {
			amount, lev := d(a), d(l)
			margin := MarginFromAmount(amount, lev)
			if margin.LessThan(MinMargin) {
				continue
			}
			back := AmountFromMargin(margin, lev)
			assert.True(t, amount.Equal(back), "amount %s leverage %s: got %s", a, l, back)
		}
	}
}

func TestMarginFromAmount_ZeroLeverage(t *testing.T) {
	assert.True(t, MarginFromAmount(d("100"), decimal.Zero).IsZero())
	assert.True(t, AmountFromMargin(d("100"), decimal.Zero).IsZero())
	assert.True(t, MaxLeveragedAmount(decimal.Zero, d("10")).IsZero())
}

func TestSlider(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		max    string
		want   string
	}{
		{"half", "500", "1000", "50"},
		{"over max clamps", "2000", "1000", "100"},
		{"zero amount", "0", "1000", "0"},
		{"no balance", "500", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecEqual(t, tt.want, SliderFromAmount(d(tt.amount), d(tt.max)))
		})
	}

	assertDecEqual(t, "250", AmountFromSlider(d("1000"), d("25")))
	assertDecEqual(t, "1000", AmountFromSlider(d("1000"), d("140")))
	assertDecEqual(t, "0", AmountFromSlider(d("1000"), d("-5")))
}

func TestLiquidationPrice(t *testing.T) {
	assertDecEqual(t, "91", LiquidationPrice(d("100"), d("10"), Long))
	assertDecEqual(t, "109", LiquidationPrice(d("100"), d("10"), Short))

	// Leverage 1 loses 90% of the price before liquidation.
	assertDecEqual(t, "10", LiquidationPrice(d("100"), d("1"), Long))
	assertDecEqual(t, "190", LiquidationPrice(d("100"), d("1"), Short))

	assert.True(t, LiquidationPrice(decimal.Zero, d("10"), Long).IsZero())
	assert.True(t, LiquidationPrice(d("100"), decimal.Zero, Short).IsZero())
	assert.True(t, LiquidationPrice(d("100"), d("0.5"), Long).IsZero(), "long below 0.9x floors at zero")
}

func TestLiquidationPrice_Monotonic(t *testing.T) {
	entry := d("2500")
	leverages := []string{"1", "1.5", "2", "5", "10", "25", "50", "100", "1000"}

	prevLong := decimal.Zero
	prevShort := d("1e9")
	for _, l := range leverages {
		long := LiquidationPrice(entry, d(l), Long)
		short := LiquidationPrice(entry, d(l), Short)

		assert.True(t, long.GreaterThan(prevLong), "long liq must increase with leverage %s", l)
		assert.True(t, short.LessThan(prevShort), "short liq must decrease with leverage %s", l)
		assert.True(t, long.LessThan(entry))
		assert.True(t, short.GreaterThan(entry))

		prevLong, prevShort = long, short
	}

	// Very high leverage converges on entry.
	near := LiquidationPrice(entry, d("1000000"), Long)
	assert.True(t, entry.Sub(near).LessThan(d("0.01")))
}

func TestPriceFromPercent(t *testing.T) {
	tests := []struct {
		name string
		dir  Direction
		kind TargetKind
		want string
	}{
		{"take profit long moves up", Long, TakeProfit, "105"},
		{"stop loss long moves down", Long, StopLoss, "95"},
		{"take profit short moves down", Short, TakeProfit, "95"},
		{"stop loss short moves up", Short, StopLoss, "105"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 50% of margin at 10x is a 5% price move.
			assertDecEqual(t, tt.want, PriceFromPercent(d("100"), d("10"), d("50"), tt.dir, tt.kind))
		})
	}

	assert.True(t, PriceFromPercent(decimal.Zero, d("10"), d("50"), Long, TakeProfit).IsZero())
	assert.True(t, PriceFromPercent(d("100"), d("2"), d("500"), Long, StopLoss).IsZero(), "price floors at zero")
}

func TestPercentFromPrice_PositiveMagnitudes(t *testing.T) {
	assertDecEqual(t, "50", PercentFromPrice(d("100"), d("10"), d("105"), Long, TakeProfit))
	assertDecEqual(t, "50", PercentFromPrice(d("100"), d("10"), d("95"), Long, StopLoss))
	assertDecEqual(t, "50", PercentFromPrice(d("100"), d("10"), d("95"), Short, TakeProfit))
	assertDecEqual(t, "50", PercentFromPrice(d("100"), d("10"), d("105"), Short, StopLoss))

	assert.True(t, PercentFromPrice(d("100"), d("10"), decimal.Zero, Long, TakeProfit).IsZero())
}

func TestTargetDuality(t *testing.T) {
	entries := []string{"0.35", "1", "100", "2456.78", "67000"}
	leverages := []string{"1", "2.5", "10", "75", "150"}
	factors := []string{"0.5", "0.93", "0.999", "1.001", "1.07", "2"}
	tolerance := d("0.000001")

	for _, e := range entries {
		for _, l := range leverages {
			for _, f := range factors {
				entry, lev := d(e), d(l)
				target := entry.Mul(d(f))
				for _, dir := range []Direction{Long, Short} {
					for _, kind := range []TargetKind{TakeProfit, StopLoss} {
						pct := PercentFromPrice(entry, lev, target, dir, kind)
						back := PriceFromPercent(entry, lev, pct, dir, kind)

						rel := back.Sub(target).Abs().Div(target)
						assert.True(t, rel.LessThanOrEqual(tolerance),
							"entry %s lev %s target %s %s %s: got %s", e, l, target, dir, kind, back)
					}
				}
			}
		}
	}
}

func TestStopLossBeyondLiquidation(t *testing.T) {
	liq := LiquidationPrice(d("100"), d("10"), Long)
	require.True(t, liq.Equal(d("91")))

	assert.True(t, StopLossBeyondLiquidation(d("90"), liq, Long))
	assert.True(t, StopLossBeyondLiquidation(d("91"), liq, Long))
	assert.False(t, StopLossBeyondLiquidation(d("92"), liq, Long))

	shortLiq := LiquidationPrice(d("100"), d("10"), Short)
	assert.True(t, StopLossBeyondLiquidation(d("110"), shortLiq, Short))
	assert.False(t, StopLossBeyondLiquidation(d("108"), shortLiq, Short))

	assert.False(t, StopLossBeyondLiquidation(decimal.Zero, liq, Long), "unset stop loss is never invalid")
}

func TestFeesAndFunding(t *testing.T) {
	fees := MarketFees{
		LongFee:     d("0.0008"),
		ShortFee:    d("0.0006"),
		LongBorrow:  d("0.01"),
		ShortBorrow: d("0.005"),
		FundingRate: d("0.002"),
	}

	assertDecEqual(t, "0.8", TradingFee(d("1000"), fees, Long))
	assertDecEqual(t, "0.6", TradingFee(d("1000"), fees, Short))

	assertDecEqual(t, "-0.002", EffectiveFundingRate(fees.FundingRate, Long))
	assertDecEqual(t, "0.002", EffectiveFundingRate(fees.FundingRate, Short))

	assertDecEqual(t, "0.08", HourlyInterest(d("1000"), fees, Long))
	assertDecEqual(t, "0.07", HourlyInterest(d("1000"), fees, Short))

	assert.True(t, TradingFee(decimal.Zero, fees, Long).IsZero())
	assert.True(t, HourlyInterest(d("-5"), fees, Long).IsZero())
}

func TestComputeTradeDetails(t *testing.T) {
	in := TradeInput{
		Amount:      d("1000"),
		Leverage:    d("10"),
		MarketPrice: d("2000"),
		Direction:   Long,
		Fees: MarketFees{
			LongFee:     d("0.0008"),
			LongBorrow:  d("0.01"),
			FundingRate: d("0.002"),
		},
	}

	got := ComputeTradeDetails(in)
	assertDecEqual(t, "2000", got.EntryPrice)
	assertDecEqual(t, "0.5", got.Size)
	assertDecEqual(t, "1000", got.Notional)
	assertDecEqual(t, "100", got.Margin)
	assertDecEqual(t, "1820", got.LiquidationPrice)
	assertDecEqual(t, "0.8", got.TradingFee)
	assertDecEqual(t, "0.08", got.HourlyInterest)

	again := ComputeTradeDetails(in)
	assert.Equal(t, got.Size.String(), again.Size.String(), "recomputation must be identical")
	assert.Equal(t, got.HourlyInterest.String(), again.HourlyInterest.String())

	in.LimitPrice = d("2500")
	limit := ComputeTradeDetails(in)
	assertDecEqual(t, "2500", limit.EntryPrice)
	assertDecEqual(t, "0.4", limit.Size)
}

func TestComputeTradeDetails_MissingInputs(t *testing.T) {
	got := ComputeTradeDetails(TradeInput{})
	assert.True(t, got.EntryPrice.IsZero())
	assert.True(t, got.Size.IsZero())
	assert.True(t, got.LiquidationPrice.IsZero())
	assert.True(t, got.TradingFee.IsZero())

	noPrice := ComputeTradeDetails(TradeInput{Amount: d("100"), Leverage: d("5"), Direction: Short})
	assert.True(t, noPrice.Size.IsZero())
	assertDecEqual(t, "20", noPrice.Margin)
}
