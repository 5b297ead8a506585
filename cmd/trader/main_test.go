package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	routingapp "github.com/fd1az/perp-router/business/routing/app"
	routingdomain "github.com/fd1az/perp-router/business/routing/domain"
	tradingapp "github.com/fd1az/perp-router/business/trading/app"
	tradingdomain "github.com/fd1az/perp-router/business/trading/domain"
	"github.com/fd1az/perp-router/internal/config"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd(&bytes.Buffer{})
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "quote", "preview", "version"}, names)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "perp-router dev")
}

func TestQuoteRequiresAmount(t *testing.T) {
	root := newRootCmd(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"quote", "--in", "ETH", "--out", "USDC"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount")
}

func TestQuoteDeadline(t *testing.T) {
	cfg := &config.Config{}
	assert.Equal(t, routingapp.DefaultQuoteTimeout+time.Second, quoteDeadline(cfg))

	cfg.Routing.QuoteTimeout = 3 * time.Second
	assert.Equal(t, 4*time.Second, quoteDeadline(cfg))
}

func TestPrintSelection(t *testing.T) {
	var out bytes.Buffer
	printSelection(&out, routingapp.Selection{
		Best: "kyberswap",
		States: []routingdomain.QuoteState{
			{Source: "paraswap", Err: errors.New("no liquidity")},
			{Source: "kyberswap", Quote: &routingdomain.Quote{
				AmountOut:   "3012.5",
				GasUSD:      decimal.RequireFromString("1.234"),
				PriceImpact: decimal.RequireFromString("0.0031"),
			}},
		},
	})

	s := out.String()
	assert.Contains(t, s, "no liquidity")
	assert.Contains(t, s, "3012.5")
	assert.Contains(t, s, "1.23")
	assert.Contains(t, s, "0.31%")
	assert.True(t, strings.HasSuffix(s, "best route: kyberswap\n"))
}

func TestPrintPreview(t *testing.T) {
	var out bytes.Buffer
	printPreview(&out, tradingapp.Preview{
		Symbol:    "ETH-USD",
		Direction: tradingdomain.Long,
		Leverage:  decimal.NewFromInt(10),
		Details: tradingdomain.TradeDetails{
			EntryPrice:       decimal.NewFromInt(2000),
			Margin:           decimal.NewFromInt(100),
			LiquidationPrice: decimal.NewFromInt(1820),
		},
		Issues: []tradingdomain.Issue{{Code: tradingdomain.IssueAmountExceedsBalance, Message: "margin exceeds balance"}},
	})

	s := out.String()
	assert.Contains(t, s, "LONG 10x")
	assert.Contains(t, s, "1820.00")
	assert.Contains(t, s, "margin exceeds balance")
	assert.NotContains(t, s, "Take profit")
}
