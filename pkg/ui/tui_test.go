package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	marketsdomain "github.com/fd1az/perp-router/business/markets/domain"
	pricingdomain "github.com/fd1az/perp-router/business/pricing/domain"
	routingapp "github.com/fd1az/perp-router/business/routing/app"
	routingdomain "github.com/fd1az/perp-router/business/routing/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func dashboard(t *testing.T) Model {
	t.Helper()
	m := New(Options{Title: "Test"})
	m = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 50})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	require.Equal(t, PhaseStartup, m.phase)
	for _, s := range StartupSteps {
		m = update(t, m, StartupMsg{Step: s, Status: "done"})
	}
	require.Equal(t, PhaseDashboard, m.phase)
	return m
}

func TestPriceRows(t *testing.T) {
	now := time.Now()
	rows := PriceRows([]pricingdomain.Quote{
		{Tick: pricingdomain.Tick{Symbol: "ETH", Price: dec("2000"), ReceivedAt: now.Add(-2 * time.Second)},
			Change: pricingdomain.CalculateChange(dec("1990"), dec("2000"))},
		{Tick: pricingdomain.Tick{Symbol: "BTC", Price: dec("60000"), ReceivedAt: now}},
	}, now)

	require.Len(t, rows, 2)
	assert.Equal(t, "BTC", rows[0].Symbol)
	assert.Equal(t, "ETH", rows[1].Symbol)
	assert.Equal(t, 2*time.Second, rows[1].Age)
	assert.True(t, rows[1].ChangeBps.IsPositive())
}

func TestSessionRows(t *testing.T) {
	snap := routingapp.Snapshot{
		SessionID: "s1",
		Request:   routingapp.QuoteRequest{Amount: "1.5"},
		Best:      "kyberswap",
		States: []routingdomain.QuoteState{
			{Source: "paraswap", Err: errors.New("no pool")},
			{Source: "kyberswap", Quote: &routingdomain.Quote{AmountOut: "3001.2", GasUSD: dec("0.123"), PriceImpact: dec("0.0012")}},
			{Source: "uniswap", Loading: true},
		},
	}

	view := SessionRows(snap, "ETH/USDC")
	assert.Equal(t, "s1", view.ID)
	assert.Equal(t, "1.5", view.Amount)
	require.Len(t, view.Rows, 3)
	assert.NotEmpty(t, view.Rows[0].Err)
	assert.Equal(t, "3001.2", view.Rows[1].AmountOut)
	assert.Equal(t, "0.12", view.Rows[1].GasUSD)
	assert.Equal(t, "0.12%", view.Rows[1].Impact)
	assert.True(t, view.Rows[2].Loading)
}

func TestModel_WelcomeAdvancesOnKey(t *testing.T) {
	started := make(chan struct{}, 1)
	OnStartModules = func() { started <- struct{}{} }
	defer func() { OnStartModules = nil }()

	m := New(Options{})
	assert.Contains(t, m.View(), "R O U T E R")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, PhaseStartup, m.phase)
	assert.Contains(t, m.View(), "Reading market registry")

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("modules were not started")
	}
}

func TestModel_DashboardRendersPanels(t *testing.T) {
	m := dashboard(t)

	m = update(t, m, PricesMsg{Quotes: []pricingdomain.Quote{
		{Tick: pricingdomain.Tick{Symbol: "ETH", Price: dec("2000"), ReceivedAt: time.Now()}},
	}})
	m = update(t, m, MarketsMsg{Markets: []marketsdomain.MarketInfo{
		{Symbol: "ETH-USD", LongFee: dec("0.0008"), ShortFee: dec("0.0006"), FundingRate: dec("-0.002"),
			LongOI: dec("95"), MaxLongOI: dec("100")},
	}})
	m = update(t, m, SessionMsg{Pair: "ETH/USDC", Snapshot: routingapp.Snapshot{
		SessionID: "s1",
		Request:   routingapp.QuoteRequest{Amount: "1"},
		Best:      "uniswap",
		States: []routingdomain.QuoteState{
			{Source: "uniswap", Quote: &routingdomain.Quote{AmountOut: "1999.5"}},
		},
	}})
	m = update(t, m, ErrorMsg{Error: errors.New("paraswap: HTTP 429")})

	view := m.View()
	for _, want := range []string{"$2000.00", "ETH-USD", "0.080%", "1999.5", "★", "best via uniswap", "HTTP 429"} {
		assert.True(t, strings.Contains(view, want), "view missing %q", want)
	}
}

func TestModel_PauseFreezesData(t *testing.T) {
	m := dashboard(t)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	require.True(t, m.paused)

	m = update(t, m, PricesMsg{Quotes: []pricingdomain.Quote{
		{Tick: pricingdomain.Tick{Symbol: "ETH", Price: dec("2000"), ReceivedAt: time.Now()}},
	}})
	assert.NotContains(t, m.View(), "$2000.00")
	assert.Contains(t, m.View(), "PAUSED")
}

func TestModel_ClearSessionsAndErrors(t *testing.T) {
	m := dashboard(t)
	m = update(t, m, SessionMsg{Pair: "ETH/USDC", Snapshot: routingapp.Snapshot{SessionID: "s1"}})
	m = update(t, m, SessionMsg{Pair: "ETH/USDT", Snapshot: routingapp.Snapshot{SessionID: "s2"}})
	require.Equal(t, 2, m.quotes.Len())

	m = update(t, m, SessionClosedMsg{ID: "s1"})
	assert.Equal(t, 1, m.quotes.Len())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	assert.Equal(t, 0, m.quotes.Len())

	for i := 0; i < 5; i++ {
		m = update(t, m, ErrorMsg{Error: errors.New("boom")})
	}
	assert.Len(t, m.errors, maxErrors)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'e'}})
	assert.Empty(t, m.errors)
}

func TestModel_NodeStatusMarksEthereumStep(t *testing.T) {
	m := New(Options{})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m = update(t, m, ConnectionStatusMsg{Name: "node", Connected: false})
	assert.Equal(t, "connecting", m.steps["ethereum"])

	m = update(t, m, ConnectionStatusMsg{Name: "node", Connected: true, Block: 1234})
	assert.Equal(t, "connected", m.steps["ethereum"])
	assert.Contains(t, m.status.View(), "#1234")
}
