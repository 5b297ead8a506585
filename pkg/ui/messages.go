package ui

import (
	"time"

	marketsdomain "github.com/fd1az/perp-router/business/markets/domain"
	pricingdomain "github.com/fd1az/perp-router/business/pricing/domain"
	routingapp "github.com/fd1az/perp-router/business/routing/app"
)

// PricesMsg carries a full price book snapshot.
type PricesMsg struct {
	Quotes []pricingdomain.Quote
}

// MarketsMsg carries a full market registry snapshot.
type MarketsMsg struct {
	Markets []marketsdomain.MarketInfo
}

// SessionMsg carries a quote session snapshot.
type SessionMsg struct {
	Snapshot routingapp.Snapshot
	Pair     string
}

// SessionClosedMsg removes a session from the dashboard.
type SessionClosedMsg struct {
	ID string
}

// ConnectionStatusMsg reports an upstream connection change.
type ConnectionStatusMsg struct {
	Name      string
	Connected bool
	Latency   time.Duration
	Block     uint64
}

// ErrorMsg surfaces an error in the error panel.
type ErrorMsg struct {
	Error error
}

// LogMsg shows a line in the activity feed.
type LogMsg struct {
	Level   string
	Message string
}

// StartupMsg moves a startup step along: "connecting", "connected",
// "done" or "failed".
type StartupMsg struct {
	Step   string
	Status string
}

// TickMsg drives animations.
type TickMsg struct{}

// StartModulesMsg asks the host to start the modules.
type StartModulesMsg struct{}
