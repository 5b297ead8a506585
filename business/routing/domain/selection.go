package domain

import (
	"github.com/shopspring/decimal"
)

// DefaultUnavailableReason is used when a venue is marked unavailable
// without a reason.
const DefaultUnavailableReason = "venue unavailable"

// RouteInfo describes one execution venue for a market.
type RouteInfo struct {
	ID        string
	Name      string
	Fee       decimal.Decimal // fraction
	Available bool
	Reason    string
}

// NewAvailableRoute returns a selectable venue.
func NewAvailableRoute(id, name string, fee decimal.Decimal) RouteInfo {
	return RouteInfo{ID: id, Name: name, Fee: fee, Available: true}
}

// NewUnavailableRoute returns a venue that can never be selected. reason
// is always non-empty.
func NewUnavailableRoute(id, name, reason string) RouteInfo {
	if reason == "" {
		reason = DefaultUnavailableReason
	}
	return RouteInfo{ID: id, Name: name, Reason: reason}
}

// SelectBestQuote returns the source with the highest output among usable
// states. The first-seen source wins exact ties.
func SelectBestQuote(states []QuoteState) (string, bool) {
	var (
		best    string
		bestOut decimal.Decimal
		found   bool
	)
	for _, s := range states {
		if !s.Usable() {
			continue
		}
		out, _ := s.Quote.Output()
		if !found || out.GreaterThan(bestOut) {
			best, bestOut, found = s.Source, out, true
		}
	}
	return best, found
}

// SelectBestVenue returns the available venue with the lowest fee. The
// first-seen venue wins exact ties.
func SelectBestVenue(routes []RouteInfo) (string, bool) {
	var (
		best    string
		bestFee decimal.Decimal
		found   bool
	)
	for _, r := range routes {
		if !r.Available {
			continue
		}
		if !found || r.Fee.LessThan(bestFee) {
			best, bestFee, found = r.ID, r.Fee, true
		}
	}
	return best, found
}
