// Package pricews implements the price Feed over a websocket stream of
// {symbol: {price}} frames.
package pricews

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fd1az/perp-router/business/pricing/domain"
)

// SubscribeRequest asks the server to stream the given symbols.
type SubscribeRequest struct {
	Method  string   `json:"method"`
	Symbols []string `json:"symbols"`
	ID      int64    `json:"id"`
}

// PriceUpdate is the per-symbol payload. Price may arrive as a JSON number
// or a string.
type PriceUpdate struct {
	Price decimal.Decimal `json:"price"`
}

// ParseFrame decodes one frame into ticks. Keys whose value is not a price
// object (acks, heartbeats) are skipped; a frame that is not a JSON object
// is an error.
func ParseFrame(data []byte) ([]domain.Tick, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	ticks := make([]domain.Tick, 0, len(raw))
	for symbol, body := range raw {
		if len(body) == 0 || body[0] != '{' {
			continue
		}
		var upd PriceUpdate
		if err := json.Unmarshal(body, &upd); err != nil {
			continue
		}
		if !upd.Price.IsPositive() {
			continue
		}
		ticks = append(ticks, domain.NewTick(symbol, upd.Price))
	}
	return ticks, nil
}

// normalizeSymbols upper-cases and de-duplicates the configured symbols.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = domain.NormalizeSymbol(s)
		if _, ok := seen[s]; ok || strings.TrimSpace(s) == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
