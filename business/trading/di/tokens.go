// Package di contains dependency injection tokens for the trading context.
package di

import (
	"github.com/fd1az/perp-router/business/trading/app"
	"github.com/fd1az/perp-router/internal/di"
)

// Public service tokens - exposed to other modules
var (
	TradingService = di.NewToken[*app.Service]("trading.Service")
)

// GetTradingService returns the trading service.
func GetTradingService(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, TradingService)
}
