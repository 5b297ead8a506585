// Package trading implements the order economics bounded context.
package trading

import (
	"context"

	marketsDI "github.com/fd1az/perp-router/business/markets/di"
	pricingDI "github.com/fd1az/perp-router/business/pricing/di"
	"github.com/fd1az/perp-router/business/trading/app"
	tradingDI "github.com/fd1az/perp-router/business/trading/di"
	"github.com/fd1az/perp-router/internal/di"
	"github.com/fd1az/perp-router/internal/logger"
	"github.com/fd1az/perp-router/internal/monolith"
)

// Module implements the trading bounded context.
type Module struct{}

// RegisterServices registers the trading service. It depends on the
// markets registry for fees and the price book for mark prices.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, tradingDI.TradingService, func(sr di.ServiceRegistry) *app.Service {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewService(
			marketsDI.GetRegistry(sr),
			pricingDI.GetPriceBook(sr),
			log,
		)
	})
	return nil
}

// Startup has nothing to run; the service is pure request/response.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	tradingDI.GetTradingService(mono.Services())
	mono.Logger().Info(ctx, "trading module started")
	return nil
}
