// Package pricing implements the price feed bounded context.
package pricing

import (
	"context"
	"time"

	"github.com/fd1az/perp-router/business/pricing/app"
	pricingDI "github.com/fd1az/perp-router/business/pricing/di"
	"github.com/fd1az/perp-router/business/pricing/infra/pricews"
	"github.com/fd1az/perp-router/internal/config"
	"github.com/fd1az/perp-router/internal/di"
	"github.com/fd1az/perp-router/internal/logger"
	"github.com/fd1az/perp-router/internal/monolith"
)

const connectTimeout = 10 * time.Second

// Module implements the pricing bounded context.
type Module struct{}

// RegisterServices registers all pricing services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Feed (websocket stream) - private dependency
	di.RegisterToken(c, pricingDI.Feed, func(sr di.ServiceRegistry) app.Feed {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if cfg.PriceFeed.WebSocketURL == "" {
			return nil
		}

		feed, err := pricews.NewClient(pricews.ClientConfig{
			URL:     cfg.PriceFeed.WebSocketURL,
			Symbols: cfg.PriceFeed.Symbols,
		}, log)
		if err != nil {
			panic("failed to create price feed: " + err.Error())
		}
		return feed
	})

	// Register Snapshotter (HTTP fallback) - private dependency
	di.RegisterToken(c, pricingDI.Snapshotter, func(sr di.ServiceRegistry) app.Snapshotter {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if cfg.PriceFeed.SnapshotURL == "" {
			return nil
		}

		snap, err := pricews.NewSnapshotClient(cfg.PriceFeed.SnapshotURL, log)
		if err != nil {
			panic("failed to create price snapshot client: " + err.Error())
		}
		return snap
	})

	// Register PriceBook (public - exposed to other modules)
	di.RegisterToken(c, pricingDI.PriceBook, func(sr di.ServiceRegistry) *app.PriceBook {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewPriceBook(cfg.PriceFeed.StaleTimeout, pricingDI.GetSnapshotter(sr), log)
	})

	return nil
}

// Startup wires the feed into the book and connects in the background.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	book := pricingDI.GetPriceBook(mono.Services())
	feed := pricingDI.GetFeed(mono.Services())
	if feed == nil {
		log.Warn(ctx, "price_feed.websocket_url not set, prices come from snapshots only")
		return nil
	}
	feed.OnTicks(book.Apply)

	// Don't block startup on the stream; wsconn keeps retrying.
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := feed.Connect(connectCtx); err != nil {
		log.Warn(ctx, "price feed connection failed, will retry in background", "error", err)
		go func() {
			if err := feed.Connect(ctx); err != nil && ctx.Err() == nil {
				log.Error(ctx, "price feed gave up", "error", err)
				return
			}
			log.Info(ctx, "price feed connected")
		}()
	}

	mono.OnClose(feed.Close)

	log.Info(ctx, "pricing module started", "symbols", mono.Config().PriceFeed.Symbols)
	return nil
}
