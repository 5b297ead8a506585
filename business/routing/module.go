// Package routing implements the swap route and quote aggregation bounded
// context.
package routing

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	chainDI "github.com/fd1az/perp-router/business/chain/di"
	"github.com/fd1az/perp-router/business/routing/app"
	routingDI "github.com/fd1az/perp-router/business/routing/di"
	"github.com/fd1az/perp-router/business/routing/infra/kyberswap"
	"github.com/fd1az/perp-router/business/routing/infra/paraswap"
	"github.com/fd1az/perp-router/business/routing/infra/uniswap"
	"github.com/fd1az/perp-router/internal/asset"
	"github.com/fd1az/perp-router/internal/config"
	"github.com/fd1az/perp-router/internal/di"
	"github.com/fd1az/perp-router/internal/logger"
	"github.com/fd1az/perp-router/internal/monolith"
)

// Module implements the routing bounded context.
type Module struct{}

// RegisterServices registers all routing services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Routes (enabled venues, in quote order) - private dependency
	di.RegisterToken(c, routingDI.Routes, func(sr di.ServiceRegistry) []app.Route {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		ethClient := sr.Get("ethClient").(*ethclient.Client)

		routes, err := BuildRoutes(cfg, ethClient, chainDI.GetGasOracle(sr), log)
		if err != nil {
			panic("failed to create swap routes: " + err.Error())
		}
		return routes
	})

	// Register Registry (public - exposed to other modules)
	di.RegisterToken(c, routingDI.Registry, func(sr di.ServiceRegistry) *app.Registry {
		registry, err := app.NewRegistry(routingDI.GetRoutes(sr)...)
		if err != nil {
			panic("failed to create route registry: " + err.Error())
		}
		return registry
	})

	// Register Aggregator (public - exposed to other modules)
	di.RegisterToken(c, routingDI.Aggregator, func(sr di.ServiceRegistry) *app.Aggregator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		agg, err := app.NewAggregator(routingDI.GetRegistry(sr), cfg.Routing.QuoteTimeout, log,
			app.WithHead(chainDI.GetHeadTracker(sr)))
		if err != nil {
			panic("failed to create quote aggregator: " + err.Error())
		}
		return agg
	})

	// Register Guard (public - exposed to other modules)
	di.RegisterToken(c, routingDI.Guard, func(sr di.ServiceRegistry) *app.Guard {
		cfg := sr.Get("config").(*config.Config)
		return app.NewGuard(cfg.Routing.MaxQuoteAge, cfg.Routing.PathTTL,
			app.WithMaxBlockLag(chainDI.GetHeadTracker(sr), cfg.Routing.MaxBlockLag))
	})

	// Register Sessions (public - exposed to other modules)
	di.RegisterToken(c, routingDI.Sessions, func(sr di.ServiceRegistry) *app.Sessions {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewSessions(context.Background(), routingDI.GetAggregator(sr), cfg.Routing.Debounce, log,
			app.WithIdleTTL(cfg.Routing.SessionIdleTTL))
	})

	// Register TokenResolver (public - exposed to other modules)
	di.RegisterToken(c, routingDI.TokenResolver, func(sr di.ServiceRegistry) *app.TokenResolver {
		cfg := sr.Get("config").(*config.Config)
		assets := sr.Get("assetRegistry").(*asset.Registry)
		return app.NewTokenResolver(assets, cfg.Ethereum.ChainID)
	})

	return nil
}

// Startup resolves the routing services and releases them on shutdown.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	registry := routingDI.GetRegistry(mono.Services())
	if registry.Len() == 0 {
		log.Warn(ctx, "no swap routes enabled, quotes will report no route available")
	}
	sessions := routingDI.GetSessions(mono.Services())
	guard := routingDI.GetGuard(mono.Services())

	mono.OnClose(func() error {
		sessions.CloseAll()
		guard.Close()
		return nil
	})

	log.Info(ctx, "routing module started",
		"routes", registry.IDs(),
		"debounce", mono.Config().Routing.Debounce.String(),
		"max_quote_age", mono.Config().Routing.MaxQuoteAge.String())
	return nil
}

// BuildRoutes creates every enabled route in quote order. The order is the
// tie break between equal quotes.
func BuildRoutes(cfg *config.Config, client *ethclient.Client, gas app.GasPricer, log logger.LoggerInterface) ([]app.Route, error) {
	var routes []app.Route
	chainID := cfg.Ethereum.ChainID

	if cfg.Paraswap.Enabled {
		r, err := paraswap.New(paraswap.Config{
			BaseURL:      cfg.Paraswap.BaseURL,
			APIKey:       cfg.Paraswap.APIKey,
			Partner:      cfg.Paraswap.Partner,
			ChainID:      chainID,
			Timeout:      cfg.Paraswap.Timeout,
			RateLimitRPM: cfg.Paraswap.RateLimitRPM,
		}, gas, log)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}

	if cfg.Kyberswap.Enabled {
		r, err := kyberswap.New(kyberswap.Config{
			BaseURL:      cfg.Kyberswap.BaseURL,
			ClientID:     cfg.Kyberswap.APIKey,
			ChainID:      chainID,
			Timeout:      cfg.Kyberswap.Timeout,
			RateLimitRPM: cfg.Kyberswap.RateLimitRPM,
		}, gas, log)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}

	if cfg.Uniswap.Enabled && client != nil {
		r, err := uniswap.New(client, gas, uniswap.Config{
			Quoter:         cfg.Uniswap.QuoterAddressHex(),
			Router:         cfg.Uniswap.RouterAddressHex(),
			WrappedNative:  common.HexToAddress(cfg.Uniswap.WrappedNative),
			DefaultFeeTier: cfg.Uniswap.DefaultFeeTier,
		}, log)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}

	return routes, nil
}
