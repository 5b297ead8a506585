// Package markets implements the market registry bounded context.
package markets

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/perp-router/business/markets/app"
	marketsDI "github.com/fd1az/perp-router/business/markets/di"
	"github.com/fd1az/perp-router/business/markets/domain"
	"github.com/fd1az/perp-router/business/markets/infra/ethereum"
	"github.com/fd1az/perp-router/internal/config"
	"github.com/fd1az/perp-router/internal/di"
	"github.com/fd1az/perp-router/internal/logger"
	"github.com/fd1az/perp-router/internal/monolith"
)

// Module implements the markets bounded context.
type Module struct{}

// RegisterServices registers all markets services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register InfoReader (on-chain registry) - private dependency
	di.RegisterToken(c, marketsDI.InfoReader, func(sr di.ServiceRegistry) app.InfoReader {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if cfg.Markets.RegistryAddress == "" {
			return nil
		}
		ethClient := sr.Get("ethClient").(*ethclient.Client)

		reader, err := ethereum.NewReader(ethClient, common.HexToAddress(cfg.Markets.RegistryAddress), log)
		if err != nil {
			panic("failed to create market reader: " + err.Error())
		}
		return reader
	})

	// Register Registry (public - exposed to other modules)
	di.RegisterToken(c, marketsDI.Registry, func(sr di.ServiceRegistry) *app.Registry {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		registry, err := app.NewRegistry(marketsDI.GetInfoReader(sr), RegistryConfig(cfg.Markets), log)
		if err != nil {
			panic("failed to create market registry: " + err.Error())
		}
		return registry
	})

	return nil
}

// Startup starts the registry poller when a registry contract is configured.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	if marketsDI.GetInfoReader(mono.Services()) == nil {
		log.Warn(ctx, "markets.registry_address not set, venue routes will report no market data")
		return nil
	}

	registry := marketsDI.GetRegistry(mono.Services())
	go registry.Run(ctx)

	log.Info(ctx, "markets module started",
		"pairs", len(mono.Config().Markets.Pairs),
		"venues", len(mono.Config().Markets.Venues),
		"poll_interval", mono.Config().Markets.PollInterval.String())
	return nil
}

// RegistryConfig maps configuration onto the registry's own config.
func RegistryConfig(cfg config.MarketsConfig) app.RegistryConfig {
	out := app.RegistryConfig{
		Account:      common.HexToAddress(cfg.Account),
		PollInterval: cfg.PollInterval,
	}
	for _, p := range cfg.Pairs {
		out.Pairs = append(out.Pairs, domain.Pair{ID: p.ID, Symbol: p.Symbol})
	}
	for _, v := range cfg.Venues {
		venue := domain.Venue{ID: v.ID, Name: v.Name, Pairs: v.Pairs}
		if fee, ok := v.FeeOverride(); ok {
			venue.Fee = &fee
		}
		if venue.Name == "" {
			venue.Name = v.ID
		}
		out.Venues = append(out.Venues, venue)
	}
	return out
}
