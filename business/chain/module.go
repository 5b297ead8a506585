// Package chain implements the chain bounded context: the followed block
// head and cached gas prices.
package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/perp-router/business/chain/app"
	chainDI "github.com/fd1az/perp-router/business/chain/di"
	"github.com/fd1az/perp-router/business/chain/infra/ethereum"
	"github.com/fd1az/perp-router/internal/config"
	"github.com/fd1az/perp-router/internal/di"
	"github.com/fd1az/perp-router/internal/logger"
	"github.com/fd1az/perp-router/internal/monolith"
)

// Module implements the chain bounded context.
type Module struct{}

// RegisterServices registers the head tracker and gas oracle.
func (m *Module) RegisterServices(c di.Container) error {
	// Register HeadTracker (public - quote staleness, health, dashboard)
	di.RegisterToken(c, chainDI.HeadTracker, func(sr di.ServiceRegistry) *app.HeadTracker {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)

		tracker, err := app.NewHeadTracker(client, ethereum.WebSocketDialer(cfg.Ethereum.WebSocketURL), app.TrackerConfig{
			PollInterval:   cfg.Ethereum.PollInterval,
			ReconnectDelay: cfg.Ethereum.ReconnectDelay,
		}, log)
		if err != nil {
			panic("failed to create head tracker: " + err.Error())
		}
		return tracker
	})

	// Register GasOracle (public - gas pricer for swap routes)
	di.RegisterToken(c, chainDI.GasOracle, func(sr di.ServiceRegistry) *ethereum.GasOracle {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("ethClient").(*ethclient.Client)

		oracleCfg := ethereum.DefaultGasOracleConfig()
		if cfg.Ethereum.GasCacheTTL > 0 {
			oracleCfg.CacheTTL = cfg.Ethereum.GasCacheTTL
		}
		if cfg.Ethereum.MaxGasPriceGwei > 0 {
			oracleCfg.MaxGasPrice = ethereum.GweiToWei(cfg.Ethereum.MaxGasPriceGwei)
		}
		oracle, err := ethereum.NewGasOracle(client, oracleCfg, log)
		if err != nil {
			panic("failed to create gas oracle: " + err.Error())
		}
		return oracle
	})

	return nil
}

// Startup starts following the chain head.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	tracker := chainDI.GetHeadTracker(mono.Services())
	go tracker.Run(ctx)

	mono.OnClose(chainDI.GetGasOracle(mono.Services()).Close)

	mode := "polling"
	if mono.Config().Ethereum.WebSocketURL != "" {
		mode = "websocket"
	}
	mono.Logger().Info(ctx, "chain module started",
		"mode", mode,
		"poll_interval", mono.Config().Ethereum.PollInterval.String())
	return nil
}
