// Package execution implements the swap and order execution bounded context.
package execution

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/perp-router/business/execution/app"
	executionDI "github.com/fd1az/perp-router/business/execution/di"
	"github.com/fd1az/perp-router/business/execution/infra/erc20"
	"github.com/fd1az/perp-router/business/execution/infra/history"
	"github.com/fd1az/perp-router/business/execution/infra/orderapi"
	"github.com/fd1az/perp-router/business/execution/infra/wallet"
	routingDI "github.com/fd1az/perp-router/business/routing/di"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/config"
	"github.com/fd1az/perp-router/internal/di"
	"github.com/fd1az/perp-router/internal/logger"
	"github.com/fd1az/perp-router/internal/monolith"
)

// Module implements the execution bounded context.
type Module struct{}

// RegisterServices registers all execution services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Sender (signing wallet) - private dependency, nil without a key
	di.RegisterToken(c, executionDI.Sender, func(sr di.ServiceRegistry) app.TxSender {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		ethClient := sr.Get("ethClient").(*ethclient.Client)

		w, err := NewWallet(context.Background(), cfg, ethClient, log)
		if err != nil {
			if apperror.GetCode(err) == apperror.CodeWalletNotConfigured {
				return nil
			}
			panic("failed to create wallet: " + err.Error())
		}
		return w
	})

	// Register Allowances (ERC20 reads) - private dependency
	di.RegisterToken(c, executionDI.Allowances, func(sr di.ServiceRegistry) app.Allowances {
		log := sr.Get("logger").(logger.LoggerInterface)
		ethClient := sr.Get("ethClient").(*ethclient.Client)

		tokens, err := erc20.New(ethClient, log)
		if err != nil {
			panic("failed to create erc20 adapter: " + err.Error())
		}
		return tokens
	})

	// Register Orders (order-construction backend) - private dependency
	di.RegisterToken(c, executionDI.Orders, func(sr di.ServiceRegistry) app.OrderBuilder {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if cfg.OrderAPI.BaseURL == "" {
			return nil
		}

		client, err := orderapi.New(orderapi.Config{
			BaseURL:         cfg.OrderAPI.BaseURL,
			Timeout:         cfg.OrderAPI.Timeout,
			DefaultSlippage: cfg.OrderAPI.DefaultSlippageDecimal(),
		}, log)
		if err != nil {
			panic("failed to create order api client: " + err.Error())
		}
		return client
	})

	// Register History (public - exposed to other modules)
	di.RegisterToken(c, executionDI.History, func(sr di.ServiceRegistry) app.HistoryStore {
		cfg := sr.Get("config").(*config.Config)

		store, err := NewHistory(context.Background(), cfg.History)
		if err != nil {
			panic("failed to create history store: " + err.Error())
		}
		return store
	})

	// Register Dispatcher (public - exposed to other modules)
	di.RegisterToken(c, executionDI.Dispatcher, func(sr di.ServiceRegistry) *app.Dispatcher {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		deps := app.Dependencies{
			Routes:     routingDI.GetRegistry(sr),
			Guard:      routingDI.GetGuard(sr),
			Sessions:   routingDI.GetSessions(sr),
			Sender:     executionDI.GetSender(sr),
			Allowances: executionDI.GetAllowances(sr),
			Orders:     executionDI.GetOrders(sr),
			History:    executionDI.GetHistory(sr),
			Referrer:   cfg.OrderAPI.Referrer,
		}
		d, err := app.NewDispatcher(deps, log)
		if err != nil {
			panic("failed to create dispatcher: " + err.Error())
		}
		return d
	})

	return nil
}

// Startup logs the execution surface and releases the history store on
// shutdown.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	d := executionDI.GetDispatcher(mono.Services())
	if executionDI.GetSender(mono.Services()) == nil {
		log.Warn(ctx, "no wallet configured, execution endpoints will reject requests")
	}
	if cfg.OrderAPI.BaseURL == "" {
		log.Warn(ctx, "order_api.base_url not set, perp orders are disabled")
	}

	if closer, ok := executionDI.GetHistory(mono.Services()).(interface{ Close() }); ok {
		mono.OnClose(func() error {
			closer.Close()
			return nil
		})
	}

	log.Info(ctx, "execution module started",
		"account", d.Account().Hex(),
		"history", cfg.History.Driver)
	return nil
}

// NewWallet builds the signing wallet from the configured key source.
func NewWallet(ctx context.Context, cfg *config.Config, backend wallet.Backend, log logger.LoggerInterface) (*wallet.Wallet, error) {
	if !cfg.Wallet.Enabled() {
		return nil, apperror.New(apperror.CodeWalletNotConfigured)
	}

	var secrets wallet.SecretReader
	if cfg.Wallet.PrivateKey == "" {
		gcp, err := wallet.NewGCPSecrets(ctx)
		if err != nil {
			return nil, apperror.New(apperror.CodeSecretFetchFailed,
				apperror.WithCause(err),
				apperror.WithContext(err.Error()))
		}
		defer gcp.Close()
		secrets = gcp
	}

	key, err := wallet.LoadKey(ctx, cfg.Wallet, secrets)
	if err != nil {
		return nil, err
	}
	return wallet.New(backend, key, cfg.Ethereum.ChainID, cfg.Ethereum.ReceiptTimeout, log)
}

// NewHistory opens the configured history store.
func NewHistory(ctx context.Context, cfg config.HistoryConfig) (app.HistoryStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return history.NewMemory(history.DefaultCapacity), nil
	case "postgres":
		return history.NewPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, errors.New("unknown history driver: " + cfg.Driver)
	}
}
