// Package monolith wires the shared infrastructure every bounded context
// receives and drives module registration and startup.
package monolith

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/perp-router/internal/asset"
	"github.com/fd1az/perp-router/internal/config"
	"github.com/fd1az/perp-router/internal/di"
	"github.com/fd1az/perp-router/internal/logger"
)

// Monolith is what a module sees at startup.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	EthClient() *ethclient.Client
	AssetRegistry() *asset.Registry
	Services() di.ServiceRegistry
	// OnClose registers fn to run when the application shuts down.
	OnClose(fn func() error)
}

// Module is a bounded context.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

type app struct {
	config        *config.Config
	logger        logger.LoggerInterface
	ethClient     *ethclient.Client
	assetRegistry *asset.Registry
	container     di.Container

	closeMu sync.Mutex
	closers []func() error
}

// New dials the node and registers the global services: "config",
// "logger", "ethClient" and "assetRegistry".
func New(cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	assets, err := Assets(cfg)
	if err != nil {
		return nil, err
	}

	ethClient, err := ethclient.Dial(cfg.Ethereum.HTTPURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Ethereum.HTTPURL, err)
	}

	container := di.NewContainer()
	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("ethClient", ethClient)
	container.Register("assetRegistry", assets)

	return &app{
		config:        cfg,
		logger:        log,
		ethClient:     ethClient,
		assetRegistry: assets,
		container:     container,
	}, nil
}

// Assets builds the default registry plus the configured extra tokens on
// the configured chain.
func Assets(cfg *config.Config) (*asset.Registry, error) {
	reg := asset.DefaultRegistry()
	for _, t := range cfg.Tokens {
		id := asset.TokenID(cfg.Ethereum.ChainID, common.HexToAddress(t.Address))
		if err := reg.Register(asset.New(id, t.Symbol, t.Name, t.Decimals)); err != nil {
			return nil, fmt.Errorf("tokens: %w", err)
		}
	}
	return reg, nil
}

func (a *app) Config() *config.Config         { return a.config }
func (a *app) Logger() logger.LoggerInterface { return a.logger }
func (a *app) EthClient() *ethclient.Client   { return a.ethClient }
func (a *app) AssetRegistry() *asset.Registry { return a.assetRegistry }
func (a *app) Services() di.ServiceRegistry   { return a.container }

func (a *app) OnClose(fn func() error) {
	a.closeMu.Lock()
	a.closers = append(a.closers, fn)
	a.closeMu.Unlock()
}

// RegisterModules registers every module's services in order.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts modules in order, stopping at the first failure.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close runs the registered closers in reverse order and then closes the
// node connection.
func (a *app) Close() error {
	a.closeMu.Lock()
	closers := a.closers
	a.closers = nil
	a.closeMu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.ethClient != nil {
		a.ethClient.Close()
	}
	return errors.Join(errs...)
}
