package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/perp-router/business/chain"
	chainDI "github.com/fd1az/perp-router/business/chain/di"
	chaindomain "github.com/fd1az/perp-router/business/chain/domain"
	"github.com/fd1az/perp-router/business/execution"
	executionDI "github.com/fd1az/perp-router/business/execution/di"
	"github.com/fd1az/perp-router/business/markets"
	marketsDI "github.com/fd1az/perp-router/business/markets/di"
	marketsdomain "github.com/fd1az/perp-router/business/markets/domain"
	"github.com/fd1az/perp-router/business/pricing"
	pricingDI "github.com/fd1az/perp-router/business/pricing/di"
	pricingdomain "github.com/fd1az/perp-router/business/pricing/domain"
	"github.com/fd1az/perp-router/business/routing"
	routingapp "github.com/fd1az/perp-router/business/routing/app"
	routingDI "github.com/fd1az/perp-router/business/routing/di"
	"github.com/fd1az/perp-router/business/trading"
	tradingDI "github.com/fd1az/perp-router/business/trading/di"
	"github.com/fd1az/perp-router/internal/api"
	"github.com/fd1az/perp-router/internal/apm"
	"github.com/fd1az/perp-router/internal/config"
	"github.com/fd1az/perp-router/internal/health"
	"github.com/fd1az/perp-router/internal/logger"
	"github.com/fd1az/perp-router/internal/metrics"
	"github.com/fd1az/perp-router/internal/monolith"
	"github.com/fd1az/perp-router/pkg/ui"
)

// modules in dependency order: chain feeds routing, markets and pricing
// feed trading, routing feeds execution.
func modules() []monolith.Module {
	return []monolith.Module{
		&chain.Module{},
		&markets.Module{},
		&pricing.Module{},
		&routing.Module{},
		&trading.Module{},
		&execution.Module{},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the market poller, price feed, quote engine and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tuiMode, _ := cmd.Flags().GetBool("tui")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.TUIMode = tuiMode
			return run(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.Bool("tui", false, "show the terminal dashboard instead of logs")
	f.String("listen", "", "HTTP API listen address")
	f.Duration("debounce", 0, "quote session debounce")
	f.String("history-dsn", "", "Postgres DSN for execution history")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *logger.Logger {
	return logger.New(w, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
}

func run(ctx context.Context, cfg *config.Config) error {
	// The dashboard owns the terminal, logs would garble it.
	var out io.Writer = os.Stderr
	if cfg.TUIMode {
		out = io.Discard
	}
	log := newLogger(cfg, out)
	defer log.Sync()

	log.Info(ctx, "starting perp router",
		"version", version,
		"environment", cfg.App.Environment)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Telemetry.Enabled {
		stop, err := startTelemetry(ctx, g, cfg, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer func() {
		if err := mono.Close(); err != nil {
			log.Error(context.Background(), "shutdown", "error", err)
		}
	}()

	mods := modules()
	if err := mono.RegisterModules(mods...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	hs := health.NewServer(cfg.Telemetry.HealthPort, version, log)
	registerChecks(hs, mono)
	g.Go(func() error { return hs.Run(ctx) })

	start := func() error {
		if err := mono.StartModules(ctx, mods...); err != nil {
			return fmt.Errorf("failed to start modules: %w", err)
		}
		if cfg.API.Enabled {
			srv := api.NewServer(cfg.API.ListenAddr, cfg.API.JWTSecret, dependencies(mono), log,
				api.WithRateLimit(cfg.API.RateLimitRPM))
			g.Go(func() error { return srv.Run(ctx) })
			log.Info(ctx, "api server started", "addr", cfg.API.ListenAddr)
		}
		return nil
	}

	if cfg.TUIMode {
		g.Go(func() error { return runTUI(ctx, cfg, mono, start) })
		return ignoreCanceled(g.Wait())
	}

	if err := start(); err != nil {
		return err
	}
	log.Info(ctx, "all modules started")
	err = g.Wait()
	log.Info(context.Background(), "shutting down")
	return ignoreCanceled(err)
}

// startTelemetry installs tracing and metrics and serves /metrics.
func startTelemetry(ctx context.Context, g *errgroup.Group, cfg *config.Config, log logger.LoggerInterface) (func(), error) {
	tc := cfg.Telemetry

	tp, err := apm.NewTraceProvider(ctx, apm.Options{
		ServiceName: tc.ServiceName,
		Provider:    apm.Provider(tc.TraceProvider),
		Endpoint:    tc.OTLPEndpoint,
		Headers:     tc.Headers(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	registry := prometheus.NewRegistry()
	mp, err := metrics.NewMetricProvider(ctx, metrics.Options{
		ServiceName: tc.ServiceName,
		Registry:    registry,
	})
	if err != nil {
		tp.Stop()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	ps := metrics.NewPrometheusServer(tc.PrometheusPort, registry)
	g.Go(func() error { return ps.Run(ctx) })
	log.Info(ctx, "telemetry started",
		"trace_provider", tc.TraceProvider,
		"prometheus_port", tc.PrometheusPort)

	return func() {
		if err := tp.Stop(); err != nil {
			log.Warn(context.Background(), "trace provider shutdown", "error", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			log.Warn(context.Background(), "metric provider shutdown", "error", err)
		}
	}, nil
}

func registerChecks(hs *health.Server, mono monolith.Monolith) {
	cfg := mono.Config()
	hs.RegisterCheck("ethereum", health.Ping(mono.EthClient().BlockNumber))
	tracker := chainDI.GetHeadTracker(mono.Services())
	hs.RegisterCheck("chain_head", health.Freshness(tracker.LastUpdated, 5*cfg.Ethereum.PollInterval))

	if cfg.PriceFeed.WebSocketURL != "" || cfg.PriceFeed.SnapshotURL != "" {
		book := pricingDI.GetPriceBook(mono.Services())
		hs.RegisterCheck("prices", health.Freshness(book.LastUpdated, cfg.PriceFeed.StaleTimeout))
	}
	if cfg.Markets.RegistryAddress != "" {
		registry := marketsDI.GetRegistry(mono.Services())
		hs.RegisterCheck("markets", health.Freshness(registry.LastUpdated, 3*cfg.Markets.PollInterval))
	}
}

func dependencies(mono monolith.Monolith) api.Dependencies {
	sr := mono.Services()
	return api.Dependencies{
		Prices:     pricingDI.GetPriceBook(sr),
		Markets:    marketsDI.GetRegistry(sr),
		Aggregator: routingDI.GetAggregator(sr),
		Sessions:   routingDI.GetSessions(sr),
		Tokens:     routingDI.GetTokenResolver(sr),
		Trading:    tradingDI.GetTradingService(sr),
		Executor:   executionDI.GetDispatcher(sr),
	}
}

func runTUI(ctx context.Context, cfg *config.Config, mono monolith.Monolith, start func() error) error {
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	go func() {
		select {
		case <-startSignal:
		case <-ctx.Done():
			return
		}

		ui.Send(ui.StartupMsg{Step: "config", Status: "done"})
		ui.Send(ui.ConnectionStatusMsg{Name: "node", Connected: false})
		if _, err := mono.EthClient().BlockNumber(ctx); err != nil {
			ui.Send(ui.StartupMsg{Step: "ethereum", Status: "failed"})
			ui.Send(ui.ErrorMsg{Error: fmt.Errorf("node: %w", err)})
		}

		if err := start(); err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
			return
		}
		ui.Send(ui.StartupMsg{Step: "routes", Status: "done"})

		sr := mono.Services()
		tracker := chainDI.GetHeadTracker(sr)
		go ui.Forward(ctx, tracker.Subscribe(), func(h chaindomain.Head) tea.Msg {
			return ui.ConnectionStatusMsg{Name: "node", Connected: true, Latency: h.Delay(), Block: h.Number}
		})
		go forwardSessions(ctx, routingDI.GetSessions(sr), routingDI.GetTokenResolver(sr))
		if cfg.PriceFeed.WebSocketURL == "" && cfg.PriceFeed.SnapshotURL == "" {
			ui.Send(ui.StartupMsg{Step: "prices", Status: "failed"})
		} else {
			book := pricingDI.GetPriceBook(sr)
			go ui.Forward(ctx, book.Subscribe(), func(q []pricingdomain.Quote) tea.Msg {
				return ui.PricesMsg{Quotes: q}
			})
		}
		if cfg.Markets.RegistryAddress == "" {
			ui.Send(ui.StartupMsg{Step: "markets", Status: "failed"})
		} else {
			registry := marketsDI.GetRegistry(sr)
			go ui.Forward(ctx, registry.Subscribe(), func(m []marketsdomain.MarketInfo) tea.Msg {
				return ui.MarketsMsg{Markets: m}
			})
		}
	}()

	go func() {
		<-ctx.Done()
		if ui.Program != nil {
			ui.Program.Quit()
		}
	}()

	if err := ui.Run(ui.Options{Title: cfg.App.Name, StaleAfter: cfg.PriceFeed.StaleTimeout}); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	// Quitting the dashboard stops the process.
	return context.Canceled
}

// forwardSessions shows every quote session opened over the API until it
// closes.
func forwardSessions(ctx context.Context, sessions *routingapp.Sessions, tokens *routingapp.TokenResolver) {
	events := sessions.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			id := ev.Session.ID()
			if ev.Closed {
				ui.Send(ui.SessionClosedMsg{ID: id})
				continue
			}
			ui.Send(ui.LogMsg{Level: "info", Message: "quote session " + id + " opened"})
			go ui.Forward(ctx, ev.Session.Subscribe(), func(snap routingapp.Snapshot) tea.Msg {
				return ui.SessionMsg{Pair: tokens.PairLabel(snap.Request), Snapshot: snap}
			})
		}
	}
}

func ignoreCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
