package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	marketsDI "github.com/fd1az/perp-router/business/markets/di"
	routingapp "github.com/fd1az/perp-router/business/routing/app"
	routingDI "github.com/fd1az/perp-router/business/routing/di"
	tradingapp "github.com/fd1az/perp-router/business/trading/app"
	tradingDI "github.com/fd1az/perp-router/business/trading/di"
	tradingdomain "github.com/fd1az/perp-router/business/trading/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/config"
	"github.com/fd1az/perp-router/internal/monolith"
)

var hundred = decimal.NewFromInt(100)

// oneShot builds the services without starting any poller or feed.
func oneShot(cmd *cobra.Command) (monolith.Monolith, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	log := newLogger(cfg, cmd.ErrOrStderr())

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create monolith: %w", err)
	}
	if err := mono.RegisterModules(modules()...); err != nil {
		mono.Close()
		return nil, nil, fmt.Errorf("failed to register modules: %w", err)
	}
	return mono, func() { mono.Close() }, nil
}

func newQuoteCmd() *cobra.Command {
	var in, out, amount string
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap on every enabled route and pick the best",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mono, done, err := oneShot(cmd)
			if err != nil {
				return err
			}
			defer done()

			sr := mono.Services()
			req, err := routingDI.GetTokenResolver(sr).Request(in, out, amount)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), quoteDeadline(mono.Config()))
			defer cancel()
			sel, err := routingDI.GetAggregator(sr).Best(ctx, req)
			printSelection(cmd.OutOrStdout(), sel)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&in, "in", "ETH", "input token symbol or address")
	f.StringVar(&out, "out", "USDC", "output token symbol or address")
	f.StringVar(&amount, "amount", "", "input amount in token units")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func quoteDeadline(cfg *config.Config) time.Duration {
	if cfg.Routing.QuoteTimeout > 0 {
		return cfg.Routing.QuoteTimeout + time.Second
	}
	return routingapp.DefaultQuoteTimeout + time.Second
}

func printSelection(w io.Writer, sel routingapp.Selection) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("", "ROUTE", "AMOUNT OUT", "GAS (USD)", "IMPACT", "ERROR")
	for _, st := range sel.States {
		marker := ""
		if st.Source == sel.Best {
			marker = "★"
		}
		if st.Quote == nil {
			t.Row(marker, st.Source, "-", "-", "-", st.ErrString())
			continue
		}
		t.Row(marker, st.Source,
			st.Quote.AmountOut,
			st.Quote.GasUSD.StringFixed(2),
			st.Quote.PriceImpact.Mul(hundred).StringFixed(2)+"%",
			st.ErrString())
	}
	fmt.Fprintln(w, t.Render())
	if sel.Best != "" {
		fmt.Fprintf(w, "best route: %s\n", sel.Best)
	}
}

func newPreviewCmd() *cobra.Command {
	var req tradingapp.PreviewRequest
	var direction, price string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview the margin, liquidation price and fees of a perp order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := tradingdomain.ParseDirection(direction)
			if err != nil {
				return err
			}
			req.Direction = dir
			if price != "" {
				mark, err := decimal.NewFromString(price)
				if err != nil {
					return apperror.New(apperror.CodeInvalidInput, apperror.WithCause(err),
						apperror.WithContext("price"))
				}
				req.MarkPrice = mark
			}

			mono, done, err := oneShot(cmd)
			if err != nil {
				return err
			}
			defer done()

			ctx := cmd.Context()
			sr := mono.Services()
			if marketsDI.GetInfoReader(sr) != nil {
				if err := marketsDI.GetRegistry(sr).Refresh(ctx); err != nil {
					mono.Logger().Warn(ctx, "market data unavailable, previewing with zero fees", "error", err)
				}
			}

			p, err := tradingDI.GetTradingService(sr).Preview(ctx, req)
			if err != nil {
				return err
			}
			printPreview(cmd.OutOrStdout(), p)
			if !p.Valid() {
				return tradingapp.IssuesError(p.Issues)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Symbol, "symbol", "ETH-USD", "market pair")
	f.StringVar(&direction, "direction", "long", "long or short")
	f.StringVar(&req.Amount, "amount", "", "position size in USD")
	f.StringVar(&req.Leverage, "leverage", "", "leverage multiple")
	f.StringVar(&req.LimitPrice, "limit", "", "limit price, market order when empty")
	f.StringVar(&req.Balance, "balance", "", "account balance in USD")
	f.StringVar(&price, "price", "", "mark price, read from the price feed when empty")
	f.StringVar(&req.TakeProfitPrice, "tp", "", "take profit price")
	f.StringVar(&req.TakeProfitPercent, "tp-percent", "", "take profit as percent of margin")
	f.StringVar(&req.StopLossPrice, "sl", "", "stop loss price")
	f.StringVar(&req.StopLossPercent, "sl-percent", "", "stop loss as percent of margin")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func printPreview(w io.Writer, p tradingapp.Preview) {
	d := p.Details
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(p.Symbol, strings.ToUpper(string(p.Direction))+" "+p.Leverage.String()+"x")
	t.Row("Entry price", d.EntryPrice.StringFixed(2))
	t.Row("Size", d.Size.String())
	t.Row("Notional", d.Notional.StringFixed(2))
	t.Row("Margin", d.Margin.StringFixed(2))
	t.Row("Liquidation price", d.LiquidationPrice.StringFixed(2))
	t.Row("Trading fee", d.TradingFee.StringFixed(4))
	t.Row("Hourly interest", d.HourlyInterest.StringFixed(4))
	if p.TakeProfit.IsSet() {
		t.Row("Take profit", fmt.Sprintf("%s (%s%%)", p.TakeProfit.Price.StringFixed(2), p.TakeProfit.Percent.StringFixed(2)))
	}
	if p.StopLoss.IsSet() {
		t.Row("Stop loss", fmt.Sprintf("%s (%s%%)", p.StopLoss.Price.StringFixed(2), p.StopLoss.Percent.StringFixed(2)))
	}
	fmt.Fprintln(w, t.Render())
	for _, issue := range p.Issues {
		fmt.Fprintf(w, "! %s: %s\n", issue.Code, issue.Message)
	}
}
