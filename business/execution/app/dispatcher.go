package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/perp-router/business/execution/domain"
	routingapp "github.com/fd1az/perp-router/business/routing/app"
	routingdomain "github.com/fd1az/perp-router/business/routing/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/logger"
)

const (
	tracerName = "execution"
	meterName  = "execution"
)

// SessionSource looks up live quote sessions.
type SessionSource interface {
	Get(id string) (*routingapp.QuoteSession, error)
}

// Dependencies are the collaborators of a Dispatcher. Sender, Allowances,
// Orders, Sessions and History may be nil; the operations that need a
// missing one fail instead of the dispatcher refusing to start.
type Dependencies struct {
	Routes     *routingapp.Registry
	Guard      *routingapp.Guard
	Sessions   SessionSource
	Sender     TxSender
	Allowances Allowances
	Orders     OrderBuilder
	History    HistoryStore
	Referrer   string
}

type dispatcherMetrics struct {
	executions       metric.Int64Counter
	executionLatency metric.Float64Histogram
}

// Dispatcher turns quotes and order intents into mined transactions. It
// never retries: every failure is returned to the caller.
type Dispatcher struct {
	deps   Dependencies
	logger logger.LoggerInterface
	now    func() time.Time

	tracer  trace.Tracer
	metrics *dispatcherMetrics
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps Dependencies, log logger.LoggerInterface) (*Dispatcher, error) {
	if deps.Routes == nil || deps.Guard == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("dispatcher needs a route registry and a guard"))
	}
	d := &Dispatcher{
		deps:   deps,
		logger: log,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	if err := d.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return d, nil
}

func (d *Dispatcher) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	d.metrics = &dispatcherMetrics{}

	d.metrics.executions, err = meter.Int64Counter(
		"executions_total",
		metric.WithDescription("Execution attempts by kind, route and status"),
	)
	if err != nil {
		return err
	}

	d.metrics.executionLatency, err = meter.Float64Histogram(
		"execution_latency_ms",
		metric.WithDescription("Time from dispatch to receipt in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// Account returns the signing address, or zero without a wallet.
func (d *Dispatcher) Account() common.Address {
	if d.deps.Sender == nil {
		return common.Address{}
	}
	return d.deps.Sender.Address()
}

// ExecuteSwap runs the quote in qc. The quote must be fresh and its path
// unused; the path is consumed before anything is sent.
func (d *Dispatcher) ExecuteSwap(ctx context.Context, qc routingdomain.QuoteContext, params routingapp.ExecParams) (*domain.Receipt, error) {
	return d.executeSwap(ctx, qc, params, 0)
}

// ExecuteSession runs routeID's quote from a live session, checked against
// the session's latest sequence. An empty routeID takes the session's best.
func (d *Dispatcher) ExecuteSession(ctx context.Context, sessionID, routeID string, params routingapp.ExecParams) (*domain.Receipt, error) {
	if d.deps.Sessions == nil {
		return nil, apperror.New(apperror.CodeServiceUnavailable,
			apperror.WithContext("quote sessions are not available"))
	}
	session, err := d.deps.Sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if routeID == "" {
		routeID = session.Snapshot().Best
	}
	qc, err := session.Context(routeID)
	if err != nil {
		return nil, err
	}
	return d.executeSwap(ctx, qc, params, session.LatestSeq())
}

func (d *Dispatcher) executeSwap(ctx context.Context, qc routingdomain.QuoteContext, params routingapp.ExecParams, latestSeq uint64) (*domain.Receipt, error) {
	ctx, span := d.tracer.Start(ctx, "execution.swap",
		trace.WithAttributes(attribute.String("route", qc.RouteID)),
	)
	defer span.End()

	rec := domain.NewRecord(domain.KindSwap, d.now())
	rec.Route = qc.RouteID
	if qc.Quote != nil {
		rec.PathID = qc.Quote.PathID
	}

	start := time.Now()
	receipt, err := d.swap(ctx, qc, params, latestSeq, &rec)
	d.finish(ctx, span, &rec, start, err)
	return receipt, err
}

func (d *Dispatcher) swap(ctx context.Context, qc routingdomain.QuoteContext, params routingapp.ExecParams, latestSeq uint64, rec *domain.Record) (*domain.Receipt, error) {
	if d.deps.Sender == nil {
		return nil, apperror.New(apperror.CodeWalletNotConfigured)
	}
	route, err := d.deps.Routes.Get(qc.RouteID)
	if err != nil {
		return nil, err
	}
	if err := d.deps.Guard.Check(qc, latestSeq); err != nil {
		return nil, err
	}
	if err := d.deps.Guard.Claim(ctx, qc); err != nil {
		return nil, err
	}

	account := d.deps.Sender.Address()
	if params.Sender != (common.Address{}) && params.Sender != account {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("sender %s is not the wallet account", params.Sender.Hex())))
	}
	params.Sender = account

	tx, err := route.Execute(ctx, qc, params)
	if err != nil {
		return nil, err
	}

	approveHash, err := d.ensureAllowance(ctx, tx)
	if err != nil {
		return nil, err
	}
	if approveHash != (common.Hash{}) {
		rec.ApproveHash = approveHash.Hex()
	}

	receipt, err := d.sendAndWait(ctx, tx, rec)
	if err != nil && approveHash != (common.Hash{}) {
		return receipt, apperror.New(apperror.CodePartialExecution,
			apperror.WithCause(err),
			apperror.WithDetail("approve_tx", approveHash.Hex()),
			apperror.WithContext(fmt.Sprintf("approve %s confirmed, swap failed: %v", approveHash.Hex(), err)))
	}
	return receipt, err
}

// ensureAllowance approves the spender when the current allowance is short
// and returns the approve hash, or zero when nothing was sent.
func (d *Dispatcher) ensureAllowance(ctx context.Context, tx *domain.TxRequest) (common.Hash, error) {
	if !tx.NeedsApproval() {
		return common.Hash{}, nil
	}
	if d.deps.Allowances == nil {
		return common.Hash{}, apperror.New(apperror.CodeAllowanceCheckFailed,
			apperror.WithContext("no allowance reader configured"))
	}

	owner := d.deps.Sender.Address()
	current, err := d.deps.Allowances.Allowance(ctx, tx.ApproveToken, owner, tx.Spender)
	if err != nil {
		return common.Hash{}, apperror.New(apperror.CodeAllowanceCheckFailed,
			apperror.WithCause(err),
			apperror.WithContext(tx.ApproveToken.Hex()))
	}
	if current != nil && current.Cmp(tx.ApproveAmount) >= 0 {
		return common.Hash{}, nil
	}

	approve, err := d.deps.Allowances.ApproveTx(tx.ApproveToken, tx.Spender, tx.ApproveAmount)
	if err != nil {
		return common.Hash{}, apperror.New(apperror.CodeAllowanceCheckFailed,
			apperror.WithCause(err),
			apperror.WithContext("encode approve"))
	}

	d.logger.Info(ctx, "approving spender",
		"token", tx.ApproveToken.Hex(),
		"spender", tx.Spender.Hex(),
		"amount", tx.ApproveAmount.String())

	hash, err := d.deps.Sender.Send(ctx, approve)
	if err != nil {
		return common.Hash{}, err
	}
	receipt, err := d.deps.Sender.WaitMined(ctx, hash)
	if err != nil {
		return common.Hash{}, err
	}
	if !receipt.Succeeded() {
		return common.Hash{}, apperror.New(apperror.CodeTransactionReverted,
			apperror.WithContext("approve "+hash.Hex()))
	}
	return hash, nil
}

func (d *Dispatcher) sendAndWait(ctx context.Context, tx *domain.TxRequest, rec *domain.Record) (*domain.Receipt, error) {
	hash, err := d.deps.Sender.Send(ctx, tx)
	if err != nil {
		return nil, err
	}
	rec.TxHash = hash.Hex()

	receipt, err := d.deps.Sender.WaitMined(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !receipt.Succeeded() {
		return receipt, apperror.New(apperror.CodeTransactionReverted,
			apperror.WithContext(hash.Hex()))
	}
	return receipt, nil
}

// PlaceOrder opens a position through the order backend.
func (d *Dispatcher) PlaceOrder(ctx context.Context, intent domain.OrderIntent) (*domain.Receipt, error) {
	ctx, span := d.tracer.Start(ctx, "execution.place_order",
		trace.WithAttributes(attribute.String("pair", intent.Pair), attribute.Bool("long", intent.Long)),
	)
	defer span.End()

	rec := domain.NewRecord(domain.KindOrder, d.now())
	rec.Pair = intent.Pair

	start := time.Now()
	receipt, err := d.placeOrder(ctx, intent, &rec)
	d.finish(ctx, span, &rec, start, err)
	return receipt, err
}

func (d *Dispatcher) placeOrder(ctx context.Context, intent domain.OrderIntent, rec *domain.Record) (*domain.Receipt, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	intent.Trader = d.deps.Sender.Address()
	if intent.Referrer == "" {
		intent.Referrer = d.deps.Referrer
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	payload, err := d.deps.Orders.BuildOrder(ctx, intent)
	if err != nil {
		return nil, err
	}
	return d.sendAndWait(ctx, payload.Tx(), rec)
}

// ClosePosition closes a position through the order backend.
func (d *Dispatcher) ClosePosition(ctx context.Context, intent domain.CloseIntent) (*domain.Receipt, error) {
	ctx, span := d.tracer.Start(ctx, "execution.close_position",
		trace.WithAttributes(attribute.String("pair", intent.Pair)),
	)
	defer span.End()

	rec := domain.NewRecord(domain.KindClose, d.now())
	rec.Pair = intent.Pair

	start := time.Now()
	receipt, err := d.closePosition(ctx, intent, &rec)
	d.finish(ctx, span, &rec, start, err)
	return receipt, err
}

func (d *Dispatcher) closePosition(ctx context.Context, intent domain.CloseIntent, rec *domain.Record) (*domain.Receipt, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	intent.Trader = d.deps.Sender.Address()
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	payload, err := d.deps.Orders.BuildClose(ctx, intent)
	if err != nil {
		return nil, err
	}
	return d.sendAndWait(ctx, payload.Tx(), rec)
}

func (d *Dispatcher) ready() error {
	if d.deps.Sender == nil {
		return apperror.New(apperror.CodeWalletNotConfigured)
	}
	if d.deps.Orders == nil {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("order_api.base_url not set"))
	}
	return nil
}

// History returns the most recent execution records.
func (d *Dispatcher) History(ctx context.Context, limit int) ([]domain.Record, error) {
	if d.deps.History == nil {
		return nil, nil
	}
	return d.deps.History.List(ctx, limit)
}

func (d *Dispatcher) finish(ctx context.Context, span trace.Span, rec *domain.Record, start time.Time, err error) {
	rec.Status = statusOf(err)
	if err != nil {
		rec.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn(ctx, "execution failed",
			"kind", rec.Kind, "route", rec.Route, "pair", rec.Pair,
			"tx_hash", rec.TxHash, "error", err)
	} else {
		d.logger.Info(ctx, "execution confirmed",
			"kind", rec.Kind, "route", rec.Route, "pair", rec.Pair, "tx_hash", rec.TxHash)
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", string(rec.Kind)),
		attribute.String("route", rec.Route),
		attribute.String("status", string(rec.Status)),
	)
	d.metrics.executions.Add(ctx, 1, attrs)
	d.metrics.executionLatency.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	if d.deps.History == nil {
		return
	}
	if err := d.deps.History.Save(ctx, *rec); err != nil {
		d.logger.Error(ctx, "failed to record execution", "id", rec.ID, "error", err)
	}
}

func statusOf(err error) domain.Status {
	switch {
	case err == nil:
		return domain.StatusConfirmed
	case apperror.GetCode(err) == apperror.CodePartialExecution:
		return domain.StatusPartial
	case apperror.GetCode(err) == apperror.CodeTransactionReverted:
		return domain.StatusReverted
	default:
		return domain.StatusFailed
	}
}
