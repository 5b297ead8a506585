package app

import (
	"context"
	"fmt"
	"time"

	"github.com/fd1az/perp-router/business/routing/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/cache"
)

const (
	// DefaultMaxQuoteAge is the oldest quote execution accepts.
	DefaultMaxQuoteAge = 30 * time.Second
	// DefaultPathTTL is how long a consumed path id is remembered.
	DefaultPathTTL = 10 * time.Minute
)

// Guard enforces the execution handoff rules: a quote context must be
// complete and fresh, and its path id can be claimed once.
type Guard struct {
	maxAge   time.Duration
	pathTTL  time.Duration
	consumed *cache.Cache[string, time.Time]
	now      func() time.Time

	head        HeadSource
	maxBlockLag uint64
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithMaxBlockLag rejects quotes priced more than maxLag blocks behind the
// latest head. Quotes without a block number are not checked.
func WithMaxBlockLag(h HeadSource, maxLag uint64) GuardOption {
	return func(g *Guard) {
		g.head = h
		g.maxBlockLag = maxLag
	}
}

// NewGuard creates a Guard. Zero durations use the defaults.
func NewGuard(maxAge, pathTTL time.Duration, opts ...GuardOption) *Guard {
	if maxAge <= 0 {
		maxAge = DefaultMaxQuoteAge
	}
	if pathTTL <= 0 {
		pathTTL = DefaultPathTTL
	}
	g := &Guard{
		maxAge:   maxAge,
		pathTTL:  pathTTL,
		consumed: cache.New[string, time.Time](pathTTL),
		now:      time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Check validates qc. latestSeq is the newest round issued by the session
// that produced the quote, or 0 when there is no session.
func (g *Guard) Check(qc domain.QuoteContext, latestSeq uint64) error {
	q := qc.Quote
	if q == nil {
		return apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("quote context has no quote"))
	}
	if qc.RouteID == "" || q.RouteID != qc.RouteID {
		return apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(fmt.Sprintf("quote from %q handed to route %q", q.RouteID, qc.RouteID)))
	}
	if age := q.Age(g.now()); age > g.maxAge {
		return apperror.New(apperror.CodeQuoteStale,
			apperror.WithContext(fmt.Sprintf("quote is %s old, limit %s", age.Round(time.Millisecond), g.maxAge)))
	}
	if lag := g.blockLag(q); lag > g.maxBlockLag {
		return apperror.New(apperror.CodeQuoteStale,
			apperror.WithContext(fmt.Sprintf("quote is %d blocks behind head, limit %d", lag, g.maxBlockLag)))
	}
	if latestSeq > 0 && q.Seq < latestSeq {
		return apperror.New(apperror.CodeQuoteStale,
			apperror.WithContext(fmt.Sprintf("quote round %d superseded by %d", q.Seq, latestSeq)))
	}
	return nil
}

func (g *Guard) blockLag(q *domain.Quote) uint64 {
	if g.head == nil || g.maxBlockLag == 0 || q.BlockNumber == 0 {
		return 0
	}
	head := g.head.LatestBlock()
	if head <= q.BlockNumber {
		return 0
	}
	return head - q.BlockNumber
}

// Claim marks the quote's path id as used. A second claim of the same id
// fails with QUOTE_CONSUMED. Quotes without a path id are keyed by route,
// seq and fetch time.
func (g *Guard) Claim(ctx context.Context, qc domain.QuoteContext) error {
	if qc.Quote == nil {
		return apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext("quote context has no quote"))
	}
	key := pathKey(qc)
	if !g.consumed.SetIfAbsent(ctx, key, g.now(), g.pathTTL) {
		return apperror.New(apperror.CodeQuoteConsumed,
			apperror.WithContext(fmt.Sprintf("%s: %s", qc.RouteID, key)))
	}
	return nil
}

// Consumed reports whether the quote's path id was already claimed.
func (g *Guard) Consumed(ctx context.Context, qc domain.QuoteContext) bool {
	if qc.Quote == nil {
		return false
	}
	_, ok := g.consumed.Get(ctx, pathKey(qc))
	return ok
}

// Close stops the consumed-id janitor.
func (g *Guard) Close() {
	g.consumed.Close()
}

func pathKey(qc domain.QuoteContext) string {
	if qc.Quote.PathID != "" {
		return qc.RouteID + "/" + qc.Quote.PathID
	}
	return fmt.Sprintf("%s/%d/%d", qc.RouteID, qc.Quote.Seq, qc.Quote.FetchedAt.UnixNano())
}
