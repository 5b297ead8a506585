package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fd1az/perp-router/business/routing/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/debounce"
	"github.com/fd1az/perp-router/internal/logger"
)

// Snapshot is what a session shows at one point in time.
type Snapshot struct {
	SessionID string
	Seq       uint64
	Request   QuoteRequest
	States    []domain.QuoteState
	Best      string
	Loading   bool
	UpdatedAt time.Time
}

// BestQuote returns the quote of the best route, or nil.
func (s Snapshot) BestQuote() *domain.Quote {
	return s.QuoteFor(s.Best)
}

// QuoteFor returns the usable quote of routeID, or nil.
func (s Snapshot) QuoteFor(routeID string) *domain.Quote {
	if routeID == "" {
		return nil
	}
	for _, st := range s.States {
		if st.Source == routeID && st.Usable() {
			return st.Quote
		}
	}
	return nil
}

// QuoteSession turns a stream of edits into debounced quote rounds. Every
// round is tagged with a sequence number; a response that is not for the
// latest issued round is discarded.
type QuoteSession struct {
	id        string
	ctx       context.Context
	agg       *Aggregator
	debouncer *debounce.Debouncer[QuoteRequest]
	logger    logger.LoggerInterface

	// mu also orders publishes, so subscribers see rounds in issue order.
	mu      sync.Mutex
	request QuoteRequest
	issued  uint64
	snap    Snapshot
	closed  bool
	subs    []chan Snapshot
}

// NewQuoteSession creates a session for base. Quote rounds run under ctx.
func NewQuoteSession(ctx context.Context, agg *Aggregator, base QuoteRequest, quiet time.Duration, log logger.LoggerInterface) *QuoteSession {
	s := &QuoteSession{
		id:      uuid.NewString(),
		ctx:     ctx,
		agg:     agg,
		logger:  log,
		request: base,
	}
	s.snap = Snapshot{SessionID: s.id, Request: base, States: emptyStates(agg.registry)}
	s.debouncer = debounce.New(quiet, s.run)
	return s
}

// ID returns the session id.
func (s *QuoteSession) ID() string {
	return s.id
}

// SetAmount records an amount edit and restarts the quiet period.
func (s *QuoteSession) SetAmount(amount string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.request = s.request.WithAmount(amount)
	req := s.request
	s.mu.Unlock()

	s.debouncer.Trigger(req)
}

// SetRequest replaces the whole request, e.g. after a token change. Any
// pending round for the old request is dropped.
func (s *QuoteSession) SetRequest(req QuoteRequest) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.request = req
	s.mu.Unlock()

	s.debouncer.Cancel()
	s.debouncer.Trigger(req)
}

// Refresh re-quotes the current request now, skipping the quiet period.
func (s *QuoteSession) Refresh() {
	s.debouncer.Cancel()
	s.mu.Lock()
	req := s.request
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		go s.run(req)
	}
}

// LatestSeq returns the sequence number of the latest issued round.
func (s *QuoteSession) LatestSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued
}

// Snapshot returns the current view.
func (s *QuoteSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Context returns the execution context for routeID from the current view.
// An empty routeID means the best route.
func (s *QuoteSession) Context(routeID string) (domain.QuoteContext, error) {
	snap := s.Snapshot()
	if routeID == "" {
		routeID = snap.Best
	}
	q := snap.QuoteFor(routeID)
	if q == nil {
		if snap.Loading {
			return domain.QuoteContext{}, apperror.New(apperror.CodeQuoteStale,
				apperror.WithContext("quote refresh in progress"))
		}
		return domain.QuoteContext{}, apperror.New(apperror.CodeNoRouteAvailable,
			apperror.WithContext(routeID))
	}
	return domain.QuoteContext{Quote: q, RouteID: routeID}, nil
}

// Subscribe returns a channel receiving every new snapshot. Slow
// subscribers miss snapshots rather than block quote rounds. The channel is
// closed when the session closes.
func (s *QuoteSession) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

// Close stops the debouncer and closes every subscriber channel. Rounds in
// flight finish but are not published. Close is idempotent.
func (s *QuoteSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.mu.Unlock()

	s.debouncer.Stop()
}

func (s *QuoteSession) run(req QuoteRequest) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.issued++
	seq := s.issued
	loading := !req.Disabled()
	s.snap = Snapshot{
		SessionID: s.id,
		Seq:       seq,
		Request:   req,
		States:    loadingStates(s.agg.registry, loading),
		Loading:   loading,
		UpdatedAt: time.Now(),
	}
	s.publishLocked(s.snap)
	s.mu.Unlock()

	states := s.agg.quote(s.ctx, req, seq)
	best, _ := domain.SelectBestQuote(states)

	s.mu.Lock()
	if seq != s.issued || s.closed {
		latest := s.issued
		s.mu.Unlock()
		s.logger.Debug(s.ctx, "discarding stale quote round", "session", s.id, "seq", seq, "latest", latest)
		return
	}
	s.snap = Snapshot{
		SessionID: s.id,
		Seq:       seq,
		Request:   req,
		States:    states,
		Best:      best,
		UpdatedAt: time.Now(),
	}
	s.publishLocked(s.snap)
	s.mu.Unlock()
}

// publishLocked hands snap to every subscriber without blocking. s.mu must
// be held.
func (s *QuoteSession) publishLocked(snap Snapshot) {
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Replace the unread snapshot with the newer one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func emptyStates(r *Registry) []domain.QuoteState {
	return loadingStates(r, false)
}

func loadingStates(r *Registry, loading bool) []domain.QuoteState {
	ids := r.IDs()
	states := make([]domain.QuoteState, len(ids))
	for i, id := range ids {
		states[i] = domain.QuoteState{Source: id, Loading: loading}
	}
	return states
}
