package app

import (
	"context"
	"sync"
	"time"

	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/cache"
	"github.com/fd1az/perp-router/internal/logger"
)

const eventBuffer = 16

// SessionEvent reports a session being opened or closed.
type SessionEvent struct {
	Session *QuoteSession
	Closed  bool
}

// Sessions tracks live quote sessions by id.
type Sessions struct {
	ctx     context.Context
	agg     *Aggregator
	quiet   time.Duration
	idleTTL time.Duration
	logger  logger.LoggerInterface

	mu       sync.RWMutex
	sessions map[string]*QuoteSession
	// leases expire sessions nobody touched within idleTTL.
	leases *cache.Cache[string, *QuoteSession]

	subMu sync.Mutex
	subs  []chan SessionEvent
}

// SessionsOption configures Sessions.
type SessionsOption func(*Sessions)

// WithIdleTTL closes sessions that were not opened, read or edited within
// ttl. ttl <= 0 keeps sessions until closed.
func WithIdleTTL(ttl time.Duration) SessionsOption {
	return func(m *Sessions) {
		m.idleTTL = ttl
	}
}

// NewSessions creates a session manager. Sessions run under ctx.
func NewSessions(ctx context.Context, agg *Aggregator, quiet time.Duration, log logger.LoggerInterface, opts ...SessionsOption) *Sessions {
	m := &Sessions{
		ctx:      ctx,
		agg:      agg,
		quiet:    quiet,
		logger:   log,
		sessions: make(map[string]*QuoteSession),
	}
	for _, opt := range opts {
		opt(m)
	}

	var sweep time.Duration
	if m.idleTTL > 0 {
		sweep = m.idleTTL / 2
	}
	m.leases = cache.New[string, *QuoteSession](sweep)
	m.leases.OnEvict(m.expire)
	return m
}

// Open starts a session for base and triggers its first round.
func (m *Sessions) Open(base QuoteRequest) *QuoteSession {
	s := NewQuoteSession(m.ctx, m.agg, base, m.quiet, m.logger)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	m.touch(s)

	m.notify(SessionEvent{Session: s})
	s.SetRequest(base)
	return s
}

// Get returns the session with id and renews its idle lease.
func (m *Sessions) Get(id string) (*QuoteSession, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperror.NotFound(apperror.CodeNotFound, "quote session "+id)
	}
	m.touch(s)
	return s, nil
}

// Close stops and forgets the session with id.
func (m *Sessions) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	m.leases.Delete(m.ctx, id)
	if ok {
		s.Close()
		m.notify(SessionEvent{Session: s, Closed: true})
	}
}

// CloseAll stops every session and the idle sweep.
func (m *Sessions) CloseAll() {
	m.leases.Close()
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*QuoteSession)
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
		m.notify(SessionEvent{Session: s, Closed: true})
	}
}

// Len returns the number of live sessions.
func (m *Sessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Subscribe returns a channel receiving open and close events. Events are
// buffered; a subscriber that falls too far behind misses them.
func (m *Sessions) Subscribe() <-chan SessionEvent {
	ch := make(chan SessionEvent, eventBuffer)
	m.subMu.Lock()
	m.subs = append(m.subs, ch)
	m.subMu.Unlock()
	return ch
}

func (m *Sessions) touch(s *QuoteSession) {
	if m.idleTTL > 0 {
		m.leases.Set(m.ctx, s.ID(), s, m.idleTTL)
	}
}

// expire closes a session whose lease ran out, unless a Get renewed it
// while the sweep was running.
func (m *Sessions) expire(id string, s *QuoteSession) {
	if _, renewed := m.leases.Get(m.ctx, id); renewed {
		return
	}
	m.mu.RLock()
	live := m.sessions[id] == s
	m.mu.RUnlock()
	if !live {
		return
	}
	m.logger.Info(m.ctx, "closing idle quote session", "session", id, "idle_ttl", m.idleTTL)
	m.Close(id)
}

func (m *Sessions) notify(ev SessionEvent) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.logger.Debug(m.ctx, "session subscriber lagging, event dropped", "session", ev.Session.ID())
		}
	}
}
