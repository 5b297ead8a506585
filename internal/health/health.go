// Package health serves liveness, readiness and detailed health endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/fd1az/perp-router/internal/logger"
)

const (
	checkTimeout    = 3 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Status is the /health body.
type Status struct {
	Status    string           `json:"status"`
	Checks    map[string]Check `json:"checks"`
	Version   string           `json:"version,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// Check is one check's result.
type Check struct {
	Healthy   bool   `json:"healthy"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// CheckFunc reports a component's health. A nil error is healthy; the
// message is shown either way.
type CheckFunc func(ctx context.Context) (string, error)

// Server runs registered checks on demand.
type Server struct {
	version string
	logger  logger.LoggerInterface
	server  *http.Server

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewServer creates a health server on port.
func NewServer(port int, version string, log logger.LoggerInterface) *Server {
	s := &Server{
		version: version,
		logger:  log,
		checks:  make(map[string]CheckFunc),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("alive"))
	})
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// RegisterCheck adds or replaces a named check.
func (s *Server) RegisterCheck(name string, check CheckFunc) {
	s.mu.Lock()
	s.checks[name] = check
	s.mu.Unlock()
}

// Handler returns the endpoint mux.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run serves until ctx is done. A listen failure is logged and returned;
// the health endpoint never takes the process down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error(ctx, "health server stopped", "error", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Evaluate runs every check concurrently, each under its own timeout.
func (s *Server) Evaluate(ctx context.Context) Status {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	fns := make([]CheckFunc, len(names))
	for i, name := range names {
		fns[i] = s.checks[name]
	}
	s.mu.RUnlock()

	results := make([]Check, len(names))
	p := pool.New().WithMaxGoroutines(8)
	for i, fn := range fns {
		p.Go(func() {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := time.Now()
			msg, err := fn(cctx)
			if err != nil {
				msg = err.Error()
			}
			results[i] = Check{Healthy: err == nil, Message: msg, LatencyMS: time.Since(start).Milliseconds()}
		})
	}
	p.Wait()

	status := Status{
		Status:    "ok",
		Checks:    make(map[string]Check, len(names)),
		Version:   s.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for i, name := range names {
		status.Checks[name] = results[i]
		if !results[i].Healthy {
			status.Status = "degraded"
		}
	}
	return status
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.Evaluate(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Warn(r.Context(), "health response write failed", "error", err)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Evaluate(r.Context()).Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	_, _ = w.Write([]byte("ready"))
}

// Freshness fails once last() is older than maxAge or has never been set.
func Freshness(last func() time.Time, maxAge time.Duration) CheckFunc {
	return func(context.Context) (string, error) {
		t := last()
		if t.IsZero() {
			return "", errors.New("no data yet")
		}
		age := time.Since(t).Round(time.Millisecond)
		if age > maxAge {
			return "", fmt.Errorf("stale: last update %s ago", age)
		}
		return fmt.Sprintf("updated %s ago", age), nil
	}
}

// Ping adapts a context-aware probe such as a node's BlockNumber call.
func Ping[T any](probe func(ctx context.Context) (T, error)) CheckFunc {
	return func(ctx context.Context) (string, error) {
		v, err := probe(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprint(v), nil
	}
}
