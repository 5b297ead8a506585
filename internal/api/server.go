// Package api exposes prices, markets, quotes, order previews and execution
// over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	execdomain "github.com/fd1az/perp-router/business/execution/domain"
	marketsdomain "github.com/fd1az/perp-router/business/markets/domain"
	pricingdomain "github.com/fd1az/perp-router/business/pricing/domain"
	routingapp "github.com/fd1az/perp-router/business/routing/app"
	routingdomain "github.com/fd1az/perp-router/business/routing/domain"
	tradingapp "github.com/fd1az/perp-router/business/trading/app"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/logger"
	"github.com/fd1az/perp-router/internal/ratelimit"
)

const shutdownTimeout = 5 * time.Second

// PriceSource lists the latest prices.
type PriceSource interface {
	All() []pricingdomain.Quote
}

// MarketSource lists markets and derives venue routes.
type MarketSource interface {
	All() []marketsdomain.MarketInfo
	Get(symbol string) (marketsdomain.MarketInfo, bool)
	Routes(symbol string, long bool) []routingdomain.RouteInfo
}

// Executor runs swaps and perp orders.
type Executor interface {
	Account() common.Address
	ExecuteSwap(ctx context.Context, qc routingdomain.QuoteContext, params routingapp.ExecParams) (*execdomain.Receipt, error)
	ExecuteSession(ctx context.Context, sessionID, routeID string, params routingapp.ExecParams) (*execdomain.Receipt, error)
	PlaceOrder(ctx context.Context, intent execdomain.OrderIntent) (*execdomain.Receipt, error)
	ClosePosition(ctx context.Context, intent execdomain.CloseIntent) (*execdomain.Receipt, error)
	History(ctx context.Context, limit int) ([]execdomain.Record, error)
}

// Dependencies are the services behind the handlers. Any of them may be
// nil; the endpoints that need a missing one answer 503.
type Dependencies struct {
	Prices     PriceSource
	Markets    MarketSource
	Aggregator *routingapp.Aggregator
	Sessions   *routingapp.Sessions
	Tokens     *routingapp.TokenResolver
	Trading    *tradingapp.Service
	Executor   Executor
}

// Server is the HTTP API.
type Server struct {
	deps   Dependencies
	engine *gin.Engine
	http   *http.Server
	logger logger.LoggerInterface
}

// Option configures a Server.
type Option func(*gin.Engine)

// WithRateLimit limits each client IP to requestsPerMinute. Zero disables it.
func WithRateLimit(requestsPerMinute int) Option {
	return func(e *gin.Engine) {
		if requestsPerMinute > 0 {
			e.Use(RateLimit(ratelimit.NewKeyed(requestsPerMinute, 0)))
		}
	}
}

// NewServer builds the router. An empty jwtSecret leaves the execution
// endpoints unreachable.
func NewServer(addr, jwtSecret string, deps Dependencies, log logger.LoggerInterface, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))
	for _, o := range opts {
		o(engine)
	}

	s := &Server{
		deps:   deps,
		engine: engine,
		logger: log,
		http: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.routes(jwtSecret)
	return s
}

func (s *Server) routes(jwtSecret string) {
	v1 := s.engine.Group("/v1")
	v1.GET("/prices", s.listPrices)
	v1.GET("/markets", s.listMarkets)
	v1.GET("/markets/:pair/routes", s.marketRoutes)
	v1.POST("/quotes", s.quote)
	v1.POST("/quotes/sessions", s.openSession)
	v1.GET("/quotes/sessions/:id", s.sessionSnapshot)
	v1.PUT("/quotes/sessions/:id/amount", s.setSessionAmount)
	v1.DELETE("/quotes/sessions/:id", s.closeSession)
	v1.POST("/orders/preview", s.previewOrder)
	v1.POST("/tpsl/convert", s.convertTarget)

	private := v1.Group("", RequireJWT(jwtSecret))
	private.POST("/swaps/execute", s.executeSwap)
	private.POST("/orders", s.placeOrder)
	private.POST("/positions/close", s.closePosition)
	private.GET("/history", s.history)
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "api server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func requestLogger(log logger.LoggerInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug(c.Request.Context(), "api request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds())
	}
}

// writeError renders err as an AppError body with its status code.
func writeError(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.Internal(apperror.CodeInternalError, err.Error(), err)
	}
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
}

func unavailable(c *gin.Context, what string) {
	writeError(c, apperror.New(apperror.CodeServiceUnavailable,
		apperror.WithContext(what+" is not configured")))
}

func badRequest(c *gin.Context, err error) {
	writeError(c, apperror.New(apperror.CodeInvalidFormat,
		apperror.WithCause(err),
		apperror.WithContext(err.Error())))
}
