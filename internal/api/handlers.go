package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	execdomain "github.com/fd1az/perp-router/business/execution/domain"
	routingapp "github.com/fd1az/perp-router/business/routing/app"
	routingdomain "github.com/fd1az/perp-router/business/routing/domain"
	tradingapp "github.com/fd1az/perp-router/business/trading/app"
	tradingdomain "github.com/fd1az/perp-router/business/trading/domain"
	"github.com/fd1az/perp-router/internal/apperror"
)

const (
	defaultSwapSlippage = "0.005"
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

func (s *Server) listPrices(c *gin.Context) {
	if s.deps.Prices == nil {
		unavailable(c, "price feed")
		return
	}
	quotes := s.deps.Prices.All()
	out := make([]priceView, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, toPriceView(q))
	}
	c.JSON(http.StatusOK, gin.H{"prices": out})
}

func (s *Server) listMarkets(c *gin.Context) {
	if s.deps.Markets == nil {
		unavailable(c, "market registry")
		return
	}
	markets := s.deps.Markets.All()
	out := make([]marketView, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketView(m))
	}
	c.JSON(http.StatusOK, gin.H{"markets": out})
}

func (s *Server) marketRoutes(c *gin.Context) {
	if s.deps.Markets == nil {
		unavailable(c, "market registry")
		return
	}
	pair := strings.ToUpper(c.Param("pair"))
	dir := tradingdomain.Long
	if q := c.Query("direction"); q != "" {
		parsed, err := tradingdomain.ParseDirection(q)
		if err != nil {
			writeError(c, apperror.Validation(apperror.CodeInvalidInput, err.Error()))
			return
		}
		dir = parsed
	}

	routes := s.deps.Markets.Routes(pair, dir.IsLong())
	best, _ := routingdomain.SelectBestVenue(routes)
	c.JSON(http.StatusOK, routesResponse{
		Pair:      pair,
		Direction: string(dir),
		Routes:    toRouteInfoViews(routes),
		Best:      best,
	})
}

func (s *Server) quote(c *gin.Context) {
	if s.deps.Aggregator == nil || s.deps.Tokens == nil {
		unavailable(c, "quote aggregator")
		return
	}
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	qr, err := s.deps.Tokens.Request(req.In, req.Out, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}

	states := s.deps.Aggregator.Quote(c.Request.Context(), qr)
	resp := quotesResponse{States: toStateViews(states)}
	if best, ok := routingdomain.SelectBestQuote(states); ok {
		resp.Best = best
		for _, st := range states {
			if st.Source == best {
				resp.Quote = toQuoteView(st.Quote)
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) openSession(c *gin.Context) {
	if s.deps.Sessions == nil || s.deps.Tokens == nil {
		unavailable(c, "quote sessions")
		return
	}
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	qr, err := s.deps.Tokens.Request(req.In, req.Out, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	session := s.deps.Sessions.Open(qr)
	c.JSON(http.StatusCreated, toSessionView(session.Snapshot()))
}

func (s *Server) session(c *gin.Context) (*routingapp.QuoteSession, bool) {
	if s.deps.Sessions == nil {
		unavailable(c, "quote sessions")
		return nil, false
	}
	session, err := s.deps.Sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return session, true
}

func (s *Server) sessionSnapshot(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionView(session.Snapshot()))
}

func (s *Server) setSessionAmount(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	session.SetAmount(req.Amount)
	c.JSON(http.StatusAccepted, toSessionView(session.Snapshot()))
}

func (s *Server) closeSession(c *gin.Context) {
	if _, ok := s.session(c); !ok {
		return
	}
	s.deps.Sessions.Close(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) previewOrder(c *gin.Context) {
	if s.deps.Trading == nil {
		unavailable(c, "trading service")
		return
	}
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	pr := tradingapp.PreviewRequest{
		Symbol:            strings.ToUpper(req.Pair),
		Amount:            req.Amount,
		Leverage:          req.Leverage,
		LimitPrice:        req.LimitPrice,
		Balance:           req.Balance,
		TakeProfitPrice:   req.TakeProfitPrice,
		TakeProfitPercent: req.TakeProfitPercent,
		StopLossPrice:     req.StopLossPrice,
		StopLossPercent:   req.StopLossPercent,
	}
	if req.Direction != "" {
		dir, err := tradingdomain.ParseDirection(req.Direction)
		if err != nil {
			writeError(c, apperror.Validation(apperror.CodeInvalidInput, err.Error()))
			return
		}
		pr.Direction = dir
	}
	mark, err := parseDecimal(req.MarkPrice)
	if err != nil {
		writeError(c, apperror.Validation(apperror.CodeInvalidInput, "invalid mark_price"))
		return
	}
	pr.MarkPrice = mark

	preview, err := s.deps.Trading.Preview(c.Request.Context(), pr)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPreviewResponse(preview))
}

func (s *Server) convertTarget(c *gin.Context) {
	if s.deps.Trading == nil {
		unavailable(c, "trading service")
		return
	}
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cr := tradingapp.ConvertRequest{Direction: tradingdomain.Long}
	switch strings.ToLower(req.Kind) {
	case "take_profit", "tp":
		cr.Kind = tradingdomain.TakeProfit
	case "stop_loss", "sl":
		cr.Kind = tradingdomain.StopLoss
	default:
		writeError(c, apperror.Validation(apperror.CodeInvalidInput, fmt.Sprintf("unknown kind %q", req.Kind)))
		return
	}
	if req.Direction != "" {
		dir, err := tradingdomain.ParseDirection(req.Direction)
		if err != nil {
			writeError(c, apperror.Validation(apperror.CodeInvalidInput, err.Error()))
			return
		}
		cr.Direction = dir
	}

	fields := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"entry", req.Entry, &cr.Entry},
		{"leverage", req.Leverage, &cr.Leverage},
		{"price", req.Price, &cr.Price},
		{"percent", req.Percent, &cr.Percent},
	}
	for _, f := range fields {
		v, err := parseDecimal(f.value)
		if err != nil {
			writeError(c, apperror.Validation(apperror.CodeInvalidInput, "invalid "+f.name))
			return
		}
		*f.dst = v
	}

	target, err := s.deps.Trading.ConvertTarget(cr)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"kind":      cr.Kind.String(),
		"direction": string(cr.Direction),
		"target":    toTargetView(target),
	})
}

func (s *Server) executeSwap(c *gin.Context) {
	if s.deps.Executor == nil {
		unavailable(c, "executor")
		return
	}
	var req executeSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	slippage := req.Slippage
	if slippage == "" {
		slippage = defaultSwapSlippage
	}
	params := routingapp.ExecParams{}
	var err error
	if params.Slippage, err = decimal.NewFromString(slippage); err != nil || params.Slippage.IsNegative() {
		writeError(c, apperror.Validation(apperror.CodeInvalidInput, "invalid slippage"))
		return
	}
	if req.Recipient != "" {
		if !common.IsHexAddress(req.Recipient) {
			writeError(c, apperror.Validation(apperror.CodeInvalidInput, "invalid recipient"))
			return
		}
		params.Recipient = common.HexToAddress(req.Recipient)
	}

	ctx := c.Request.Context()
	var receipt *execdomain.Receipt
	if req.SessionID != "" {
		receipt, err = s.deps.Executor.ExecuteSession(ctx, req.SessionID, req.Route, params)
	} else {
		qc, qerr := s.freshContext(c, req)
		if qerr != nil {
			writeError(c, qerr)
			return
		}
		receipt, err = s.deps.Executor.ExecuteSwap(ctx, qc, params)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account": s.deps.Executor.Account().Hex(),
		"receipt": toReceiptView(receipt),
	})
}

// freshContext quotes the request now and picks the named route, or the
// best one when none is named.
func (s *Server) freshContext(c *gin.Context, req executeSwapRequest) (routingdomain.QuoteContext, error) {
	if s.deps.Aggregator == nil || s.deps.Tokens == nil {
		return routingdomain.QuoteContext{}, apperror.New(apperror.CodeServiceUnavailable,
			apperror.WithContext("quote aggregator is not configured"))
	}
	qr, err := s.deps.Tokens.Request(req.In, req.Out, req.Amount)
	if err != nil {
		return routingdomain.QuoteContext{}, err
	}
	if req.Route == "" {
		sel, err := s.deps.Aggregator.Best(c.Request.Context(), qr)
		if err != nil {
			return routingdomain.QuoteContext{}, err
		}
		return sel.Context(), nil
	}
	for _, st := range s.deps.Aggregator.Quote(c.Request.Context(), qr) {
		if st.Source != req.Route {
			continue
		}
		if !st.Usable() {
			return routingdomain.QuoteContext{}, apperror.New(apperror.CodeRouteUnavailable,
				apperror.WithCause(st.Err),
				apperror.WithContext(fmt.Sprintf("%s: %s", req.Route, st.ErrString())))
		}
		return routingdomain.QuoteContext{Quote: st.Quote, RouteID: st.Source}, nil
	}
	return routingdomain.QuoteContext{}, apperror.NotFound(apperror.CodeRouteNotFound, req.Route)
}

func (s *Server) placeOrder(c *gin.Context) {
	if s.deps.Executor == nil {
		unavailable(c, "executor")
		return
	}
	var intent execdomain.OrderIntent
	if err := c.ShouldBindJSON(&intent); err != nil {
		badRequest(c, err)
		return
	}
	intent.Pair = strings.ToUpper(intent.Pair)

	receipt, err := s.deps.Executor.PlaceOrder(c.Request.Context(), intent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": toReceiptView(receipt)})
}

func (s *Server) closePosition(c *gin.Context) {
	if s.deps.Executor == nil {
		unavailable(c, "executor")
		return
	}
	var intent execdomain.CloseIntent
	if err := c.ShouldBindJSON(&intent); err != nil {
		badRequest(c, err)
		return
	}
	intent.Pair = strings.ToUpper(intent.Pair)

	receipt, err := s.deps.Executor.ClosePosition(c.Request.Context(), intent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": toReceiptView(receipt)})
}

func (s *Server) history(c *gin.Context) {
	if s.deps.Executor == nil {
		unavailable(c, "executor")
		return
	}
	limit := defaultHistoryLimit
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(c, apperror.Validation(apperror.CodeInvalidInput, "invalid limit"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.deps.Executor.History(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []execdomain.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
