package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	execdomain "github.com/fd1az/perp-router/business/execution/domain"
	marketsdomain "github.com/fd1az/perp-router/business/markets/domain"
	pricingdomain "github.com/fd1az/perp-router/business/pricing/domain"
	routingapp "github.com/fd1az/perp-router/business/routing/app"
	routingdomain "github.com/fd1az/perp-router/business/routing/domain"
	tradingapp "github.com/fd1az/perp-router/business/trading/app"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/asset"
	"github.com/fd1az/perp-router/internal/logger"
)

const testSecret = "test-secret"

type stubRoute struct {
	id  string
	out string
	err error
}

func (r stubRoute) ID() string   { return r.id }
func (r stubRoute) Name() string { return r.id }

func (r stubRoute) Quote(_ context.Context, req routingapp.QuoteRequest) (*routingdomain.Quote, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &routingdomain.Quote{
		RouteID:   r.id,
		TokenIn:   req.TokenIn,
		TokenOut:  req.TokenOut,
		AmountIn:  req.Amount,
		AmountOut: r.out,
		PathID:    r.id + "-path",
		FetchedAt: time.Now(),
	}, nil
}

func (r stubRoute) Execute(context.Context, routingdomain.QuoteContext, routingapp.ExecParams) (*execdomain.TxRequest, error) {
	return &execdomain.TxRequest{}, nil
}

type stubPrices []pricingdomain.Quote

func (p stubPrices) All() []pricingdomain.Quote { return p }

type stubMarkets struct {
	markets []marketsdomain.MarketInfo
	routes  []routingdomain.RouteInfo
	long    *bool
}

func (m *stubMarkets) All() []marketsdomain.MarketInfo { return m.markets }

func (m *stubMarkets) Get(symbol string) (marketsdomain.MarketInfo, bool) {
	for _, mk := range m.markets {
		if mk.Symbol == symbol {
			return mk, true
		}
	}
	return marketsdomain.MarketInfo{}, false
}

func (m *stubMarkets) Routes(_ string, long bool) []routingdomain.RouteInfo {
	m.long = &long
	return m.routes
}

type stubExecutor struct {
	swapCtx   routingdomain.QuoteContext
	swapParam routingapp.ExecParams
	sessionID string
	order     execdomain.OrderIntent
	err       error
	records   []execdomain.Record
	limit     int
}

func (e *stubExecutor) Account() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000aa")
}

func (e *stubExecutor) receipt() *execdomain.Receipt {
	return &execdomain.Receipt{Hash: common.HexToHash("0x01"), BlockNumber: 9, Status: execdomain.ReceiptSuccess}
}

func (e *stubExecutor) ExecuteSwap(_ context.Context, qc routingdomain.QuoteContext, p routingapp.ExecParams) (*execdomain.Receipt, error) {
	e.swapCtx, e.swapParam = qc, p
	if e.err != nil {
		return nil, e.err
	}
	return e.receipt(), nil
}

func (e *stubExecutor) ExecuteSession(_ context.Context, id, _ string, p routingapp.ExecParams) (*execdomain.Receipt, error) {
	e.sessionID, e.swapParam = id, p
	if e.err != nil {
		return nil, e.err
	}
	return e.receipt(), nil
}

func (e *stubExecutor) PlaceOrder(_ context.Context, intent execdomain.OrderIntent) (*execdomain.Receipt, error) {
	e.order = intent
	if e.err != nil {
		return nil, e.err
	}
	return e.receipt(), nil
}

func (e *stubExecutor) ClosePosition(context.Context, execdomain.CloseIntent) (*execdomain.Receipt, error) {
	return e.receipt(), e.err
}

func (e *stubExecutor) History(_ context.Context, limit int) ([]execdomain.Record, error) {
	e.limit = limit
	return e.records, nil
}

type fixture struct {
	server   *Server
	markets  *stubMarkets
	executor *stubExecutor
}

func newFixture(t *testing.T, routes ...routingapp.Route) *fixture {
	t.Helper()
	if len(routes) == 0 {
		routes = []routingapp.Route{
			stubRoute{id: "paraswap", out: "0.41"},
			stubRoute{id: "kyberswap", out: "0.42"},
		}
	}
	reg, err := routingapp.NewRegistry(routes...)
	require.NoError(t, err)
	agg, err := routingapp.NewAggregator(reg, time.Second, logger.NewNop())
	require.NoError(t, err)
	sessions := routingapp.NewSessions(context.Background(), agg, 10*time.Millisecond, logger.NewNop())
	t.Cleanup(sessions.CloseAll)

	f := &fixture{
		markets: &stubMarkets{
			markets: []marketsdomain.MarketInfo{{PairID: 1, Symbol: "ETH-USD", LongFee: decimal.RequireFromString("0.0008")}},
			routes: []routingdomain.RouteInfo{
				routingdomain.NewAvailableRoute("vault", "Vault", decimal.RequireFromString("0.0008")),
				routingdomain.NewAvailableRoute("book", "Book", decimal.RequireFromString("0.0005")),
				routingdomain.NewUnavailableRoute("amm", "AMM", "open interest cap reached"),
			},
		},
		executor: &stubExecutor{},
	}
	f.server = NewServer(":0", testSecret, Dependencies{
		Prices: stubPrices{{
			Tick:   pricingdomain.Tick{Symbol: "ETH", Price: decimal.RequireFromString("2000.5")},
			Change: pricingdomain.CalculateChange(decimal.RequireFromString("2000"), decimal.RequireFromString("2000.5")),
		}},
		Markets:    f.markets,
		Aggregator: agg,
		Sessions:   sessions,
		Tokens:     routingapp.NewTokenResolver(asset.DefaultRegistry(), asset.ChainIDArbitrum),
		Trading:    tradingapp.NewService(nil, nil, logger.NewNop()),
		Executor:   f.executor,
	}, logger.NewNop())
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func signToken(t *testing.T, method jwt.SigningMethod, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) apperror.Code {
	t.Helper()
	body := decode[map[string]apperror.ErrorBody](t, w)
	return body["error"].Code
}

func TestPrices(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/v1/prices", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[struct{ Prices []priceView }](t, w)
	require.Len(t, body.Prices, 1)
	assert.Equal(t, "ETH", body.Prices[0].Symbol)
	assert.Equal(t, "2000.5", body.Prices[0].Price)
	assert.Equal(t, "2.50", body.Prices[0].ChangeBps)
	assert.Equal(t, "UP", body.Prices[0].Direction)
}

func TestMarketRoutes(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/markets/eth-usd/routes?direction=short", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[routesResponse](t, w)
	assert.Equal(t, "ETH-USD", body.Pair)
	assert.Equal(t, "SHORT", body.Direction)
	assert.Equal(t, "book", body.Best)
	require.Len(t, body.Routes, 3)
	assert.False(t, body.Routes[2].Available)
	assert.Equal(t, "open interest cap reached", body.Routes[2].Reason)
	require.NotNil(t, f.markets.long)
	assert.False(t, *f.markets.long)

	w = f.do(t, http.MethodGet, "/v1/markets/ETH-USD/routes?direction=up", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkets(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/v1/markets", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct{ Markets []marketView }](t, w)
	require.Len(t, body.Markets, 1)
	assert.Equal(t, "0.0008", body.Markets[0].LongFee)
}

func TestQuote(t *testing.T) {
	f := newFixture(t,
		stubRoute{id: "paraswap", out: "0.41"},
		stubRoute{id: "kyberswap", out: "0.42"},
		stubRoute{id: "uniswap", err: errors.New("no pool")},
	)

	w := f.do(t, http.MethodPost, "/v1/quotes", quoteRequest{In: "USDC", Out: "WETH", Amount: "1000"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[quotesResponse](t, w)
	require.Len(t, body.States, 3)
	assert.Equal(t, "kyberswap", body.Best)
	require.NotNil(t, body.Quote)
	assert.Equal(t, "0.42", body.Quote.AmountOut)
	assert.Contains(t, body.States[2].Error, "no pool")
}

func TestQuote_DisabledRequestReturnsEmptyStates(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/v1/quotes", quoteRequest{In: "USDC", Out: "WETH"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[quotesResponse](t, w)
	assert.Empty(t, body.Best)
	for _, st := range body.States {
		assert.Nil(t, st.Quote)
	}
}

func TestQuote_BadInput(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/quotes", map[string]string{"in": "USDC"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/v1/quotes", quoteRequest{In: "DOGE", Out: "WETH", Amount: "1"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, errorCode(t, w))
}

func TestQuoteSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/quotes/sessions", quoteRequest{In: "USDC", Out: "WETH"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[sessionView](t, w)
	require.NotEmpty(t, created.ID)

	w = f.do(t, http.MethodPut, "/v1/quotes/sessions/"+created.ID+"/amount", amountRequest{Amount: "500"}, "")
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		w := f.do(t, http.MethodGet, "/v1/quotes/sessions/"+created.ID, nil, "")
		snap := decode[sessionView](t, w)
		return snap.Best == "kyberswap" && snap.Seq > 0
	}, time.Second, 10*time.Millisecond)

	w = f.do(t, http.MethodDelete, "/v1/quotes/sessions/"+created.ID, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/v1/quotes/sessions/"+created.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreviewOrder(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/orders/preview", previewRequest{
		Pair:          "eth-usd",
		Direction:     "long",
		Amount:        "1000",
		Leverage:      "10",
		Balance:       "500",
		MarkPrice:     "2000",
		StopLossPrice: "1700",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[previewResponse](t, w)
	assert.Equal(t, "ETH-USD", body.Pair)
	assert.Equal(t, "LONG", body.Direction)
	assert.Equal(t, "100", body.Margin)
	assert.Equal(t, "1820", body.LiquidationPrice)
	assert.False(t, body.Valid)
	require.Len(t, body.Issues, 1)
	assert.Equal(t, "stop_loss_beyond_liquidation", body.Issues[0].Code)

	w = f.do(t, http.MethodPost, "/v1/orders/preview", previewRequest{Pair: "ETH-USD", Leverage: "0"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConvertTarget(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/tpsl/convert", convertRequest{
		Entry: "2000", Leverage: "10", Kind: "take_profit", Percent: "50",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[struct{ Target targetView }](t, w)
	assert.Equal(t, "2100", body.Target.Price)

	w = f.do(t, http.MethodPost, "/v1/tpsl/convert", convertRequest{
		Entry: "2000", Leverage: "10", Kind: "trailing",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecutionEndpointsRequireJWT(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
	}{
		{"no token swap", http.MethodPost, "/v1/swaps/execute", ""},
		{"no token order", http.MethodPost, "/v1/orders", ""},
		{"no token close", http.MethodPost, "/v1/positions/close", ""},
		{"no token history", http.MethodGet, "/v1/history", ""},
		{"wrong secret", http.MethodGet, "/v1/history", signToken(t, jwt.SigningMethodHS256, "other")},
		{"wrong algorithm", http.MethodGet, "/v1/history", signToken(t, jwt.SigningMethodHS512, testSecret)},
		{"garbage", http.MethodGet, "/v1/history", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, map[string]string{}, tt.token)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, apperror.CodeUnauthorized, errorCode(t, w))
		})
	}
}

func TestRequireJWT_EmptySecretRejectsAll(t *testing.T) {
	f := newFixture(t)
	f.server = NewServer(":0", "", f.server.deps, logger.NewNop())

	w := f.do(t, http.MethodGet, "/v1/history", nil, signToken(t, jwt.SigningMethodHS256, testSecret))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExecuteSwap_FreshQuote(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, jwt.SigningMethodHS256, testSecret)

	w := f.do(t, http.MethodPost, "/v1/swaps/execute", executeSwapRequest{
		In: "USDC", Out: "WETH", Amount: "1000", Slippage: "0.01",
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "kyberswap", f.executor.swapCtx.RouteID)
	assert.Equal(t, "kyberswap-path", f.executor.swapCtx.Quote.PathID)
	assert.True(t, decimal.RequireFromString("0.01").Equal(f.executor.swapParam.Slippage))

	body := decode[struct{ Receipt receiptView }](t, w)
	assert.Equal(t, "success", body.Receipt.Status)
	assert.Equal(t, uint64(9), body.Receipt.BlockNumber)
}

func TestExecuteSwap_NamedRouteAndSession(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, jwt.SigningMethodHS256, testSecret)

	w := f.do(t, http.MethodPost, "/v1/swaps/execute", executeSwapRequest{
		In: "USDC", Out: "WETH", Amount: "1000", Route: "paraswap",
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "paraswap", f.executor.swapCtx.RouteID)
	assert.True(t, decimal.RequireFromString(defaultSwapSlippage).Equal(f.executor.swapParam.Slippage))

	w = f.do(t, http.MethodPost, "/v1/swaps/execute", executeSwapRequest{
		In: "USDC", Out: "WETH", Amount: "1000", Route: "sushiswap",
	}, token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/v1/swaps/execute", executeSwapRequest{SessionID: "abc"}, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", f.executor.sessionID)
}

func TestExecuteSwap_ErrorsRenderAppError(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, jwt.SigningMethodHS256, testSecret)
	f.executor.err = apperror.New(apperror.CodePartialExecution,
		apperror.WithDetail("approve_tx", "0xabc"))

	w := f.do(t, http.MethodPost, "/v1/swaps/execute", executeSwapRequest{
		In: "USDC", Out: "WETH", Amount: "1000",
	}, token)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode[map[string]apperror.ErrorBody](t, w)
	assert.Equal(t, apperror.CodePartialExecution, body["error"].Code)
	assert.Equal(t, "0xabc", body["error"].Details["approve_tx"])

	f.executor.err = nil
	w = f.do(t, http.MethodPost, "/v1/swaps/execute", executeSwapRequest{
		In: "USDC", Out: "WETH", Amount: "1000", Recipient: "nope",
	}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlaceOrderAndHistory(t *testing.T) {
	f := newFixture(t)
	token := signToken(t, jwt.SigningMethodHS256, testSecret)

	w := f.do(t, http.MethodPost, "/v1/orders", map[string]any{
		"pair": "eth-usd", "long": true, "price": "2000", "margin": "100", "size": "1000", "leverage": "10",
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ETH-USD", f.executor.order.Pair)
	assert.True(t, decimal.RequireFromString("100").Equal(f.executor.order.Margin))

	f.executor.records = []execdomain.Record{{ID: "1", Kind: execdomain.KindOrder, Status: execdomain.StatusConfirmed}}
	w = f.do(t, http.MethodGet, "/v1/history?limit=9999", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxHistoryLimit, f.executor.limit)
	body := decode[struct{ Records []execdomain.Record }](t, w)
	require.Len(t, body.Records, 1)
	assert.Equal(t, execdomain.StatusConfirmed, body.Records[0].Status)

	w = f.do(t, http.MethodGet, "/v1/history?limit=-1", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMissingDependenciesAnswer503(t *testing.T) {
	s := NewServer(":0", testSecret, Dependencies{}, logger.NewNop())
	for _, path := range []string{"/v1/prices", "/v1/markets"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestRateLimitPerClient(t *testing.T) {
	s := NewServer(":0", testSecret, Dependencies{}, logger.NewNop(), WithRateLimit(10))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/prices", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusServiceUnavailable, send("10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1001"))
	assert.Equal(t, http.StatusServiceUnavailable, send("10.0.0.2:1000"))
}
