package paraswap

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/perp-router/business/routing/app"
	"github.com/fd1az/perp-router/business/routing/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/logger"
)

var (
	usdc = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	weth = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	user = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	ttp  = common.HexToAddress("0x216B4B4Ba9F3e719726886d34a177484278Bfcae")
)

type fixedGas struct{ price *big.Int }

func (f fixedGas) SuggestGasPrice(context.Context) (*big.Int, error) { return f.price, nil }

const priceRouteJSON = `{
	"blockNumber": 250000000,
	"srcDecimals": 6,
	"destDecimals": 18,
	"srcAmount": "1000000000",
	"destAmount": "412500000000000000",
	"gasCost": "200000",
	"gasCostUSD": "0.05",
	"srcUSD": "1000",
	"destUSD": "990",
	"tokenTransferProxy": "0x216B4B4Ba9F3e719726886d34a177484278Bfcae",
	"hmac": "abc123"
}`

func newRoute(t *testing.T, srv *httptest.Server) *Route {
	t.Helper()
	r, err := New(Config{BaseURL: srv.URL, ChainID: 42161, Partner: "perp-router"},
		fixedGas{price: big.NewInt(10_000_000)}, logger.NewNop())
	require.NoError(t, err)
	return r
}

func request() app.QuoteRequest {
	return app.QuoteRequest{
		TokenIn: usdc, TokenOut: weth,
		DecimalsIn: 6, DecimalsOut: 18,
		Amount: "1000", Enabled: true,
	}
}

func TestRoute_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1000000000", q.Get("amount"))
		assert.Equal(t, "SELL", q.Get("side"))
		assert.Equal(t, "42161", q.Get("network"))
		assert.Equal(t, "perp-router", q.Get("partner"))
		assert.Equal(t, usdc.Hex(), q.Get("srcToken"))
		_, _ = w.Write([]byte(`{"priceRoute":` + priceRouteJSON + `}`))
	}))
	defer srv.Close()

	quote, err := newRoute(t, srv).Quote(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, "0.4125", quote.AmountOut)
	assert.Equal(t, "412500000000000000", quote.AmountOutRaw)
	assert.Equal(t, "1000000000", quote.AmountInRaw)
	assert.Equal(t, uint64(200000), quote.GasUnits)
	assert.True(t, decimal.RequireFromString("0.05").Equal(quote.GasUSD))
	// 200k gas at 0.01 gwei
	assert.True(t, decimal.RequireFromString("0.000002").Equal(quote.GasNative), quote.GasNative.String())
	assert.True(t, decimal.RequireFromString("0.01").Equal(quote.PriceImpact), quote.PriceImpact.String())
	assert.Equal(t, "paraswap:abc123", quote.PathID)
	assert.Equal(t, uint64(250000000), quote.BlockNumber)
	assert.JSONEq(t, priceRouteJSON, string(quote.Payload))
}

func TestRoute_QuoteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"No routes found with enough liquidity"}`))
	}))
	defer srv.Close()

	_, err := newRoute(t, srv).Quote(context.Background(), request())
	require.Error(t, err)
	assert.Equal(t, apperror.CodeExternalServiceError, apperror.GetCode(err))
	assert.Contains(t, err.Error(), "No routes found")
}

func TestRoute_QuoteMissingPriceRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newRoute(t, srv).Quote(context.Background(), request())
	assert.Equal(t, apperror.CodeInvalidQuote, apperror.GetCode(err))
}

func TestRoute_Execute(t *testing.T) {
	var got transactionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transactions/42161", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("ignoreChecks"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"to":"0xDEF171Fe48CF0115B1d80b88dc8eAB59176FEe57","data":"0x54e3f31b0001","value":"0"}`))
	}))
	defer srv.Close()

	quote := &domain.Quote{
		RouteID: RouteID, TokenIn: usdc, TokenOut: weth,
		AmountInRaw: "1000000000", AmountOutRaw: "412500000000000000",
		Payload: json.RawMessage(priceRouteJSON),
	}
	tx, err := newRoute(t, srv).Execute(context.Background(),
		domain.QuoteContext{Quote: quote, RouteID: RouteID},
		app.ExecParams{Sender: user, Slippage: decimal.RequireFromString("0.005")})
	require.NoError(t, err)

	assert.Equal(t, int64(50), got.Slippage)
	assert.Equal(t, user.Hex(), got.UserAddress)
	assert.Equal(t, user.Hex(), got.Receiver)
	assert.Equal(t, "1000000000", got.SrcAmount)
	assert.JSONEq(t, priceRouteJSON, string(got.PriceRoute))

	assert.Equal(t, common.HexToAddress("0xDEF171Fe48CF0115B1d80b88dc8eAB59176FEe57"), tx.To)
	assert.Equal(t, []byte{0x54, 0xe3, 0xf3, 0x1b, 0x00, 0x01}, tx.Data)
	assert.Equal(t, 0, tx.ValueOrZero().Sign())
	require.True(t, tx.NeedsApproval())
	assert.Equal(t, ttp, tx.Spender)
	assert.Equal(t, usdc, tx.ApproveToken)
	assert.Equal(t, "1000000000", tx.ApproveAmount.String())
}

func TestRoute_ExecuteNativeInputSkipsApproval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"to":"0xDEF171Fe48CF0115B1d80b88dc8eAB59176FEe57","data":"0x01","value":"1000000000000000000"}`))
	}))
	defer srv.Close()

	quote := &domain.Quote{TokenIn: app.NativeToken, TokenOut: usdc, AmountInRaw: "1000000000000000000", Payload: json.RawMessage(priceRouteJSON)}
	tx, err := newRoute(t, srv).Execute(context.Background(), domain.QuoteContext{Quote: quote, RouteID: RouteID}, app.ExecParams{Sender: user})
	require.NoError(t, err)
	assert.False(t, tx.NeedsApproval())
	assert.Equal(t, "1000000000000000000", tx.Value.String())
}

func TestRoute_ExecuteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Error while computing the price"}`))
	}))
	defer srv.Close()
	r := newRoute(t, srv)

	_, err := r.Execute(context.Background(), domain.QuoteContext{Quote: &domain.Quote{}}, app.ExecParams{Sender: user})
	assert.Equal(t, apperror.CodeInvalidQuote, apperror.GetCode(err))

	quote := &domain.Quote{TokenIn: usdc, Payload: json.RawMessage(priceRouteJSON)}
	_, err = r.Execute(context.Background(), domain.QuoteContext{Quote: quote}, app.ExecParams{})
	assert.Equal(t, apperror.CodeRequiredField, apperror.GetCode(err))

	_, err = r.Execute(context.Background(), domain.QuoteContext{Quote: quote}, app.ExecParams{Sender: user})
	assert.Equal(t, apperror.CodeAssembleFailed, apperror.GetCode(err))
}

func TestPriceImpact(t *testing.T) {
	tests := []struct {
		name      string
		src, dest string
		want      string
	}{
		{"loss", "1000", "990", "0.01"},
		{"gain floors at zero", "1000", "1010", "0"},
		{"no src price", "0", "990", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := priceImpact(decimal.RequireFromString(tt.src), decimal.RequireFromString(tt.dest))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), got.String())
		})
	}
}
