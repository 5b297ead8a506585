package app

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/perp-router/business/trading/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/logger"
)

// mockLogger implements logger.LoggerInterface for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

type stubFees struct {
	fees domain.MarketFees
	err  error
}

func (s stubFees) MarketFees(context.Context, string) (domain.MarketFees, error) {
	return s.fees, s.err
}

type stubPrices struct {
	price decimal.Decimal
	err   error
}

func (s stubPrices) Price(context.Context, string) (decimal.Decimal, error) {
	return s.price, s.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestService_Preview(t *testing.T) {
	svc := NewService(
		stubFees{fees: domain.MarketFees{LongFee: dec("0.0008"), LongBorrow: dec("0.01"), FundingRate: dec("0.002")}},
		stubPrices{price: dec("2000")},
		&mockLogger{},
	)

	got, err := svc.Preview(context.Background(), PreviewRequest{
		Symbol:            "ETH-USD",
		Direction:         domain.Long,
		Amount:            "1000",
		Leverage:          "10",
		Balance:           "500",
		TakeProfitPercent: "50",
		StopLossPrice:     "1900",
	})
	require.NoError(t, err)

	assert.True(t, got.Valid())
	assert.True(t, dec("0.5").Equal(got.Details.Size))
	assert.True(t, dec("1820").Equal(got.Details.LiquidationPrice))
	assert.True(t, dec("0.8").Equal(got.Details.TradingFee))
	assert.True(t, dec("2100").Equal(got.TakeProfit.Price))
	assert.True(t, dec("50").Equal(got.StopLoss.Percent))
}

func TestService_Preview_FlagsStopLossBeyondLiquidation(t *testing.T) {
	svc := NewService(nil, nil, &mockLogger{})

	got, err := svc.Preview(context.Background(), PreviewRequest{
		Symbol:        "ETH-USD",
		Direction:     domain.Long,
		Amount:        "1000",
		Leverage:      "10",
		Balance:       "1000",
		StopLossPrice: "90",
		MarkPrice:     dec("100"),
	})
	require.NoError(t, err)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, domain.IssueStopLossBeyondLiquidation, got.Issues[0].Code)

	verr := IssuesError(got.Issues)
	assert.Equal(t, apperror.CodeInvalidStopLoss, apperror.GetCode(verr))
}

func TestService_Preview_DegradesWithoutMarketData(t *testing.T) {
	svc := NewService(
		stubFees{err: errors.New("registry down")},
		stubPrices{err: errors.New("no price")},
		&mockLogger{},
	)

	got, err := svc.Preview(context.Background(), PreviewRequest{
		Symbol:   "BTC-USD",
		Amount:   "100",
		Leverage: "5",
	})
	require.NoError(t, err)
	assert.True(t, got.Details.Size.IsZero())
	assert.True(t, got.Details.TradingFee.IsZero())
	assert.True(t, dec("20").Equal(got.Details.Margin))
}

func TestService_Preview_RejectsBadInput(t *testing.T) {
	svc := NewService(nil, nil, &mockLogger{})

	_, err := svc.Preview(context.Background(), PreviewRequest{Amount: "100", Leverage: "0"})
	assert.Equal(t, apperror.CodeInvalidInput, apperror.GetCode(err))

	_, err = svc.Preview(context.Background(), PreviewRequest{Amount: "5", Leverage: "10"})
	assert.Equal(t, apperror.CodeInsufficientMargin, apperror.GetCode(err))
}

func TestService_ConvertTarget(t *testing.T) {
	svc := NewService(nil, nil, &mockLogger{})

	tgt, err := svc.ConvertTarget(ConvertRequest{
		Entry: dec("100"), Leverage: dec("10"), Direction: domain.Short, Kind: domain.StopLoss, Percent: dec("50"),
	})
	require.NoError(t, err)
	assert.True(t, dec("105").Equal(tgt.Price))

	tgt, err = svc.ConvertTarget(ConvertRequest{
		Entry: dec("100"), Leverage: dec("10"), Direction: domain.Short, Kind: domain.StopLoss, Price: dec("105"),
	})
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(tgt.Percent))

	_, err = svc.ConvertTarget(ConvertRequest{Leverage: dec("10")})
	assert.Error(t, err)
}

func TestIssuesError_Nil(t *testing.T) {
	assert.NoError(t, IssuesError(nil))
}
