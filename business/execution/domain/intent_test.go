package domain

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fd1az/perp-router/internal/apperror"
)

func validOrder() OrderIntent {
	return OrderIntent{
		Pair:     "ETH-USD",
		Long:     true,
		Price:    decimal.NewFromInt(2500),
		Slippage: decimal.NewFromInt(1),
		Margin:   decimal.NewFromInt(100),
		Size:     decimal.RequireFromString("0.4"),
		Leverage: decimal.NewFromInt(10),
	}
}

func TestOrderIntent_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*OrderIntent)
		code   apperror.Code
	}{
		{"valid", func(*OrderIntent) {}, ""},
		{"missing pair", func(o *OrderIntent) { o.Pair = "" }, apperror.CodeRequiredField},
		{"zero price", func(o *OrderIntent) { o.Price = decimal.Zero }, apperror.CodeInvalidInput},
		{"zero margin", func(o *OrderIntent) { o.Margin = decimal.Zero }, apperror.CodeInvalidInput},
		{"zero size", func(o *OrderIntent) { o.Size = decimal.Zero }, apperror.CodeInvalidInput},
		{"negative slippage", func(o *OrderIntent) { o.Slippage = decimal.NewFromInt(-1) }, apperror.CodeInvalidInput},
		{"negative sl", func(o *OrderIntent) { o.StopLoss = decimal.NewFromInt(-1) }, apperror.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOrder()
			tt.mutate(&o)
			err := o.Validate()
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.code, apperror.GetCode(err))
		})
	}
}

func TestCloseIntent_Validate(t *testing.T) {
	assert.NoError(t, CloseIntent{Pair: "BTC-USD", Price: decimal.NewFromInt(60000)}.Validate())
	assert.Error(t, CloseIntent{Price: decimal.NewFromInt(1)}.Validate())
	assert.Error(t, CloseIntent{Pair: "BTC-USD"}.Validate())
}

func TestTxRequest_NeedsApproval(t *testing.T) {
	spender := common.HexToAddress("0x01")
	token := common.HexToAddress("0x02")

	assert.False(t, (*TxRequest)(nil).NeedsApproval())
	assert.False(t, (&TxRequest{Spender: spender, ApproveToken: token}).NeedsApproval())
	assert.False(t, (&TxRequest{Spender: spender, ApproveToken: token, ApproveAmount: big.NewInt(0)}).NeedsApproval())
	assert.True(t, (&TxRequest{Spender: spender, ApproveToken: token, ApproveAmount: big.NewInt(1)}).NeedsApproval())
}

func TestOrderPayload_Tx(t *testing.T) {
	vault := common.HexToAddress("0x03")
	tx := OrderPayload{Calldata: []byte{1, 2}, VaultAddress: vault}.Tx()
	assert.Equal(t, vault, tx.To)
	assert.Equal(t, 0, tx.ValueOrZero().Sign())
}

func TestNewRecord(t *testing.T) {
	a := NewRecord(KindSwap, time.Now())
	b := NewRecord(KindSwap, time.Now())
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, time.UTC, a.CreatedAt.Location())
}
