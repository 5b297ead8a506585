package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/perp-router/internal/apperror"
)

// OrderIntent is what the order backend needs to build an open-position
// transaction. Zero TakeProfit or StopLoss means none.
type OrderIntent struct {
	Trader     common.Address  `json:"trader"`
	Pair       string          `json:"pair"`
	Long       bool            `json:"long"`
	Price      decimal.Decimal `json:"price"`
	Slippage   decimal.Decimal `json:"slippage"` // percent
	Margin     decimal.Decimal `json:"margin"`
	Size       decimal.Decimal `json:"size"`
	Leverage   decimal.Decimal `json:"leverage"`
	TakeProfit decimal.Decimal `json:"tp"`
	StopLoss   decimal.Decimal `json:"sl"`
	Limit      bool            `json:"limit"`
	Referrer   string          `json:"referrer,omitempty"`
}

// Validate checks the fields the backend cannot default.
func (o OrderIntent) Validate() error {
	switch {
	case o.Pair == "":
		return apperror.New(apperror.CodeRequiredField, apperror.WithContext("pair"))
	case !o.Price.IsPositive():
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContext("price must be positive"))
	case !o.Margin.IsPositive():
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContext("margin must be positive"))
	case !o.Size.IsPositive():
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContext("size must be positive"))
	case o.Slippage.IsNegative():
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContext("slippage must not be negative"))
	case o.TakeProfit.IsNegative() || o.StopLoss.IsNegative():
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContext("tp/sl must not be negative"))
	}
	return nil
}

// CloseIntent asks the backend for a close-position transaction.
type CloseIntent struct {
	Trader        common.Address  `json:"trader"`
	Pair          string          `json:"pair"`
	PositionIndex uint64          `json:"index"`
	Price         decimal.Decimal `json:"price"`
	Slippage      decimal.Decimal `json:"slippage"` // percent
}

// Validate checks the fields the backend cannot default.
func (c CloseIntent) Validate() error {
	switch {
	case c.Pair == "":
		return apperror.New(apperror.CodeRequiredField, apperror.WithContext("pair"))
	case !c.Price.IsPositive():
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContext("price must be positive"))
	case c.Slippage.IsNegative():
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContext("slippage must not be negative"))
	}
	return nil
}

// OrderPayload is the backend's answer: calldata for the vault.
type OrderPayload struct {
	Calldata     []byte
	VaultAddress common.Address
	Value        *big.Int
}

// Tx turns the payload into a transaction request.
func (p OrderPayload) Tx() *TxRequest {
	return &TxRequest{To: p.VaultAddress, Data: p.Calldata, Value: p.Value}
}
