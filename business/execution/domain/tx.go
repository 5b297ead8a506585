// Package domain contains the transaction, order intent and history types
// of the execution context.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxRequest is an unsigned call ready to be signed and sent.
type TxRequest struct {
	To    common.Address
	Data  []byte
	Value *big.Int

	// Spender is the address that must hold an ERC20 allowance of
	// ApproveAmount of ApproveToken before the call. Zero when no approval
	// is needed.
	Spender       common.Address
	ApproveToken  common.Address
	ApproveAmount *big.Int
}

// NeedsApproval reports whether the call spends an ERC20 balance.
func (t *TxRequest) NeedsApproval() bool {
	return t != nil &&
		t.Spender != (common.Address{}) &&
		t.ApproveToken != (common.Address{}) &&
		t.ApproveAmount != nil && t.ApproveAmount.Sign() > 0
}

// ValueOrZero returns Value, or zero when unset.
func (t *TxRequest) ValueOrZero() *big.Int {
	if t == nil || t.Value == nil {
		return new(big.Int)
	}
	return t.Value
}

// ReceiptStatus mirrors the post-byzantium receipt status.
type ReceiptStatus uint64

const (
	ReceiptFailed  ReceiptStatus = 0
	ReceiptSuccess ReceiptStatus = 1
)

// Receipt is the confirmation of a mined transaction.
type Receipt struct {
	Hash        common.Hash
	BlockNumber uint64
	Status      ReceiptStatus
	GasUsed     uint64
}

// Succeeded reports whether the transaction did not revert.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptSuccess
}
