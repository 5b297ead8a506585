// Package app contains the execution dispatcher and its ports.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/perp-router/business/execution/domain"
)

// TxSender signs and broadcasts transactions for one account.
type TxSender interface {
	Address() common.Address
	Send(ctx context.Context, tx *domain.TxRequest) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*domain.Receipt, error)
}

// Allowances reads and encodes ERC20 approvals.
type Allowances interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	ApproveTx(token, spender common.Address, amount *big.Int) (*domain.TxRequest, error)
}

// OrderBuilder asks the order-construction backend for vault calldata.
type OrderBuilder interface {
	BuildOrder(ctx context.Context, intent domain.OrderIntent) (domain.OrderPayload, error)
	BuildClose(ctx context.Context, intent domain.CloseIntent) (domain.OrderPayload, error)
}

// HistoryStore persists execution records.
type HistoryStore interface {
	Save(ctx context.Context, rec domain.Record) error
	List(ctx context.Context, limit int) ([]domain.Record, error)
}
