package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the type of execution a Record describes.
type Kind string

const (
	KindSwap  Kind = "swap"
	KindOrder Kind = "order"
	KindClose Kind = "close"
)

// Status is the outcome of an execution attempt.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
	StatusFailed    Status = "failed"
	StatusPartial   Status = "partial"
)

// Record is one execution attempt in the trade history.
type Record struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Route       string    `json:"route,omitempty"`
	Pair        string    `json:"pair,omitempty"`
	PathID      string    `json:"path_id,omitempty"`
	TxHash      string    `json:"tx_hash,omitempty"`
	ApproveHash string    `json:"approve_hash,omitempty"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewRecord starts a record with a fresh id.
func NewRecord(kind Kind, now time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: now.UTC(),
	}
}
