// Package domain contains the chain head and gas price types.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Head is the newest block header the tracker has seen.
type Head struct {
	Number     uint64
	Hash       common.Hash
	Timestamp  time.Time
	BaseFee    *big.Int
	ReceivedAt time.Time
}

// NewHead converts a header received at receivedAt.
func NewHead(h *types.Header, receivedAt time.Time) Head {
	return Head{
		Number:     h.Number.Uint64(),
		Hash:       h.Hash(),
		Timestamp:  time.Unix(int64(h.Time), 0),
		BaseFee:    h.BaseFee,
		ReceivedAt: receivedAt,
	}
}

// Delay is how long after its timestamp the block reached us.
func (h Head) Delay() time.Duration {
	d := h.ReceivedAt.Sub(h.Timestamp)
	if d < 0 {
		return 0
	}
	return d
}

// ConnectionState is how the tracker is following the chain.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateStreaming    ConnectionState = "streaming"
	StatePolling      ConnectionState = "polling"
)

// Connected reports whether heads are arriving by either path.
func (s ConnectionState) Connected() bool {
	return s == StateStreaming || s == StatePolling
}

// Status is a point-in-time view of the tracker.
type Status struct {
	State      ConnectionState
	Block      uint64
	Delay      time.Duration
	LastUpdate time.Time
	Reconnects int
}
