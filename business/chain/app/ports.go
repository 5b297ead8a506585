// Package app follows the chain head and serves gas prices.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// HeaderReader fetches a header by number, nil meaning latest.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// HeadStream pushes new headers as they are sealed.
type HeadStream interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// StreamDialer opens a HeadStream and returns a func releasing it.
type StreamDialer func(ctx context.Context) (HeadStream, func(), error)

// GasPriceReader suggests a gas price in wei.
type GasPriceReader interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}
