// Package app contains application services and port definitions for the markets context.
package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/perp-router/business/markets/domain"
)

// InfoReader reads a pair's global market state.
type InfoReader interface {
	GetGlobalInfo(ctx context.Context, account common.Address, pair domain.Pair) (domain.MarketInfo, error)
}
