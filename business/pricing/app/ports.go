// Package app contains application services and port definitions for the pricing context.
package app

import (
	"context"

	"github.com/fd1az/perp-router/business/pricing/domain"
)

// Feed is a push price stream.
type Feed interface {
	// OnTicks registers the handler invoked for every decoded batch.
	OnTicks(handler func(ctx context.Context, ticks []domain.Tick))
	Connect(ctx context.Context) error
	IsConnected() bool
	Close() error
}

// Snapshotter fetches all prices at once. Used when the stream is stale.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]domain.Tick, error)
}
