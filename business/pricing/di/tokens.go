// Package di contains dependency injection tokens for the pricing context.
package di

import (
	"github.com/fd1az/perp-router/business/pricing/app"
	"github.com/fd1az/perp-router/internal/di"
)

// Public service tokens - exposed to other modules
var (
	PriceBook = di.NewToken[*app.PriceBook]("pricing.PriceBook")
)

// Private dependency tokens - internal to pricing module
var (
	Feed        = di.NewToken[app.Feed]("pricing:feed")
	Snapshotter = di.NewToken[app.Snapshotter]("pricing:snapshotter")
)

// Helper functions for type-safe access
func GetPriceBook(c di.ServiceRegistry) *app.PriceBook {
	return di.GetToken(c, PriceBook)
}

func GetFeed(c di.ServiceRegistry) app.Feed {
	return di.GetToken(c, Feed)
}

func GetSnapshotter(c di.ServiceRegistry) app.Snapshotter {
	return di.GetToken(c, Snapshotter)
}
