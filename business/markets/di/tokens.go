// Package di contains dependency injection tokens for the markets context.
package di

import (
	"github.com/fd1az/perp-router/business/markets/app"
	"github.com/fd1az/perp-router/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Registry = di.NewToken[*app.Registry]("markets.Registry")
)

// Private dependency tokens - internal to markets module
var (
	InfoReader = di.NewToken[app.InfoReader]("markets:infoReader")
)

// Helper functions for type-safe access
func GetRegistry(c di.ServiceRegistry) *app.Registry {
	return di.GetToken(c, Registry)
}

func GetInfoReader(c di.ServiceRegistry) app.InfoReader {
	return di.GetToken(c, InfoReader)
}
