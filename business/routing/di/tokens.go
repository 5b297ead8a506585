// Package di contains dependency injection tokens for the routing context.
package di

import (
	"github.com/fd1az/perp-router/business/routing/app"
	"github.com/fd1az/perp-router/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Registry      = di.NewToken[*app.Registry]("routing.Registry")
	Aggregator    = di.NewToken[*app.Aggregator]("routing.Aggregator")
	Guard         = di.NewToken[*app.Guard]("routing.Guard")
	Sessions      = di.NewToken[*app.Sessions]("routing.Sessions")
	TokenResolver = di.NewToken[*app.TokenResolver]("routing.TokenResolver")
)

// Private dependency tokens - internal to routing module
var (
	Routes = di.NewToken[[]app.Route]("routing:routes")
)

// Helper functions for type-safe access
func GetRegistry(c di.ServiceRegistry) *app.Registry {
	return di.GetToken(c, Registry)
}

func GetAggregator(c di.ServiceRegistry) *app.Aggregator {
	return di.GetToken(c, Aggregator)
}

func GetGuard(c di.ServiceRegistry) *app.Guard {
	return di.GetToken(c, Guard)
}

func GetSessions(c di.ServiceRegistry) *app.Sessions {
	return di.GetToken(c, Sessions)
}

func GetTokenResolver(c di.ServiceRegistry) *app.TokenResolver {
	return di.GetToken(c, TokenResolver)
}

func GetRoutes(c di.ServiceRegistry) []app.Route {
	return di.GetToken(c, Routes)
}
