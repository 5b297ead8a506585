// Package di contains dependency injection tokens for the chain context.
package di

import (
	"github.com/fd1az/perp-router/business/chain/app"
	"github.com/fd1az/perp-router/business/chain/infra/ethereum"
	"github.com/fd1az/perp-router/internal/di"
)

// Public service tokens - exposed to other modules
var (
	HeadTracker = di.NewToken[*app.HeadTracker]("chain.HeadTracker")
	GasOracle   = di.NewToken[*ethereum.GasOracle]("chain.GasOracle")
)

// Helper functions for type-safe access
func GetHeadTracker(c di.ServiceRegistry) *app.HeadTracker {
	return di.GetToken(c, HeadTracker)
}

func GetGasOracle(c di.ServiceRegistry) *ethereum.GasOracle {
	return di.GetToken(c, GasOracle)
}
