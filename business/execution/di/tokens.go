// Package di contains dependency injection tokens for the execution context.
package di

import (
	"github.com/fd1az/perp-router/business/execution/app"
	"github.com/fd1az/perp-router/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Dispatcher = di.NewToken[*app.Dispatcher]("execution.Dispatcher")
	History    = di.NewToken[app.HistoryStore]("execution.History")
)

// Private dependency tokens - internal to execution module
var (
	Sender     = di.NewToken[app.TxSender]("execution:sender")
	Allowances = di.NewToken[app.Allowances]("execution:allowances")
	Orders     = di.NewToken[app.OrderBuilder]("execution:orders")
)

// Helper functions for type-safe access
func GetDispatcher(c di.ServiceRegistry) *app.Dispatcher {
	return di.GetToken(c, Dispatcher)
}

func GetHistory(c di.ServiceRegistry) app.HistoryStore {
	return di.GetToken(c, History)
}

func GetSender(c di.ServiceRegistry) app.TxSender {
	return di.GetToken(c, Sender)
}

func GetAllowances(c di.ServiceRegistry) app.Allowances {
	return di.GetToken(c, Allowances)
}

func GetOrders(c di.ServiceRegistry) app.OrderBuilder {
	return di.GetToken(c, Orders)
}
