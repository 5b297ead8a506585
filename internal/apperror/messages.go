package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",
	CodeUnauthorized:    "Missing or invalid credentials",

	// Configuration
	CodeConfigurationError: "Configuration error",
	CodeSecretFetchFailed:  "Failed to read secret",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Chain access
	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeContractCallFailed:       "Smart contract call failed",
	CodeGasEstimationFailed:      "Gas estimation failed",

	// WebSocket errors
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketReconnecting:    "WebSocket reconnecting",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	// Prices and markets
	CodePriceUnavailable: "Price not available yet",
	CodeMarketNotFound:   "Market not found",

	// Routing
	CodeQuoteFailed:      "Failed to fetch quote",
	CodeInvalidQuote:     "Invalid quote data",
	CodeNoRouteAvailable: "No route available",
	CodeRouteNotFound:    "Route not found",
	CodeRouteUnavailable: "Route is not available for this market",
	CodeQuoteStale:       "Quote has been superseded, request a new one",
	CodeQuoteConsumed:    "Quote was already executed",
	CodeAssembleFailed:   "Failed to assemble transaction for route",

	// Order validation
	CodeInsufficientMargin:   "Margin below minimum",
	CodeInvalidStopLoss:      "Stop loss is beyond liquidation price",
	CodeAmountExceedsBalance: "Amount exceeds available balance",

	// Execution
	CodeOrderBuildFailed:     "Failed to build order transaction",
	CodeTransactionRejected:  "Transaction was rejected",
	CodeTransactionReverted:  "Transaction reverted",
	CodeTransactionTimeout:   "Timed out waiting for transaction receipt",
	CodePartialExecution:     "Approval succeeded but execution failed, resubmit the execution",
	CodeHistoryStoreFailed:   "Failed to record execution history",
	CodeAllowanceCheckFailed: "Failed to check token allowance",
	CodeWalletNotConfigured:  "No wallet configured for execution",

	// Cache errors
	CodeCacheMiss:    "Cache miss",
	CodeCacheExpired: "Cache entry expired",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
