package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"
	CodeUnauthorized    Code = "UNAUTHORIZED"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	CodeSecretFetchFailed  Code = "SECRET_FETCH_FAILED"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Trading-specific error codes
const (
	// Chain access
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeContractCallFailed       Code = "CONTRACT_CALL_FAILED"
	CodeGasEstimationFailed      Code = "GAS_ESTIMATION_FAILED"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketReconnecting    Code = "WEBSOCKET_RECONNECTING"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// Prices and markets
	CodePriceUnavailable Code = "PRICE_UNAVAILABLE"
	CodeMarketNotFound   Code = "MARKET_NOT_FOUND"

	// Routing
	CodeQuoteFailed      Code = "QUOTE_FAILED"
	CodeInvalidQuote     Code = "INVALID_QUOTE"
	CodeNoRouteAvailable Code = "NO_ROUTE_AVAILABLE"
	CodeRouteNotFound    Code = "ROUTE_NOT_FOUND"
	CodeRouteUnavailable Code = "ROUTE_UNAVAILABLE"
	CodeQuoteStale       Code = "QUOTE_STALE"
	CodeQuoteConsumed    Code = "QUOTE_CONSUMED"
	CodeAssembleFailed   Code = "ASSEMBLE_FAILED"

	// Order validation
	CodeInsufficientMargin   Code = "INSUFFICIENT_MARGIN"
	CodeInvalidStopLoss      Code = "INVALID_STOP_LOSS"
	CodeAmountExceedsBalance Code = "AMOUNT_EXCEEDS_BALANCE"

	// Execution
	CodeOrderBuildFailed     Code = "ORDER_BUILD_FAILED"
	CodeTransactionRejected  Code = "TRANSACTION_REJECTED"
	CodeTransactionReverted  Code = "TRANSACTION_REVERTED"
	CodeTransactionTimeout   Code = "TRANSACTION_TIMEOUT"
	CodePartialExecution     Code = "PARTIAL_EXECUTION"
	CodeHistoryStoreFailed   Code = "HISTORY_STORE_FAILED"
	CodeAllowanceCheckFailed Code = "ALLOWANCE_CHECK_FAILED"
	CodeWalletNotConfigured  Code = "WALLET_NOT_CONFIGURED"

	// Cache errors
	CodeCacheMiss    Code = "CACHE_MISS"
	CodeCacheExpired Code = "CACHE_EXPIRED"

	// Circuit breaker errors
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
