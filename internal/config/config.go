// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	PriceFeed PriceFeedConfig `mapstructure:"price_feed"`
	Markets   MarketsConfig   `mapstructure:"markets"`
	Paraswap  SwapAPIConfig   `mapstructure:"paraswap"`
	Kyberswap SwapAPIConfig   `mapstructure:"kyberswap"`
	Uniswap   UniswapConfig   `mapstructure:"uniswap"`
	OrderAPI  OrderAPIConfig  `mapstructure:"order_api"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	API       APIConfig       `mapstructure:"api"`
	History   HistoryConfig   `mapstructure:"history"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Tokens    []TokenConfig   `mapstructure:"tokens"`

	TUIMode bool `mapstructure:"-"` // Set at runtime, not from config file
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// EthereumConfig holds node configuration.
type EthereumConfig struct {
	HTTPURL        string        `mapstructure:"http_url"`
	WebSocketURL   string        `mapstructure:"websocket_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	ReceiptTimeout time.Duration `mapstructure:"receipt_timeout"`

	// Head tracking: WebSocket newHeads when WebSocketURL is set, polling
	// HTTPURL otherwise and while the socket is down.
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`

	GasCacheTTL     time.Duration `mapstructure:"gas_cache_ttl"`
	MaxGasPriceGwei int64         `mapstructure:"max_gas_price_gwei"`
}

// WalletConfig selects where the signing key comes from. PrivateKey wins over
// the secret manager when both are set.
type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
	GCPProject string `mapstructure:"gcp_project"`
	SecretName string `mapstructure:"secret_name"`
}

// Enabled reports whether any key source is configured.
func (c WalletConfig) Enabled() bool {
	return c.PrivateKey != "" || (c.GCPProject != "" && c.SecretName != "")
}

// TokenConfig registers an ERC20 token beyond the built-in set.
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Name     string `mapstructure:"name"`
	Address  string `mapstructure:"address"`
	Decimals uint8  `mapstructure:"decimals"`
}

// PriceFeedConfig holds the price stream settings.
type PriceFeedConfig struct {
	WebSocketURL string        `mapstructure:"websocket_url"`
	SnapshotURL  string        `mapstructure:"snapshot_url"`
	Symbols      []string      `mapstructure:"symbols"`
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`
}

// MarketsConfig holds the on-chain market registry settings.
type MarketsConfig struct {
	RegistryAddress string        `mapstructure:"registry_address"`
	Account         string        `mapstructure:"account"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Pairs           []PairConfig  `mapstructure:"pairs"`
	Venues          []VenueConfig `mapstructure:"venues"`
}

// PairConfig describes a tradable pair.
type PairConfig struct {
	ID     uint64 `mapstructure:"id"`
	Symbol string `mapstructure:"symbol"`
}

// VenueConfig describes an execution venue for perp orders.
// Empty Pairs means every pair is supported. A non-empty Fee overrides the
// on-chain fee fraction.
type VenueConfig struct {
	ID    string   `mapstructure:"id"`
	Name  string   `mapstructure:"name"`
	Pairs []string `mapstructure:"pairs"`
	Fee   string   `mapstructure:"fee"`
}

// FeeOverride returns the parsed fee override, if any.
func (v VenueConfig) FeeOverride() (decimal.Decimal, bool) {
	if v.Fee == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v.Fee)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// SwapAPIConfig holds settings for an HTTP swap aggregator.
type SwapAPIConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Partner      string        `mapstructure:"partner"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimitRPM int           `mapstructure:"rate_limit_rpm"`
}

// UniswapConfig holds Uniswap V3 contract addresses.
type UniswapConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	QuoterAddress  string `mapstructure:"quoter_address"`
	RouterAddress  string `mapstructure:"router_address"`
	DefaultFeeTier int    `mapstructure:"default_fee_tier"`
	WrappedNative  string `mapstructure:"wrapped_native"`
}

// QuoterAddressHex returns the quoter address as common.Address.
func (c *UniswapConfig) QuoterAddressHex() common.Address {
	return common.HexToAddress(c.QuoterAddress)
}

// RouterAddressHex returns the router address as common.Address.
func (c *UniswapConfig) RouterAddressHex() common.Address {
	return common.HexToAddress(c.RouterAddress)
}

// OrderAPIConfig holds the order-construction backend settings.
type OrderAPIConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Referrer        string        `mapstructure:"referrer"`
	DefaultSlippage float64       `mapstructure:"default_slippage"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// DefaultSlippageDecimal returns the default slippage percentage.
func (c *OrderAPIConfig) DefaultSlippageDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.DefaultSlippage)
}

// RoutingConfig holds quote aggregation settings.
type RoutingConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	QuoteTimeout time.Duration `mapstructure:"quote_timeout"`
	MaxQuoteAge  time.Duration `mapstructure:"max_quote_age"`
	PathTTL      time.Duration `mapstructure:"path_ttl"`
	// MaxBlockLag rejects quotes priced this many blocks behind head. Zero
	// disables the check.
	MaxBlockLag uint64 `mapstructure:"max_block_lag"`
	// SessionIdleTTL closes quote sessions nobody has read or edited for
	// this long. Zero keeps sessions until they are closed explicitly.
	SessionIdleTTL time.Duration `mapstructure:"session_idle_ttl"`
}

// APIConfig holds the HTTP API settings.
type APIConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ListenAddr   string `mapstructure:"listen_addr"`
	JWTSecret    string `mapstructure:"jwt_secret"`
	RateLimitRPM int    `mapstructure:"rate_limit_rpm"`
}

// HistoryConfig selects the execution history store.
type HistoryConfig struct {
	Driver      string `mapstructure:"driver"` // memory | postgres
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
	HealthPort     int    `mapstructure:"health_port"`
}

// Headers parses OTLPHeaders ("k1=v1,k2=v2"). Malformed pairs are skipped.
func (c TelemetryConfig) Headers() map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(c.OTLPHeaders, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"log-level":   "app.log_level",
	"rpc":         "ethereum.http_url",
	"chain-id":    "ethereum.chain_id",
	"listen":      "api.listen_addr",
	"debounce":    "routing.debounce",
	"history-dsn": "history.postgres_dsn",
}

// Load loads configuration from file, environment variables and, when
// flags is non-nil, command line flags. Flags win over env, env over file.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("PERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "PERP_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "PERP_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "PERP_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.http_url", "PERP_ETH_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("ethereum.websocket_url", "PERP_ETH_WS_URL", "ETH_WS_URL")
	v.BindEnv("ethereum.chain_id", "PERP_ETH_CHAIN_ID", "ETH_CHAIN_ID")

	// Wallet
	v.BindEnv("wallet.private_key", "PERP_PRIVATE_KEY", "PRIVATE_KEY")
	v.BindEnv("wallet.gcp_project", "PERP_GCP_PROJECT", "GOOGLE_CLOUD_PROJECT")
	v.BindEnv("wallet.secret_name", "PERP_WALLET_SECRET")

	// Price feed
	v.BindEnv("price_feed.websocket_url", "PERP_PRICE_WS_URL", "PRICE_WS_URL")
	v.BindEnv("price_feed.snapshot_url", "PERP_PRICE_SNAPSHOT_URL", "PRICE_SNAPSHOT_URL")

	// Markets
	v.BindEnv("markets.registry_address", "PERP_REGISTRY_ADDRESS")
	v.BindEnv("markets.account", "PERP_ACCOUNT")

	// Swap aggregators
	v.BindEnv("paraswap.base_url", "PERP_PARASWAP_URL")
	v.BindEnv("paraswap.api_key", "PERP_PARASWAP_API_KEY")
	v.BindEnv("kyberswap.base_url", "PERP_KYBERSWAP_URL")
	v.BindEnv("kyberswap.api_key", "PERP_KYBERSWAP_CLIENT_ID")

	// Uniswap
	v.BindEnv("uniswap.quoter_address", "PERP_UNISWAP_QUOTER", "UNISWAP_QUOTER")
	v.BindEnv("uniswap.router_address", "PERP_UNISWAP_ROUTER", "UNISWAP_ROUTER")

	// Order backend
	v.BindEnv("order_api.base_url", "PERP_ORDER_API_URL")
	v.BindEnv("order_api.referrer", "PERP_REFERRER")

	// API
	v.BindEnv("api.listen_addr", "PERP_API_ADDR", "APP_ADDR")
	v.BindEnv("api.jwt_secret", "PERP_JWT_SECRET", "JWT_SECRET")

	// History
	v.BindEnv("history.driver", "PERP_HISTORY_DRIVER")
	v.BindEnv("history.postgres_dsn", "PERP_PG_DSN", "DATABASE_URL")

	// Telemetry
	v.BindEnv("telemetry.enabled", "PERP_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "PERP_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "PERP_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "PERP_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "perp-router")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Ethereum defaults (Arbitrum One)
	v.SetDefault("ethereum.chain_id", 42161)
	v.SetDefault("ethereum.receipt_timeout", "2m")
	v.SetDefault("ethereum.poll_interval", "4s")
	v.SetDefault("ethereum.reconnect_delay", "5s")
	v.SetDefault("ethereum.gas_cache_ttl", "12s")
	v.SetDefault("ethereum.max_gas_price_gwei", 500)

	// Price feed defaults
	v.SetDefault("price_feed.symbols", []string{"BTC", "ETH"})
	v.SetDefault("price_feed.stale_timeout", "10s")

	// Markets defaults
	v.SetDefault("markets.poll_interval", "5s")
	v.SetDefault("markets.pairs", []map[string]any{
		{"id": 0, "symbol": "BTC-USD"},
		{"id": 1, "symbol": "ETH-USD"},
	})
	v.SetDefault("markets.venues", []map[string]any{
		{"id": "vault", "name": "Vault"},
	})

	// Swap aggregator defaults
	v.SetDefault("paraswap.enabled", true)
	v.SetDefault("paraswap.base_url", "https://api.paraswap.io")
	v.SetDefault("paraswap.timeout", "8s")
	v.SetDefault("paraswap.rate_limit_rpm", 120)
	v.SetDefault("kyberswap.enabled", true)
	v.SetDefault("kyberswap.base_url", "https://aggregator-api.kyberswap.com")
	v.SetDefault("kyberswap.timeout", "8s")
	v.SetDefault("kyberswap.rate_limit_rpm", 120)

	// Uniswap V3 Arbitrum defaults
	v.SetDefault("uniswap.enabled", true)
	v.SetDefault("uniswap.quoter_address", "0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	v.SetDefault("uniswap.router_address", "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45")
	v.SetDefault("uniswap.default_fee_tier", 500) // 0.05%
	v.SetDefault("uniswap.wrapped_native", "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")

	// Order backend defaults
	v.SetDefault("order_api.default_slippage", 1.0)
	v.SetDefault("order_api.timeout", "10s")

	// Routing defaults
	v.SetDefault("routing.debounce", "1000ms")
	v.SetDefault("routing.quote_timeout", "10s")
	v.SetDefault("routing.max_quote_age", "30s")
	v.SetDefault("routing.path_ttl", "10m")
	v.SetDefault("routing.max_block_lag", 0)
	v.SetDefault("routing.session_idle_ttl", "10m")

	// API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.rate_limit_rpm", 600)

	// History defaults
	v.SetDefault("history.driver", "memory")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "perp-router")
	v.SetDefault("telemetry.trace_provider", "zipkin")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.health_port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Ethereum.HTTPURL == "" {
		return fmt.Errorf("ethereum.http_url is required")
	}
	if c.Markets.RegistryAddress != "" && !common.IsHexAddress(c.Markets.RegistryAddress) {
		return fmt.Errorf("invalid markets.registry_address: %s", c.Markets.RegistryAddress)
	}
	if c.Uniswap.Enabled {
		if !common.IsHexAddress(c.Uniswap.QuoterAddress) {
			return fmt.Errorf("invalid uniswap.quoter_address: %s", c.Uniswap.QuoterAddress)
		}
		if !common.IsHexAddress(c.Uniswap.RouterAddress) {
			return fmt.Errorf("invalid uniswap.router_address: %s", c.Uniswap.RouterAddress)
		}
	}
	if c.Routing.Debounce < 0 || c.Routing.MaxQuoteAge < 0 || c.Routing.SessionIdleTTL < 0 {
		return fmt.Errorf("routing durations must not be negative")
	}
	if len(c.Markets.Venues) == 0 {
		return fmt.Errorf("markets.venues cannot be empty")
	}
	for _, venue := range c.Markets.Venues {
		if venue.ID == "" {
			return fmt.Errorf("markets.venues: id is required")
		}
		if venue.Fee != "" {
			if _, ok := venue.FeeOverride(); !ok {
				return fmt.Errorf("markets.venues[%s]: invalid fee %q", venue.ID, venue.Fee)
			}
		}
	}
	switch c.History.Driver {
	case "memory":
	case "postgres":
		if c.History.PostgresDSN == "" {
			return fmt.Errorf("history.postgres_dsn is required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown history.driver: %s", c.History.Driver)
	}
	for _, tok := range c.Tokens {
		if tok.Symbol == "" || !common.IsHexAddress(tok.Address) || common.HexToAddress(tok.Address) == (common.Address{}) {
			return fmt.Errorf("tokens: symbol and a valid address are required (%q)", tok.Symbol)
		}
	}
	if c.API.Enabled && c.API.JWTSecret != "" && len(c.API.JWTSecret) < 16 {
		return fmt.Errorf("api.jwt_secret must be at least 16 characters")
	}
	return nil
}
