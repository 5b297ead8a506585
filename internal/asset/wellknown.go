package asset

import "github.com/ethereum/go-ethereum/common"

// Chain IDs
const (
	ChainIDEthereum = 1
	ChainIDArbitrum = 42161
	ChainIDBase     = 8453
)

// Token addresses on Ethereum mainnet
var (
	AddrUSDCEthereum = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	AddrUSDTEthereum = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	AddrWETHEthereum = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	AddrWBTCEthereum = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
)

// Token addresses on Arbitrum One
var (
	AddrUSDCArbitrum = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	AddrUSDTArbitrum = common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9")
	AddrWETHArbitrum = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	AddrWBTCArbitrum = common.HexToAddress("0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f")
	AddrARBArbitrum  = common.HexToAddress("0x912CE59144191C1204E64559FE8253a0e49E6548")
)

// Well-known assets
var (
	ETH  = New(NativeID(ChainIDEthereum), "ETH", "Ethereum", 18)
	USDC = New(TokenID(ChainIDEthereum, AddrUSDCEthereum), "USDC", "USD Coin", 6)
	USDT = New(TokenID(ChainIDEthereum, AddrUSDTEthereum), "USDT", "Tether USD", 6)
	WETH = New(TokenID(ChainIDEthereum, AddrWETHEthereum), "WETH", "Wrapped Ether", 18)
	WBTC = New(TokenID(ChainIDEthereum, AddrWBTCEthereum), "WBTC", "Wrapped Bitcoin", 8)

	ArbETH  = New(NativeID(ChainIDArbitrum), "ETH", "Ethereum", 18)
	ArbUSDC = New(TokenID(ChainIDArbitrum, AddrUSDCArbitrum), "USDC", "USD Coin", 6)
	ArbUSDT = New(TokenID(ChainIDArbitrum, AddrUSDTArbitrum), "USDT", "Tether USD", 6)
	ArbWETH = New(TokenID(ChainIDArbitrum, AddrWETHArbitrum), "WETH", "Wrapped Ether", 18)
	ArbWBTC = New(TokenID(ChainIDArbitrum, AddrWBTCArbitrum), "WBTC", "Wrapped Bitcoin", 8)
	ARB     = New(TokenID(ChainIDArbitrum, AddrARBArbitrum), "ARB", "Arbitrum", 18)
)

// DefaultRegistry returns a registry holding the well-known assets.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, a := range []*Asset{ETH, USDC, USDT, WETH, WBTC, ArbETH, ArbUSDC, ArbUSDT, ArbWETH, ArbWBTC, ARB} {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
	return r
}
