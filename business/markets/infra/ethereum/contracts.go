package ethereum

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// RegistryABI is the subset of the trading registry used for market reads.
const RegistryABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "account", "type": "address"},
			{"internalType": "uint256", "name": "pairId", "type": "uint256"}
		],
		"name": "getGlobalInfo",
		"outputs": [
			{
				"components": [
					{"internalType": "int256", "name": "fundingRate", "type": "int256"},
					{"internalType": "uint256", "name": "longBorrowRate", "type": "uint256"},
					{"internalType": "uint256", "name": "shortBorrowRate", "type": "uint256"},
					{"internalType": "uint256", "name": "longOI", "type": "uint256"},
					{"internalType": "uint256", "name": "shortOI", "type": "uint256"},
					{"internalType": "uint256", "name": "maxLongOI", "type": "uint256"},
					{"internalType": "uint256", "name": "maxShortOI", "type": "uint256"},
					{"internalType": "uint256", "name": "longFee", "type": "uint256"},
					{"internalType": "uint256", "name": "shortFee", "type": "uint256"}
				],
				"internalType": "struct IRegistry.GlobalInfo",
				"name": "info",
				"type": "tuple"
			}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// On-chain fixed point scales.
const (
	RateDecimals = 18 // funding and borrow rates
	FeeDecimals  = 10 // trading fee fractions
	OIDecimals   = 6  // open interest, USDC
)

// GlobalInfo mirrors the getGlobalInfo return tuple.
type GlobalInfo struct {
	FundingRate     *big.Int `abi:"fundingRate"`
	LongBorrowRate  *big.Int `abi:"longBorrowRate"`
	ShortBorrowRate *big.Int `abi:"shortBorrowRate"`
	LongOI          *big.Int `abi:"longOI"`
	ShortOI         *big.Int `abi:"shortOI"`
	MaxLongOI       *big.Int `abi:"maxLongOI"`
	MaxShortOI      *big.Int `abi:"maxShortOI"`
	LongFee         *big.Int `abi:"longFee"`
	ShortFee        *big.Int `abi:"shortFee"`
}

func scaled(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}
