// Package asset models the on-chain tokens the router can quote and the
// unit conversions between human-readable amounts and base units.
package asset

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ID identifies a token by chain and contract address. The zero address
// denotes the chain's native coin.
type ID struct {
	ChainID uint64
	Address common.Address
}

// NativeID returns the ID of chainID's native coin.
func NativeID(chainID uint64) ID {
	return ID{ChainID: chainID}
}

// TokenID returns the ID of an ERC20 token. It panics on the zero address.
func TokenID(chainID uint64, addr common.Address) ID {
	if addr == (common.Address{}) {
		panic("asset: zero token address, use NativeID")
	}
	return ID{ChainID: chainID, Address: addr}
}

// IsNative reports whether id is a native coin.
func (id ID) IsNative() bool {
	return id.Address == (common.Address{})
}

func (id ID) String() string {
	if id.IsNative() {
		return fmt.Sprintf("%d/native", id.ChainID)
	}
	return fmt.Sprintf("%d/%s", id.ChainID, id.Address.Hex())
}

// Asset is token metadata. Symbols are display data, not identity.
type Asset struct {
	id       ID
	symbol   string
	name     string
	decimals uint8
}

// New creates an Asset. It panics on an empty symbol or more than
// MaxDecimals decimals.
func New(id ID, symbol, name string, decimals uint8) *Asset {
	if symbol == "" {
		panic("asset: empty symbol")
	}
	if decimals > MaxDecimals {
		panic(fmt.Sprintf("asset: %d decimals", decimals))
	}
	return &Asset{id: id, symbol: symbol, name: name, decimals: decimals}
}

func (a *Asset) ID() ID                  { return a.id }
func (a *Asset) Symbol() string          { return a.symbol }
func (a *Asset) Decimals() uint8         { return a.decimals }
func (a *Asset) ChainID() uint64         { return a.id.ChainID }
func (a *Asset) Address() common.Address { return a.id.Address }
func (a *Asset) IsNative() bool          { return a.id.IsNative() }
func (a *Asset) String() string          { return a.symbol }

// Name returns the display name, falling back to the symbol.
func (a *Asset) Name() string {
	if a.name == "" {
		return a.symbol
	}
	return a.name
}
