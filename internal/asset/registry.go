package asset

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type symbolKey struct {
	chainID uint64
	symbol  string
}

// Registry indexes assets by ID and by (chain, symbol). Safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byID     map[ID]*Asset
	bySymbol map[symbolKey]*Asset
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[ID]*Asset),
		bySymbol: make(map[symbolKey]*Asset),
	}
}

// Register adds a. Registering an ID or a (chain, symbol) twice fails.
func (r *Registry) Register(a *Asset) error {
	if a == nil {
		return fmt.Errorf("asset: nil asset")
	}
	key := symbolKey{a.ChainID(), strings.ToUpper(a.Symbol())}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.ID()]; ok {
		return fmt.Errorf("asset: %s already registered", a.ID())
	}
	if _, ok := r.bySymbol[key]; ok {
		return fmt.Errorf("asset: symbol %s already registered on chain %d", a.Symbol(), a.ChainID())
	}
	r.byID[a.ID()] = a
	r.bySymbol[key] = a
	return nil
}

// Get returns the asset with id.
func (r *Registry) Get(id ID) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

// GetNative returns chainID's native coin.
func (r *Registry) GetNative(chainID uint64) (*Asset, bool) {
	return r.Get(NativeID(chainID))
}

// GetToken returns the token at address on chainID.
func (r *Registry) GetToken(chainID uint64, address common.Address) (*Asset, bool) {
	return r.Get(ID{ChainID: chainID, Address: address})
}

// GetBySymbolAndChain looks a symbol up case-insensitively.
func (r *Registry) GetBySymbolAndChain(symbol string, chainID uint64) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.bySymbol[symbolKey{chainID, strings.ToUpper(symbol)}]
	return a, ok
}

// Chain returns chainID's assets ordered by symbol.
func (r *Registry) Chain(chainID uint64) []*Asset {
	r.mu.RLock()
	out := make([]*Asset, 0, len(r.byID))
	for id, a := range r.byID {
		if id.ChainID == chainID {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol() < out[j].Symbol() })
	return out
}

// Len returns the number of registered assets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
