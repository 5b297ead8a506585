package app

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/asset"
)

// Token is a resolved swap token.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// TokenResolver turns a symbol or address into a Token on one chain.
type TokenResolver struct {
	assets  *asset.Registry
	chainID uint64
}

// NewTokenResolver creates a TokenResolver over assets.
func NewTokenResolver(assets *asset.Registry, chainID uint64) *TokenResolver {
	return &TokenResolver{assets: assets, chainID: chainID}
}

// Resolve accepts "ETH", a registered symbol such as "USDC", or a hex
// address of a registered token.
func (r *TokenResolver) Resolve(s string) (Token, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Token{}, apperror.New(apperror.CodeRequiredField, apperror.WithContext("token"))
	}

	if common.IsHexAddress(s) {
		addr := common.HexToAddress(s)
		if IsNative(addr) {
			return r.native()
		}
		a, ok := r.assets.GetToken(r.chainID, addr)
		if !ok {
			return Token{}, apperror.NotFound(apperror.CodeNotFound, "token "+addr.Hex())
		}
		return Token{Address: addr, Symbol: a.Symbol(), Decimals: a.Decimals()}, nil
	}

	symbol := strings.ToUpper(s)
	a, ok := r.assets.GetBySymbolAndChain(symbol, r.chainID)
	if !ok {
		return Token{}, apperror.NotFound(apperror.CodeNotFound, "token "+symbol)
	}
	if a.IsNative() {
		return r.native()
	}
	return Token{Address: a.Address(), Symbol: a.Symbol(), Decimals: a.Decimals()}, nil
}

func (r *TokenResolver) native() (Token, error) {
	a, ok := r.assets.GetNative(r.chainID)
	if !ok {
		return Token{}, apperror.NotFound(apperror.CodeNotFound, "native token")
	}
	return Token{Address: NativeToken, Symbol: a.Symbol(), Decimals: a.Decimals()}, nil
}

// Request builds an enabled QuoteRequest for a pair of tokens.
func (r *TokenResolver) Request(in, out, amount string) (QuoteRequest, error) {
	tin, err := r.Resolve(in)
	if err != nil {
		return QuoteRequest{}, err
	}
	tout, err := r.Resolve(out)
	if err != nil {
		return QuoteRequest{}, err
	}
	return QuoteRequest{
		TokenIn:     tin.Address,
		TokenOut:    tout.Address,
		DecimalsIn:  tin.Decimals,
		DecimalsOut: tout.Decimals,
		Amount:      amount,
		Enabled:     true,
	}, nil
}

// PairLabel names the pair of req as "IN/OUT", falling back to shortened
// addresses for unregistered tokens.
func (r *TokenResolver) PairLabel(req QuoteRequest) string {
	return r.symbol(req.TokenIn) + "/" + r.symbol(req.TokenOut)
}

func (r *TokenResolver) symbol(addr common.Address) string {
	if tok, err := r.Resolve(addr.Hex()); err == nil {
		return tok.Symbol
	}
	hex := addr.Hex()
	return hex[:6] + ".." + hex[len(hex)-4:]
}
