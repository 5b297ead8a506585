package app

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/asset"
)

func TestTokenResolver_Resolve(t *testing.T) {
	r := NewTokenResolver(asset.DefaultRegistry(), asset.ChainIDArbitrum)

	tests := []struct {
		in       string
		addr     string
		decimals uint8
	}{
		{"usdc", asset.AddrUSDCArbitrum.Hex(), 6},
		{"WBTC", asset.AddrWBTCArbitrum.Hex(), 8},
		{"ETH", NativeToken.Hex(), 18},
		{NativeToken.Hex(), NativeToken.Hex(), 18},
		{asset.AddrWETHArbitrum.Hex(), asset.AddrWETHArbitrum.Hex(), 18},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			tok, err := r.Resolve(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.addr, tok.Address.Hex())
			assert.Equal(t, tt.decimals, tok.Decimals)
		})
	}

	_, err := r.Resolve("DOGE")
	assert.Equal(t, apperror.CodeNotFound, apperror.GetCode(err))
	_, err = r.Resolve("")
	assert.Equal(t, apperror.CodeRequiredField, apperror.GetCode(err))
}

func TestTokenResolver_Request(t *testing.T) {
	r := NewTokenResolver(asset.DefaultRegistry(), asset.ChainIDArbitrum)

	req, err := r.Request("USDC", "WETH", "250")
	require.NoError(t, err)
	assert.False(t, req.Disabled())
	assert.Equal(t, uint8(6), req.DecimalsIn)
	assert.Equal(t, uint8(18), req.DecimalsOut)
}

func TestTokenResolver_PairLabel(t *testing.T) {
	r := NewTokenResolver(asset.DefaultRegistry(), asset.ChainIDArbitrum)

	req, err := r.Request("eth", "usdc", "1")
	require.NoError(t, err)
	assert.Equal(t, "ETH/USDC", r.PairLabel(req))

	req.TokenOut = common.HexToAddress("0x1111111111111111111111111111111111111111")
	assert.Equal(t, "ETH/0x1111..1111", r.PairLabel(req))
}
