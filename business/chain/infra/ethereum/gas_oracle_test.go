package ethereum

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/logger"
)

type stubGasReader struct {
	mu    sync.Mutex
	price *big.Int
	err   error
	calls int
}

func (s *stubGasReader) SuggestGasPrice(context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Set(s.price), nil
}

func newOracle(t *testing.T, reader *stubGasReader, cfg GasOracleConfig) *GasOracle {
	t.Helper()
	g, err := NewGasOracle(reader, cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestGasOracle_CachesSuggestion(t *testing.T) {
	reader := &stubGasReader{price: GweiToWei(20)}
	g := newOracle(t, reader, DefaultGasOracleConfig())
	ctx := context.Background()

	first, err := g.GasPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20", first.Gwei().String())

	reader.price = GweiToWei(90)
	second, err := g.SuggestGasPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, GweiToWei(20), second)
	assert.Equal(t, 1, reader.calls)
}

func TestGasOracle_RefetchesAfterTTL(t *testing.T) {
	reader := &stubGasReader{price: GweiToWei(20)}
	g := newOracle(t, reader, GasOracleConfig{CacheTTL: 20 * time.Millisecond})
	ctx := context.Background()

	_, err := g.GasPrice(ctx)
	require.NoError(t, err)

	reader.mu.Lock()
	reader.price = GweiToWei(30)
	reader.mu.Unlock()

	require.Eventually(t, func() bool {
		p, err := g.GasPrice(ctx)
		return err == nil && p.Gwei().String() == "30"
	}, time.Second, 10*time.Millisecond)
}

func TestGasOracle_CapsSuggestion(t *testing.T) {
	reader := &stubGasReader{price: GweiToWei(900)}
	g := newOracle(t, reader, GasOracleConfig{CacheTTL: time.Minute, MaxGasPrice: GweiToWei(500)})

	wei, err := g.SuggestGasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GweiToWei(500), wei)
}

func TestGasOracle_ReaderError(t *testing.T) {
	reader := &stubGasReader{err: errors.New("timeout")}
	g := newOracle(t, reader, DefaultGasOracleConfig())

	_, err := g.SuggestGasPrice(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperror.CodeEthereumRPCError, apperror.GetCode(err))
}
