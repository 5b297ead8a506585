package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/perp-router/business/execution/infra/history"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/config"
	"github.com/fd1az/perp-router/internal/logger"
)

func TestNewHistory(t *testing.T) {
	store, err := NewHistory(context.Background(), config.HistoryConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &history.Memory{}, store)

	_, err = NewHistory(context.Background(), config.HistoryConfig{Driver: "postgres"})
	assert.Equal(t, apperror.CodeConfigurationError, apperror.GetCode(err))

	_, err = NewHistory(context.Background(), config.HistoryConfig{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestNewWallet(t *testing.T) {
	cfg := &config.Config{}
	_, err := NewWallet(context.Background(), cfg, nil, logger.NewNop())
	assert.Equal(t, apperror.CodeWalletNotConfigured, apperror.GetCode(err))

	cfg.Wallet.PrivateKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	cfg.Ethereum.ChainID = 42161
	w, err := NewWallet(context.Background(), cfg, nil, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", w.Address().Hex())
}
