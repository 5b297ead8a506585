package apm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/perp-router/internal/logger"
)

func TestNewTraceProvider_Empty(t *testing.T) {
	for _, p := range []Provider{EmptyProvider, "jaeger", ""} {
		tp, err := NewTraceProvider(context.Background(), Options{Provider: p}, logger.NewNop())
		require.NoError(t, err, p)
		assert.IsType(t, emptyProvider{}, tp)
		assert.NoError(t, tp.Stop())
	}
}

func TestNewTraceProvider_Console(t *testing.T) {
	tp, err := NewTraceProvider(context.Background(), Options{
		ServiceName: "perp-router-test",
		Provider:    "CONSOLE",
		SampleRatio: 0.5,
	}, logger.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &traceProvider{}, tp)
	assert.NoError(t, tp.Stop())
}
