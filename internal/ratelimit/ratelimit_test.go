package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Burst(t *testing.T) {
	l := New(60) // burst 6
	for i := 0; i < 6; i++ {
		require.True(t, l.Allow(), "request %d", i)
	}
	assert.False(t, l.Allow())
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := New(1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}

func TestKeyed_IsolatesKeysAndEvictsIdle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	k := NewKeyed(10, time.Minute) // burst 1
	k.now = func() time.Time { return now }

	assert.True(t, k.Allow("a"))
	assert.False(t, k.Allow("a"))
	assert.True(t, k.Allow("b"))
	assert.Equal(t, 2, k.Len())

	now = now.Add(2 * time.Minute)
	assert.True(t, k.Allow("c"))
	assert.Equal(t, 1, k.Len())
}
