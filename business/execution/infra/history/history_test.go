package history

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/perp-router/business/execution/domain"
	"github.com/fd1az/perp-router/internal/apperror"
)

func record(i int) domain.Record {
	rec := domain.NewRecord(domain.KindSwap, time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC))
	rec.Route = "paraswap"
	rec.PathID = fmt.Sprintf("path-%d", i)
	rec.Status = domain.StatusConfirmed
	return rec
}

func TestMemory_NewestFirst(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, m.Save(ctx, record(i)))
	}

	got, err := m.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "path-2", got[0].PathID)
	assert.Equal(t, "path-0", got[2].PathID)

	got, err = m.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "path-1", got[1].PathID)
}

func TestMemory_EvictsOldest(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Save(ctx, record(i)))
	}

	got, err := m.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"path-4", "path-3", "path-2"},
		[]string{got[0].PathID, got[1].PathID, got[2].PathID})
}

func TestMemory_Empty(t *testing.T) {
	got, err := NewMemory(0).List(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewPostgres_RequiresDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), "")
	assert.Equal(t, apperror.CodeConfigurationError, apperror.GetCode(err))
}

func TestPostgres_SaveAndList(t *testing.T) {
	dsn := os.Getenv("PERP_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("PERP_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	first, second := record(1), record(2)
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	second.Status = domain.StatusReverted
	second.Error = "TRANSACTION_REVERTED"
	require.NoError(t, store.Save(ctx, second))

	got, err := store.List(ctx, 50)
	require.NoError(t, err)
	byID := make(map[string]domain.Record, len(got))
	for _, r := range got {
		byID[r.ID] = r
	}
	require.Contains(t, byID, second.ID)
	assert.Equal(t, domain.StatusReverted, byID[second.ID].Status)
	assert.Equal(t, "TRANSACTION_REVERTED", byID[second.ID].Error)
	assert.True(t, first.CreatedAt.Equal(byID[first.ID].CreatedAt))
}
