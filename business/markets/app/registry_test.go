package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/perp-router/business/markets/domain"
	"github.com/fd1az/perp-router/internal/apperror"
	"github.com/fd1az/perp-router/internal/logger"
)

type fakeReader struct {
	mu    sync.Mutex
	infos map[string]domain.MarketInfo
	fail  map[string]error
	calls int
}

func (f *fakeReader) GetGlobalInfo(_ context.Context, _ common.Address, pair domain.Pair) (domain.MarketInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[pair.Symbol]; err != nil {
		return domain.MarketInfo{}, err
	}
	info := f.infos[pair.Symbol]
	info.PairID, info.Symbol = pair.ID, pair.Symbol
	return info, nil
}

func (f *fakeReader) set(symbol string, info domain.MarketInfo) {
	f.mu.Lock()
	f.infos[symbol] = info
	f.mu.Unlock()
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestRegistry(t *testing.T, reader *fakeReader, venues ...domain.Venue) *Registry {
	t.Helper()
	r, err := NewRegistry(reader, RegistryConfig{
		Pairs:        []domain.Pair{{ID: 0, Symbol: "BTC-USD"}, {ID: 1, Symbol: "ETH-USD"}},
		Venues:       venues,
		PollInterval: 20 * time.Millisecond,
	}, logger.NewNop())
	require.NoError(t, err)
	return r
}

func TestRegistry_RefreshReplacesSnapshot(t *testing.T) {
	reader := &fakeReader{infos: map[string]domain.MarketInfo{
		"BTC-USD": {LongFee: dec("0.0008")},
		"ETH-USD": {LongFee: dec("0.0006")},
	}}
	r := newTestRegistry(t, reader)

	require.NoError(t, r.Refresh(context.Background()))
	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "BTC-USD", all[0].Symbol)
	assert.Equal(t, "ETH-USD", all[1].Symbol)
	assert.False(t, r.LastUpdated().IsZero())

	m, ok := r.Get("eth-usd")
	require.True(t, ok)
	assert.True(t, dec("0.0006").Equal(m.LongFee))
}

func TestRegistry_FailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	reader := &fakeReader{infos: map[string]domain.MarketInfo{
		"BTC-USD": {LongFee: dec("0.0008")},
		"ETH-USD": {LongFee: dec("0.0006")},
	}}
	r := newTestRegistry(t, reader)
	require.NoError(t, r.Refresh(context.Background()))
	before := r.LastUpdated()

	reader.set("BTC-USD", domain.MarketInfo{LongFee: dec("0.5")})
	reader.fail = map[string]error{"ETH-USD": errors.New("rpc down")}

	err := r.Refresh(context.Background())
	require.Error(t, err)

	m, _ := r.Get("BTC-USD")
	assert.True(t, dec("0.0008").Equal(m.LongFee), "no partial update")
	assert.Equal(t, before, r.LastUpdated())
}

func TestRegistry_RunPollsAndPublishes(t *testing.T) {
	reader := &fakeReader{infos: map[string]domain.MarketInfo{}}
	r := newTestRegistry(t, reader)
	updates := r.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case snap := <-updates:
		assert.Len(t, snap, 2)
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}

	time.Sleep(70 * time.Millisecond)
	cancel()
	<-done

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.GreaterOrEqual(t, reader.calls, 4, "expected repeated polling")
}

func TestRegistry_MarketFees(t *testing.T) {
	reader := &fakeReader{infos: map[string]domain.MarketInfo{
		"BTC-USD": {LongFee: dec("0.0008"), ShortFee: dec("0.0006"), FundingRate: dec("0.001"), LongBorrowRate: dec("0.01")},
	}}
	r := newTestRegistry(t, reader)
	require.NoError(t, r.Refresh(context.Background()))

	fees, err := r.MarketFees(context.Background(), "BTC-USD")
	require.NoError(t, err)
	assert.True(t, dec("0.0008").Equal(fees.LongFee))
	assert.True(t, dec("0.01").Equal(fees.LongBorrow))

	_, err = r.MarketFees(context.Background(), "DOGE-USD")
	assert.Equal(t, apperror.CodeMarketNotFound, apperror.GetCode(err))
}

func TestVenueRoutes(t *testing.T) {
	override := dec("0.0003")
	venues := []domain.Venue{
		{ID: "vault", Name: "Vault"},
		{ID: "book", Name: "Order Book", Pairs: []string{"BTC-USD"}, Fee: &override},
	}
	market := &domain.MarketInfo{
		Symbol:     "ETH-USD",
		LongFee:    dec("0.0008"),
		ShortFee:   dec("0.0006"),
		LongOI:     dec("100"),
		MaxLongOI:  dec("100"),
		ShortOI:    dec("10"),
		MaxShortOI: dec("100"),
	}

	long := VenueRoutes(market, "ETH-USD", venues, true)
	require.Len(t, long, 2)
	assert.False(t, long[0].Available)
	assert.Equal(t, ReasonOICapReached, long[0].Reason)
	assert.False(t, long[1].Available)
	assert.Equal(t, ReasonPairUnsupported, long[1].Reason)

	short := VenueRoutes(market, "ETH-USD", venues, false)
	assert.True(t, short[0].Available)
	assert.True(t, dec("0.0006").Equal(short[0].Fee))

	btc := VenueRoutes(&domain.MarketInfo{Symbol: "BTC-USD", LongFee: dec("0.0008")}, "BTC-USD", venues, true)
	assert.True(t, btc[1].Available)
	assert.True(t, override.Equal(btc[1].Fee))

	missing := VenueRoutes(nil, "ETH-USD", venues[:1], true)
	assert.Equal(t, ReasonNoMarketData, missing[0].Reason)
}
