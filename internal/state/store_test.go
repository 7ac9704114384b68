package state

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"creditguild/internal/client/indexer"
	"creditguild/internal/client/prices"
)

func TestSlot_ReplacesWholesale(t *testing.T) {
	store := NewStore()
	m := store.Market("1")

	_, _, ok := m.Loans.Get()
	require.False(t, ok)

	first := &indexer.LoansSnapshot{UpdateBlock: 10, Loans: []indexer.Loan{{ID: "a"}, {ID: "b"}}}
	require.True(t, m.Loans.Set(first, first.UpdateBlock))

	second := &indexer.LoansSnapshot{UpdateBlock: 11, Loans: []indexer.Loan{{ID: "c"}}}
	require.True(t, m.Loans.Set(second, second.UpdateBlock))

	got, version, ok := m.Loans.Get()
	require.True(t, ok)
	require.Equal(t, uint64(11), version)
	require.Len(t, got.Loans, 1)
	require.Equal(t, "c", got.Loans[0].ID)
	require.Equal(t, uint64(11), m.VersionOf(indexer.ResourceLoans))
}

func TestSlot_RejectsOlderVersion(t *testing.T) {
	store := NewStore()
	m := store.Market("1")
	require.True(t, m.Auctions.Set(&indexer.AuctionsSnapshot{UpdateBlock: 20}, 20))
	require.False(t, m.Auctions.Set(&indexer.AuctionsSnapshot{UpdateBlock: 15}, 15))
	require.True(t, m.Auctions.Set(&indexer.AuctionsSnapshot{UpdateBlock: 20, Updated: 2}, 20))

	got, version, _ := m.Auctions.Get()
	require.Equal(t, uint64(20), version)
	require.Equal(t, int64(2), got.Updated)
}

func TestStore_SubscribeReceivesCommits(t *testing.T) {
	store := NewStore()
	events, cancel := store.Subscribe(4)
	defer cancel()

	store.Market("7").Proposals.Set(&indexer.ProposalsSnapshot{UpdateBlock: 3}, 3)
	ev := <-events
	require.Equal(t, "7", ev.Market)
	require.Equal(t, string(indexer.ResourceProposals), ev.Resource)
	require.Equal(t, uint64(3), ev.Version)

	// refused writes are silent
	store.Market("7").Proposals.Set(&indexer.ProposalsSnapshot{UpdateBlock: 1}, 1)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestStore_SlowSubscriberDrops(t *testing.T) {
	store := NewStore()
	var dropped []Event
	store.OnDrop = func(ev Event) { dropped = append(dropped, ev) }
	_, cancel := store.Subscribe(1)
	defer cancel()

	m := store.Market("1")
	m.Loans.Set(&indexer.LoansSnapshot{UpdateBlock: 1}, 1)
	m.Loans.Set(&indexer.LoansSnapshot{UpdateBlock: 2}, 2)
	m.Loans.Set(&indexer.LoansSnapshot{UpdateBlock: 3}, 3)

	require.Equal(t, uint64(2), store.Dropped())
	require.Len(t, dropped, 2)
}

func TestStore_CancelClosesChannel(t *testing.T) {
	store := NewStore()
	events, cancel := store.Subscribe(1)
	cancel()
	cancel()
	_, open := <-events
	require.False(t, open)
	store.Market("1").Loans.Set(&indexer.LoansSnapshot{UpdateBlock: 1}, 1)
}

func TestMarket_Quote(t *testing.T) {
	store := NewStore()
	m := store.Market("1")
	_, ok := m.Quote("0xAAA")
	require.False(t, ok)

	m.Prices.Set(map[string]prices.Quote{
		"0xaaa": {Address: "0xaaa", Price: decimal.NewFromInt(3000), Decimals: 18},
	}, 1700000000)
	q, ok := m.Quote(" 0xAAA ")
	require.True(t, ok)
	require.Equal(t, int32(18), q.Decimals)
	require.Equal(t, []string{"1"}, store.MarketIDs())
}

func TestSlot_UpdateAdvancesVersion(t *testing.T) {
	s := NewStore()
	events, cancel := s.Subscribe(4)
	defer cancel()
	m := s.Market("1")

	v1 := m.Prices.Update(func(cur map[string]prices.Quote, ok bool) map[string]prices.Quote {
		require.False(t, ok)
		return map[string]prices.Quote{"0xa": {Address: "0xa", Timestamp: 50}}
	})
	v2 := m.Prices.Update(func(cur map[string]prices.Quote, ok bool) map[string]prices.Quote {
		require.True(t, ok)
		require.Contains(t, cur, "0xa")
		return map[string]prices.Quote{"0xb": {Address: "0xb", Timestamp: 10}}
	})
	require.Equal(t, uint64(1), v1)
	require.Equal(t, uint64(2), v2)

	got, version, _ := m.Prices.Get()
	require.Equal(t, uint64(2), version)
	require.NotContains(t, got, "0xa")

	require.Equal(t, uint64(1), (<-events).Version)
	require.Equal(t, uint64(2), (<-events).Version)
}
