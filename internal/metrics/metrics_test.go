package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSyncMetrics_Observe(t *testing.T) {
	m := newSyncMetrics()
	m.ObserveAttempt("auctions", OutcomeStale)
	m.ObserveAttempt("auctions", OutcomeStale)
	m.ObserveAttempt("auctions", OutcomeFresh)
	m.ObserveCommit("1", "auctions", 19_000_001)
	m.IncDropped()

	if got := testutil.ToFloat64(m.pollAttempts.WithLabelValues("auctions", OutcomeStale)); got != 2 {
		t.Fatalf("stale=%v", got)
	}
	if got := testutil.ToFloat64(m.lastBlock.WithLabelValues("1", "auctions")); got != 19_000_001 {
		t.Fatalf("block=%v", got)
	}
	if got := testutil.ToFloat64(m.dropped); got != 1 {
		t.Fatalf("dropped=%v", got)
	}
}

func TestSyncMetrics_NilSafe(t *testing.T) {
	var m *SyncMetrics
	m.ObserveAttempt("loans", OutcomeError)
	m.ObserveCommit("1", "loans", 1)
	m.PollStarted("loans")
	m.PollFinished("loans")
	m.IncDropped()
	m.ObserveCurve(true)
}
