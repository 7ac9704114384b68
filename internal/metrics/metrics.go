package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeStale = "stale"
	OutcomeFresh = "fresh"
	OutcomeError = "error"
)

type SyncMetrics struct {
	pollAttempts *prometheus.CounterVec
	commits      *prometheus.CounterVec
	lastBlock    *prometheus.GaugeVec
	inflight     *prometheus.GaugeVec
	dropped      prometheus.Counter
	curveBuilds  *prometheus.CounterVec
}

var (
	syncOnce     sync.Once
	syncRegistry *SyncMetrics
)

// Sync returns the process-wide metrics registered on the default registry.
func Sync() *SyncMetrics {
	syncOnce.Do(func() {
		syncRegistry = newSyncMetrics()
		prometheus.MustRegister(
			syncRegistry.pollAttempts,
			syncRegistry.commits,
			syncRegistry.lastBlock,
			syncRegistry.inflight,
			syncRegistry.dropped,
			syncRegistry.curveBuilds,
		)
	})
	return syncRegistry
}

func newSyncMetrics() *SyncMetrics {
	return &SyncMetrics{
		pollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "creditguild_poll_attempts_total",
			Help: "Indexer fetches made by read-after-write polls, by resource and outcome.",
		}, []string{"resource", "outcome"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "creditguild_snapshot_commits_total",
			Help: "Snapshots committed to the state store by resource.",
		}, []string{"resource"}),
		lastBlock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "creditguild_snapshot_block",
			Help: "Update block of the last committed snapshot by market and resource.",
		}, []string{"market", "resource"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "creditguild_polls_inflight",
			Help: "Running poll loops by resource.",
		}, []string{"resource"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "creditguild_stream_dropped_total",
			Help: "State events dropped because a subscriber was not keeping up.",
		}),
		curveBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "creditguild_curve_builds_total",
			Help: "Auction curve requests by result.",
		}, []string{"result"}),
	}
}

func (m *SyncMetrics) ObserveAttempt(resource, outcome string) {
	if m == nil {
		return
	}
	if resource == "" {
		resource = "unknown"
	}
	m.pollAttempts.WithLabelValues(resource, outcome).Inc()
}

func (m *SyncMetrics) ObserveCommit(market, resource string, block uint64) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(resource).Inc()
	m.lastBlock.WithLabelValues(market, resource).Set(float64(block))
}

func (m *SyncMetrics) PollStarted(resource string) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(resource).Inc()
}

func (m *SyncMetrics) PollFinished(resource string) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(resource).Dec()
}

func (m *SyncMetrics) IncDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *SyncMetrics) ObserveCurve(ok bool) {
	if m == nil {
		return
	}
	m.curveBuilds.WithLabelValues(strconv.FormatBool(ok)).Inc()
}
