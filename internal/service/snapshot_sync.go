package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"creditguild/internal/client/chain"
	"creditguild/internal/client/indexer"
	"creditguild/internal/metrics"
	"creditguild/internal/models"
	"creditguild/internal/poller"
	"creditguild/internal/repository"
	"creditguild/internal/state"
)

// SnapshotSource is the indexer surface the sync service polls.
type SnapshotSource interface {
	GetAuctions(ctx context.Context, marketID string) (*indexer.AuctionsSnapshot, []byte, error)
	GetLendingTerms(ctx context.Context, marketID string) (*indexer.LendingTermsSnapshot, []byte, error)
	GetLoans(ctx context.Context, marketID string) (*indexer.LoansSnapshot, []byte, error)
	GetProposals(ctx context.Context, marketID string) (*indexer.ProposalsSnapshot, []byte, error)
}

type ReceiptWaiter interface {
	WaitMined(ctx context.Context, txHash common.Hash) (uint64, error)
}

type SyncResult struct {
	MarketID    string `json:"market_id"`
	Resource    string `json:"resource"`
	TargetBlock uint64 `json:"target_block"`
	UpdateBlock uint64 `json:"update_block"`
	Attempts    int    `json:"attempts"`
	Joined      bool   `json:"joined"`
	Cached      bool   `json:"cached"`
}

// SnapshotSyncService refreshes indexer snapshots into the state store and
// implements read-after-write: a caller that just mined a transaction at
// block N waits until the indexer has processed N before the new snapshot
// is committed.
type SnapshotSyncService struct {
	Source   SnapshotSource
	State    *state.Store
	Repo     repository.SyncRepository
	Receipts ReceiptWaiter
	Metrics  *metrics.SyncMetrics
	Logger   *zap.Logger

	Poll       poller.Options
	PersistRaw bool
	KeepRaw    int

	mu       sync.Mutex
	inflight map[string]*flight
}

// flight is one running poll loop shared by every waiter on the same
// market and resource. Fields are guarded by SnapshotSyncService.mu.
type flight struct {
	waiters  map[*waiter]struct{}
	cancel   context.CancelFunc
	attempts int
}

// waiter is one caller blocked on a flight with its own target block.
type waiter struct {
	target uint64
	done   chan syncOutcome
}

type syncOutcome struct {
	version  uint64
	attempts int
	err      error
}

func (f *flight) lowestTarget() (uint64, bool) {
	var low uint64
	found := false
	for w := range f.waiters {
		if !found || w.target < low {
			low, found = w.target, true
		}
	}
	return low, found
}

func (f *flight) highestTarget() uint64 {
	var high uint64
	for w := range f.waiters {
		high = max(high, w.target)
	}
	return high
}

// satisfied returns the highest target that version meets.
func (f *flight) satisfied(version uint64) uint64 {
	var high uint64
	for w := range f.waiters {
		if w.target <= version {
			high = max(high, w.target)
		}
	}
	return high
}

// release hands version to every waiter whose target it meets.
func (f *flight) release(version uint64) {
	for w := range f.waiters {
		if w.target > version {
			continue
		}
		w.done <- syncOutcome{version: version, attempts: f.attempts}
		delete(f.waiters, w)
	}
}

type fetched struct {
	snap poller.Versioned
	raw  []byte
}

func (f fetched) Version() uint64 {
	if f.snap == nil {
		return 0
	}
	return f.snap.Version()
}

// SyncAfterBlock returns once the committed snapshot for the resource has
// processed targetBlock. A target already satisfied by the store returns
// without fetching. A target of zero always fetches once. Callers on the
// same market and resource share one poll loop but each is released as
// soon as its own target is committed.
func (s *SnapshotSyncService) SyncAfterBlock(ctx context.Context, marketID string, resource indexer.Resource, targetBlock uint64) (SyncResult, error) {
	marketID = strings.TrimSpace(marketID)
	result := SyncResult{MarketID: marketID, Resource: string(resource), TargetBlock: targetBlock}
	if s == nil || s.Source == nil || s.State == nil {
		return result, fmt.Errorf("snapshot sync not initialised")
	}
	if marketID == "" {
		return result, fmt.Errorf("market id required")
	}
	if _, err := indexer.ParseResource(string(resource)); err != nil {
		return result, err
	}

	market := s.State.Market(marketID)
	if targetBlock > 0 {
		if committed := market.VersionOf(resource); committed >= targetBlock {
			result.UpdateBlock = committed
			result.Cached = true
			return result, nil
		}
	}

	key := marketID + ":" + string(resource)
	f, w, joined := s.join(ctx, key, marketID, market, resource, targetBlock)
	result.Joined = joined

	select {
	case out := <-w.done:
		result.Attempts = out.attempts
		result.UpdateBlock = out.version
		return result, out.err
	case <-ctx.Done():
		s.leave(key, f, w)
		return result, ctx.Err()
	}
}

// SyncAfterTx waits for the transaction's receipt and then for the indexer
// to reach the block it was mined in.
func (s *SnapshotSyncService) SyncAfterTx(ctx context.Context, marketID string, resource indexer.Resource, txHash string) (SyncResult, error) {
	if s == nil || s.Receipts == nil {
		return SyncResult{MarketID: marketID, Resource: string(resource)}, fmt.Errorf("receipt waiter not configured")
	}
	hash, err := chain.ParseTxHash(txHash)
	if err != nil {
		return SyncResult{MarketID: marketID, Resource: string(resource)}, err
	}
	block, err := s.Receipts.WaitMined(ctx, hash)
	if err != nil {
		return SyncResult{MarketID: marketID, Resource: string(resource)}, fmt.Errorf("wait receipt: %w", err)
	}
	return s.SyncAfterBlock(ctx, marketID, resource, block)
}

func (s *SnapshotSyncService) Refresh(ctx context.Context, marketID string, resource indexer.Resource) (SyncResult, error) {
	return s.SyncAfterBlock(ctx, marketID, resource, 0)
}

// RefreshMarket refreshes every resource of a market concurrently.
func (s *SnapshotSyncService) RefreshMarket(ctx context.Context, marketID string) error {
	g, gctx := errgroup.WithContext(ctx)
	errs := make([]error, len(indexer.Resources()))
	for i, resource := range indexer.Resources() {
		g.Go(func() error {
			if _, err := s.Refresh(gctx, marketID, resource); err != nil {
				errs[i] = fmt.Errorf("%s: %w", resource, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *SnapshotSyncService) join(ctx context.Context, key, marketID string, market *state.Market, resource indexer.Resource, target uint64) (*flight, *waiter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == nil {
		s.inflight = map[string]*flight{}
	}
	w := &waiter{target: target, done: make(chan syncOutcome, 1)}
	if f, ok := s.inflight[key]; ok {
		f.waiters[w] = struct{}{}
		return f, w, true
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &flight{waiters: map[*waiter]struct{}{w: {}}, cancel: cancel}
	s.inflight[key] = f
	go s.run(loopCtx, key, f, marketID, market, resource)
	return f, w, false
}

// leave drops one waiter that stopped waiting. The last waiter out cancels
// the loop and removes it so later callers start fresh.
func (s *SnapshotSyncService) leave(key string, f *flight, w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := f.waiters[w]; !ok {
		return
	}
	delete(f.waiters, w)
	if len(f.waiters) > 0 {
		return
	}
	if s.inflight[key] == f {
		delete(s.inflight, key)
	}
	f.cancel()
}

// run polls until every waiter is satisfied. Each fetch that reaches the
// lowest pending target is committed and releases the waiters it
// satisfies; the loop continues for the higher targets that remain.
func (s *SnapshotSyncService) run(ctx context.Context, key string, f *flight, marketID string, market *state.Market, resource indexer.Resource) {
	defer f.cancel()
	s.Metrics.PollStarted(string(resource))
	defer s.Metrics.PollFinished(string(resource))

	opts := s.Poll
	opts.Name = "sync " + key
	if opts.Logger == nil {
		opts.Logger = s.Logger
	}
	// Timeout and MaxAttempts bound the whole flight, not each commit.
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		opts.Timeout = 0
	}
	opts.OnAttempt = func(a poller.Attempt) {
		s.mu.Lock()
		f.attempts++
		s.mu.Unlock()
		outcome := metrics.OutcomeStale
		switch {
		case a.Err != nil:
			outcome = metrics.OutcomeError
		case a.Fresh:
			outcome = metrics.OutcomeFresh
		}
		s.Metrics.ObserveAttempt(string(resource), outcome)
	}

	started := time.Now().UTC()
	isFresh := func(v fetched) bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		low, ok := f.lowestTarget()
		return ok && v.Version() >= low
	}
	commit := func(v fetched) error {
		s.commit(market, v)
		committed := market.VersionOf(resource)

		s.mu.Lock()
		target := f.satisfied(committed)
		attempts := f.attempts
		s.mu.Unlock()

		s.record(ctx, marketID, resource, target, attempts, started, v, nil)
		started = time.Now().UTC()

		s.mu.Lock()
		f.release(committed)
		// A flight with nobody left must not take new joiners.
		if len(f.waiters) == 0 && s.inflight[key] == f {
			delete(s.inflight, key)
		}
		s.mu.Unlock()
		return nil
	}
	fetch := func(ctx context.Context) (fetched, error) {
		return s.fetch(ctx, marketID, resource)
	}

	var err error
	for {
		if s.Poll.MaxAttempts > 0 {
			s.mu.Lock()
			left := s.Poll.MaxAttempts - f.attempts
			s.mu.Unlock()
			if left <= 0 {
				err = fmt.Errorf("%s: %w (%d)", opts.Name, poller.ErrMaxAttempts, s.Poll.MaxAttempts)
				break
			}
			opts.MaxAttempts = left
		}
		if _, err = poller.Until(ctx, fetch, isFresh, commit, opts); err != nil {
			break
		}
		s.mu.Lock()
		pending := len(f.waiters) > 0
		s.mu.Unlock()
		if !pending {
			return
		}
	}

	s.mu.Lock()
	if s.inflight[key] == f {
		delete(s.inflight, key)
	}
	target := f.highestTarget()
	attempts := f.attempts
	failed := make([]*waiter, 0, len(f.waiters))
	for w := range f.waiters {
		failed = append(failed, w)
		delete(f.waiters, w)
	}
	s.mu.Unlock()

	s.record(ctx, marketID, resource, target, attempts, started, fetched{}, err)
	for _, w := range failed {
		w.done <- syncOutcome{attempts: attempts, err: err}
	}
}

func (s *SnapshotSyncService) fetch(ctx context.Context, marketID string, resource indexer.Resource) (fetched, error) {
	switch resource {
	case indexer.ResourceAuctions:
		snap, raw, err := s.Source.GetAuctions(ctx, marketID)
		return fetched{snap: snap, raw: raw}, err
	case indexer.ResourceLendingTerms:
		snap, raw, err := s.Source.GetLendingTerms(ctx, marketID)
		return fetched{snap: snap, raw: raw}, err
	case indexer.ResourceLoans:
		snap, raw, err := s.Source.GetLoans(ctx, marketID)
		return fetched{snap: snap, raw: raw}, err
	case indexer.ResourceProposals:
		snap, raw, err := s.Source.GetProposals(ctx, marketID)
		return fetched{snap: snap, raw: raw}, err
	default:
		return fetched{}, poller.Permanent(fmt.Errorf("unsupported resource: %s", resource))
	}
}

func (s *SnapshotSyncService) commit(market *state.Market, v fetched) {
	var applied bool
	switch snap := v.snap.(type) {
	case *indexer.AuctionsSnapshot:
		applied = market.Auctions.Set(snap, snap.Version())
	case *indexer.LendingTermsSnapshot:
		applied = market.LendingTerms.Set(snap, snap.Version())
	case *indexer.LoansSnapshot:
		applied = market.Loans.Set(snap, snap.Version())
	case *indexer.ProposalsSnapshot:
		applied = market.Proposals.Set(snap, snap.Version())
	}
	if !applied && s.Logger != nil {
		s.Logger.Debug("snapshot older than committed, skipped",
			zap.String("market", market.ID),
			zap.Uint64("update_block", v.Version()),
		)
	}
}

// record persists bookkeeping for the poll. It runs after the loop, so it
// uses its own deadline rather than the possibly cancelled loop context.
func (s *SnapshotSyncService) record(ctx context.Context, marketID string, resource indexer.Resource, target uint64, attempts int, started time.Time, value fetched, pollErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	committed := s.State.Market(marketID).VersionOf(resource)
	stats, _ := json.Marshal(map[string]any{
		"took_ms":       now.Sub(started).Milliseconds(),
		"fetched_block": value.Version(),
	})
	row := &models.SyncState{
		Scope:         models.SyncScope(marketID, string(resource)),
		MarketID:      marketID,
		Resource:      string(resource),
		LastBlock:     committed,
		TargetBlock:   target,
		Attempts:      attempts,
		LastAttemptAt: &now,
		StatsJSON:     datatypes.JSON(stats),
	}

	if pollErr != nil {
		if s.Repo != nil {
			if prev, err := s.Repo.GetSyncState(ctx, row.Scope); err == nil && prev != nil {
				row.LastSuccessAt = prev.LastSuccessAt
			}
		}
		msg := pollErr.Error()
		row.LastError = &msg
		if s.Logger != nil && !errors.Is(pollErr, context.Canceled) {
			s.Logger.Warn("snapshot sync failed",
				zap.String("market", marketID),
				zap.String("resource", string(resource)),
				zap.Uint64("target_block", target),
				zap.Int("attempts", attempts),
				zap.Error(pollErr),
			)
		}
	} else {
		row.LastSuccessAt = &now
		s.Metrics.ObserveCommit(marketID, string(resource), committed)
		if s.Logger != nil {
			s.Logger.Info("snapshot committed",
				zap.String("market", marketID),
				zap.String("resource", string(resource)),
				zap.Uint64("update_block", value.Version()),
				zap.Uint64("target_block", target),
				zap.Int("attempts", attempts),
			)
		}
	}

	if s.Repo == nil {
		return
	}
	if err := s.Repo.SaveSyncState(ctx, row); err != nil && s.Logger != nil {
		s.Logger.Warn("save sync state failed", zap.String("scope", row.Scope), zap.Error(err))
	}
	if pollErr != nil || !s.PersistRaw || len(value.raw) == 0 {
		return
	}
	if err := s.Repo.InsertIndexerSnapshot(ctx, &models.IndexerSnapshot{
		MarketID:    marketID,
		Resource:    string(resource),
		UpdateBlock: value.Version(),
		FetchedAt:   now,
		Payload:     datatypes.JSON(value.raw),
	}); err != nil {
		if s.Logger != nil {
			s.Logger.Warn("store raw snapshot failed", zap.String("scope", row.Scope), zap.Error(err))
		}
		return
	}
	if _, err := s.Repo.PruneIndexerSnapshots(ctx, marketID, string(resource), s.KeepRaw); err != nil && s.Logger != nil {
		s.Logger.Warn("prune raw snapshots failed", zap.String("scope", row.Scope), zap.Error(err))
	}
}

// ListSyncStates returns the persisted poll bookkeeping for a market.
func (s *SnapshotSyncService) ListSyncStates(ctx context.Context, marketID string) ([]models.SyncState, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	return s.Repo.ListSyncStates(ctx, marketID)
}

// inflightTarget reports the highest pending target and the number of
// waiters on a running flight.
func (s *SnapshotSyncService) inflightTarget(key string) (uint64, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.inflight[key]
	if !ok {
		return 0, 0, false
	}
	return f.highestTarget(), len(f.waiters), true
}
