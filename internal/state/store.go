// Package state is the shared, typed view of every market's latest indexer
// snapshots and price quotes. Pollers commit into it; readers and stream
// subscribers observe it.
package state

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"creditguild/internal/auction"
	"creditguild/internal/client/indexer"
	"creditguild/internal/client/prices"
)

const ResourcePrices = "prices"

type Event struct {
	Market   string    `json:"market"`
	Resource string    `json:"resource"`
	Version  uint64    `json:"version"`
	At       time.Time `json:"at"`
}

type Market struct {
	ID           string
	Auctions     *Slot[*indexer.AuctionsSnapshot]
	LendingTerms *Slot[*indexer.LendingTermsSnapshot]
	Loans        *Slot[*indexer.LoansSnapshot]
	Proposals    *Slot[*indexer.ProposalsSnapshot]
	Prices       *Slot[map[string]prices.Quote]
}

// VersionOf returns the committed block for an indexer resource.
func (m *Market) VersionOf(resource indexer.Resource) uint64 {
	switch resource {
	case indexer.ResourceAuctions:
		return m.Auctions.Version()
	case indexer.ResourceLendingTerms:
		return m.LendingTerms.Version()
	case indexer.ResourceLoans:
		return m.Loans.Version()
	case indexer.ResourceProposals:
		return m.Proposals.Version()
	default:
		return 0
	}
}

// Quote looks up a price by token address.
func (m *Market) Quote(address string) (prices.Quote, bool) {
	quotes, _, ok := m.Prices.Get()
	if !ok {
		return prices.Quote{}, false
	}
	q, ok := quotes[auction.NormalizeAddress(address)]
	return q, ok
}

type Store struct {
	mu      sync.RWMutex
	markets map[string]*Market

	subMu   sync.RWMutex
	subs    map[int]chan Event
	nextSub int

	dropped uint64
	OnDrop  func(Event)
}

func NewStore() *Store {
	return &Store{
		markets: map[string]*Market{},
		subs:    map[int]chan Event{},
	}
}

// Market returns the market's slots, creating them on first use.
func (s *Store) Market(id string) *Market {
	s.mu.RLock()
	m, ok := s.markets[id]
	s.mu.RUnlock()
	if ok {
		return m
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.markets[id]; ok {
		return m
	}
	m = &Market{
		ID:           id,
		Auctions:     newSlot[*indexer.AuctionsSnapshot](s.notifier(id, string(indexer.ResourceAuctions))),
		LendingTerms: newSlot[*indexer.LendingTermsSnapshot](s.notifier(id, string(indexer.ResourceLendingTerms))),
		Loans:        newSlot[*indexer.LoansSnapshot](s.notifier(id, string(indexer.ResourceLoans))),
		Proposals:    newSlot[*indexer.ProposalsSnapshot](s.notifier(id, string(indexer.ResourceProposals))),
		Prices:       newSlot[map[string]prices.Quote](s.notifier(id, ResourcePrices)),
	}
	s.markets[id] = m
	return m
}

func (s *Store) MarketIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.markets))
	for id := range s.markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Subscribe returns a channel of commit events and a cancel func that
// closes it. Delivery never blocks a commit: a full channel drops the event.
func (s *Store) Subscribe(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

func (s *Store) notifier(market, resource string) func(uint64) {
	return func(version uint64) {
		s.publish(Event{Market: market, Resource: resource, Version: version, At: time.Now().UTC()})
	}
}

func (s *Store) publish(ev Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			atomic.AddUint64(&s.dropped, 1)
			if s.OnDrop != nil {
				s.OnDrop(ev)
			}
		}
	}
}
