package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"creditguild/internal/auction"
	"creditguild/internal/client/prices"
	"creditguild/internal/config"
	"creditguild/internal/state"
)

type QuoteSource interface {
	GetQuotes(ctx context.Context, chain string, addresses []string) (map[string]prices.Quote, error)
}

// PriceFeedService keeps each market's collateral and peg token quotes
// current in the state store.
type PriceFeedService struct {
	Source  QuoteSource
	State   *state.Store
	Markets map[string]config.MarketConfig
	Logger  *zap.Logger
}

// Refresh fetches quotes for the peg token and every collateral token seen
// in the market's lending terms and auctions and returns the committed
// quotes. Each refresh commits at the next slot version.
func (s *PriceFeedService) Refresh(ctx context.Context, marketID string) (map[string]prices.Quote, error) {
	if s == nil || s.Source == nil || s.State == nil {
		return nil, fmt.Errorf("price feed not initialised")
	}
	mc, ok := s.Markets[marketID]
	if !ok {
		return nil, fmt.Errorf("unknown market: %s", marketID)
	}
	chain := strings.TrimSpace(mc.PriceChain)
	if chain == "" {
		return nil, fmt.Errorf("market %s: price chain not configured", marketID)
	}

	market := s.State.Market(marketID)
	addresses := TrackedTokens(market, mc.PegTokenAddress)
	if len(addresses) == 0 {
		return map[string]prices.Quote{}, nil
	}

	quotes, err := s.Source.GetQuotes(ctx, chain, addresses)
	if err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}

	merged := map[string]prices.Quote{}
	version := market.Prices.Update(func(current map[string]prices.Quote, _ bool) map[string]prices.Quote {
		merged = mergeQuotes(current, quotes, addresses)
		return merged
	})
	if s.Logger != nil {
		s.Logger.Debug("quotes refreshed",
			zap.String("market", marketID),
			zap.Int("requested", len(addresses)),
			zap.Int("received", len(quotes)),
			zap.Uint64("version", version),
		)
	}
	return merged, nil
}

// mergeQuotes keeps, per tracked address, whichever of the committed and
// fetched quotes is newer. Addresses no longer tracked are dropped.
func mergeQuotes(current, fetched map[string]prices.Quote, tracked []string) map[string]prices.Quote {
	out := make(map[string]prices.Quote, len(tracked))
	for _, addr := range tracked {
		q, ok := fetched[addr]
		if prev, had := current[addr]; had && (!ok || prev.Timestamp > q.Timestamp) {
			q, ok = prev, true
		}
		if ok {
			out[addr] = q
		}
	}
	return out
}

// TrackedTokens lists the token addresses a market needs prices for,
// normalized and sorted.
func TrackedTokens(market *state.Market, pegToken string) []string {
	seen := map[string]struct{}{}
	add := func(addr string) {
		addr = auction.NormalizeAddress(addr)
		if addr == "" {
			return
		}
		seen[addr] = struct{}{}
	}
	add(pegToken)
	if market != nil {
		if terms, _, ok := market.LendingTerms.Get(); ok && terms != nil {
			for _, term := range terms.Terms {
				add(term.Collateral.Address)
			}
		}
		if auctions, _, ok := market.Auctions.Get(); ok && auctions != nil {
			for _, row := range auctions.Auctions {
				add(row.CollateralTokenAddress)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for addr := range seen {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
