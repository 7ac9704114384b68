package service

import (
	"context"
	"errors"
	"fmt"

	"creditguild/internal/auction"
	"creditguild/internal/config"
	"creditguild/internal/metrics"
	"creditguild/internal/state"
)

var (
	ErrNotRenderable   = errors.New("auction curve not renderable")
	ErrAuctionNotFound = errors.New("auction not found")
)

type HouseResolver interface {
	Get(ctx context.Context, address string) (auction.House, error)
}

type CurveView struct {
	Auction auction.Auction       `json:"auction"`
	House   auction.House         `json:"house"`
	Prices  *auction.MarketPrices `json:"prices,omitempty"`
	Curve   *auction.Curve        `json:"curve"`
}

// CurveService assembles an auction's pricing curve from the committed
// state and the auction house parameters.
type CurveService struct {
	State   *state.Store
	Houses  HouseResolver
	Markets map[string]config.MarketConfig
	Options auction.Options
	Metrics *metrics.SyncMetrics
}

// Curve renders one auction. samples overrides the configured sample count
// when positive.
func (s *CurveService) Curve(ctx context.Context, marketID, auctionID string, samples int) (*CurveView, error) {
	view, err := s.curve(ctx, marketID, auctionID, samples)
	if s != nil {
		s.Metrics.ObserveCurve(err == nil)
	}
	return view, err
}

func (s *CurveService) curve(ctx context.Context, marketID, auctionID string, samples int) (*CurveView, error) {
	if s == nil || s.State == nil || s.Houses == nil {
		return nil, fmt.Errorf("curve service not initialised")
	}
	market := s.State.Market(marketID)
	snap, _, ok := market.Auctions.Get()
	if !ok {
		return nil, fmt.Errorf("%w: auctions not loaded for market %s", ErrNotRenderable, marketID)
	}
	a, ok := snap.Find(auctionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAuctionNotFound, auctionID)
	}

	house, err := s.Houses.Get(ctx, a.AuctionHouseAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRenderable, err)
	}

	decimals, ok := collateralDecimals(market, a)
	if !ok {
		return nil, fmt.Errorf("%w: collateral decimals unknown for %s", ErrNotRenderable, a.CollateralTokenAddress)
	}

	var prices *auction.MarketPrices
	collQuote, collOK := market.Quote(a.CollateralTokenAddress)
	pegQuote, pegOK := market.Quote(s.Markets[marketID].PegTokenAddress)
	if collOK && pegOK {
		prices = &auction.MarketPrices{CollateralPrice: collQuote.Price, PegPrice: pegQuote.Price}
	}

	opts := s.Options
	if samples > 0 {
		opts.Samples = samples
	}
	curve, ok := auction.Build(&a, &house, decimals, prices, opts)
	if !ok {
		return nil, fmt.Errorf("%w: auction %s", ErrNotRenderable, auctionID)
	}
	return &CurveView{Auction: a, House: house, Prices: prices, Curve: curve}, nil
}

// collateralDecimals prefers the lending term's token metadata and falls
// back to the price feed. Zero is a valid token precision.
func collateralDecimals(market *state.Market, a auction.Auction) (int32, bool) {
	if terms, _, ok := market.LendingTerms.Get(); ok && terms != nil {
		if term, found := terms.Find(a.LendingTermAddress); found && term.Collateral.Decimals >= 0 {
			return term.Collateral.Decimals, true
		}
	}
	if q, ok := market.Quote(a.CollateralTokenAddress); ok && q.Decimals >= 0 {
		return q.Decimals, true
	}
	return 0, false
}
