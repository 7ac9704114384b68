package auction

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Auction mirrors a liquidation auction as reported by the indexer.
// Amounts stay in their on-chain fixed-point form.
type Auction struct {
	LoanID                 string          `json:"loan_id"`
	AuctionHouseAddress    string          `json:"auction_house_address"`
	LendingTermAddress     string          `json:"lending_term_address"`
	CollateralTokenAddress string          `json:"collateral_token_address"`
	StartTime              int64           `json:"start_time"`
	EndTime                int64           `json:"end_time,omitempty"`
	CollateralAmount       decimal.Decimal `json:"collateral_amount"`
	CallDebt               decimal.Decimal `json:"call_debt"`
	CallCreditMultiplier   decimal.Decimal `json:"call_credit_multiplier"`
	CollateralSold         decimal.Decimal `json:"collateral_sold"`
	DebtRecovered          decimal.Decimal `json:"debt_recovered"`
	BidTxHash              string          `json:"bid_tx_hash,omitempty"`
	Status                 Status          `json:"status"`
}

// HasBid reports whether a bid or forgive settled the auction.
func (a Auction) HasBid() bool {
	return a.EndTime > 0
}

// House holds the immutable pricing parameters of an AuctionHouse contract.
// Duration and MidPoint are seconds.
type House struct {
	Address  string `json:"address"`
	Duration int64  `json:"duration"`
	MidPoint int64  `json:"mid_point"`
}

func (h House) Valid() bool {
	return h.Duration > 0 && h.MidPoint >= 0 && h.MidPoint <= h.Duration
}

// MarketPrices are USD spot prices for one unit of each side.
type MarketPrices struct {
	CollateralPrice decimal.Decimal `json:"collateral_price"`
	PegPrice        decimal.Decimal `json:"peg_price"`
}

type Point struct {
	Time              int64           `json:"time"`
	DebtAsked         decimal.Decimal `json:"debt_asked"`
	CollateralOffered decimal.Decimal `json:"collateral_offered"`
}

// Crossing is the breakeven point against market prices. MarkerDebt is
// the y value the dashboard annotates the chart with; DebtAsked and
// CollateralOffered are the curve itself at Time.
type Crossing struct {
	Point
	Phase      int             `json:"phase"`
	Ratio      decimal.Decimal `json:"ratio"`
	MarkerDebt decimal.Decimal `json:"marker_debt"`
}

type Curve struct {
	MaxDebt       decimal.Decimal `json:"max_debt"`
	MaxCollateral decimal.Decimal `json:"max_collateral"`
	Points        []Point         `json:"points"`
	Crossing      *Crossing       `json:"crossing,omitempty"`
	Bid           *Point          `json:"bid,omitempty"`
}

// Options tune sampling. Zero values take the defaults; a negative
// PaddingRatio samples the bare auction window.
type Options struct {
	Samples      int
	PaddingRatio float64
}

const (
	DefaultSamples      = 200
	DefaultPaddingRatio = 0.2
)

func (o Options) normalize() Options {
	if o.Samples <= 0 {
		o.Samples = DefaultSamples
	}
	switch {
	case o.PaddingRatio == 0:
		o.PaddingRatio = DefaultPaddingRatio
	case o.PaddingRatio < 0:
		o.PaddingRatio = 0
	}
	return o
}

func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
