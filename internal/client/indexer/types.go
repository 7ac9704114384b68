package indexer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"creditguild/internal/auction"
)

type Resource string

const (
	ResourceAuctions     Resource = "auctions"
	ResourceLendingTerms Resource = "lendingterms"
	ResourceLoans        Resource = "loans"
	ResourceProposals    Resource = "proposals"
)

func Resources() []Resource {
	return []Resource{ResourceAuctions, ResourceLendingTerms, ResourceLoans, ResourceProposals}
}

func ParseResource(value string) (Resource, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "auctions":
		return ResourceAuctions, nil
	case "lendingterms", "lending-terms", "lending_terms", "terms":
		return ResourceLendingTerms, nil
	case "loans":
		return ResourceLoans, nil
	case "proposals":
		return ResourceProposals, nil
	default:
		return "", fmt.Errorf("unsupported resource: %s", value)
	}
}

type AuctionRow struct {
	LoanID                 string          `json:"loanId"`
	AuctionHouseAddress    string          `json:"auctionHouseAddress"`
	LendingTermAddress     string          `json:"lendingTermAddress"`
	CollateralTokenAddress string          `json:"collateralTokenAddress"`
	StartTime              int64           `json:"startTime"`
	EndTime                int64           `json:"endTime"`
	CollateralAmount       decimal.Decimal `json:"collateralAmount"`
	CallDebt               decimal.Decimal `json:"callDebt"`
	CallCreditMultiplier   decimal.Decimal `json:"callCreditMultiplier"`
	CollateralSold         decimal.Decimal `json:"collateralSold"`
	DebtRecovered          decimal.Decimal `json:"debtRecovered"`
	BidTxHash              string          `json:"bidTxHash"`
	Status                 string          `json:"status"`
}

func (r AuctionRow) ToAuction() auction.Auction {
	status := auction.StatusActive
	if strings.EqualFold(strings.TrimSpace(r.Status), string(auction.StatusClosed)) {
		status = auction.StatusClosed
	}
	return auction.Auction{
		LoanID:                 r.LoanID,
		AuctionHouseAddress:    auction.NormalizeAddress(r.AuctionHouseAddress),
		LendingTermAddress:     auction.NormalizeAddress(r.LendingTermAddress),
		CollateralTokenAddress: auction.NormalizeAddress(r.CollateralTokenAddress),
		StartTime:              r.StartTime,
		EndTime:                r.EndTime,
		CollateralAmount:       r.CollateralAmount,
		CallDebt:               r.CallDebt,
		CallCreditMultiplier:   r.CallCreditMultiplier,
		CollateralSold:         r.CollateralSold,
		DebtRecovered:          r.DebtRecovered,
		BidTxHash:              r.BidTxHash,
		Status:                 status,
	}
}

type AuctionsSnapshot struct {
	Updated     int64        `json:"updated"`
	UpdateBlock uint64       `json:"updateBlock"`
	Auctions    []AuctionRow `json:"auctions"`
}

func (s *AuctionsSnapshot) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.UpdateBlock
}

// Find returns the auction for a loan id.
func (s *AuctionsSnapshot) Find(loanID string) (auction.Auction, bool) {
	if s == nil {
		return auction.Auction{}, false
	}
	for _, row := range s.Auctions {
		if strings.EqualFold(row.LoanID, loanID) {
			return row.ToAuction(), true
		}
	}
	return auction.Auction{}, false
}

type CollateralToken struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

type LendingTerm struct {
	Address                   string          `json:"address"`
	Label                     string          `json:"label"`
	Collateral                CollateralToken `json:"collateral"`
	InterestRate              decimal.Decimal `json:"interestRate"`
	BorrowRatio               decimal.Decimal `json:"borrowRatio"`
	MaxDebtPerCollateralToken decimal.Decimal `json:"maxDebtPerCollateralToken"`
	HardCap                   decimal.Decimal `json:"hardCap"`
	AuctionHouseAddress       string          `json:"auctionHouseAddress"`
	Status                    string          `json:"status"`
}

type LendingTermsSnapshot struct {
	Updated     int64         `json:"updated"`
	UpdateBlock uint64        `json:"updateBlock"`
	Terms       []LendingTerm `json:"terms"`
}

func (s *LendingTermsSnapshot) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.UpdateBlock
}

func (s *LendingTermsSnapshot) Find(address string) (LendingTerm, bool) {
	if s == nil {
		return LendingTerm{}, false
	}
	addr := auction.NormalizeAddress(address)
	for _, term := range s.Terms {
		if auction.NormalizeAddress(term.Address) == addr {
			return term, true
		}
	}
	return LendingTerm{}, false
}

type Loan struct {
	ID                 string          `json:"id"`
	LendingTermAddress string          `json:"lendingTermAddress"`
	Borrower           string          `json:"borrowerAddress"`
	CollateralAmount   decimal.Decimal `json:"collateralAmount"`
	BorrowAmount       decimal.Decimal `json:"borrowAmount"`
	CallDebt           decimal.Decimal `json:"callDebt"`
	Status             string          `json:"status"`
	OriginationTime    int64           `json:"originationTime"`
	CallTime           int64           `json:"callTime"`
	CloseTime          int64           `json:"closeTime"`
}

type LoansSnapshot struct {
	Updated     int64  `json:"updated"`
	UpdateBlock uint64 `json:"updateBlock"`
	Loans       []Loan `json:"loans"`
}

func (s *LoansSnapshot) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.UpdateBlock
}

type Proposal struct {
	ProposalID   string          `json:"proposalId"`
	TermAddress  string          `json:"termAddress"`
	Proposer     string          `json:"proposer"`
	Status       string          `json:"status"`
	CreatedBlock uint64          `json:"createdBlock"`
	VotesFor     decimal.Decimal `json:"votesFor"`
	VotesAgainst decimal.Decimal `json:"votesAgainst"`
	Quorum       decimal.Decimal `json:"quorum"`
}

type ProposalsSnapshot struct {
	Updated     int64      `json:"updated"`
	UpdateBlock uint64     `json:"updateBlock"`
	Proposals   []Proposal `json:"proposals"`
}

func (s *ProposalsSnapshot) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.UpdateBlock
}
