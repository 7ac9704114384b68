package indexer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"creditguild/internal/auction"
	"creditguild/internal/poller"
)

func TestClient_GetAuctions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/1/auctions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"updated": 1700000000000,
			"updateBlock": 19000123,
			"auctions": [{
				"loanId": "0xLOAN",
				"auctionHouseAddress": "0xHOUSE",
				"collateralTokenAddress": "0xTOKEN",
				"startTime": 1700000000000,
				"endTime": 0,
				"collateralAmount": "2500000",
				"callDebt": "100000000000000000000",
				"callCreditMultiplier": 1000000000000000000,
				"status": "active"
			}]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL+"/", nil)
	snap, raw, err := client.GetAuctions(context.Background(), "1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("raw body missing")
	}
	if snap.Version() != 19000123 {
		t.Fatalf("version=%d", snap.Version())
	}
	a, ok := snap.Find("0xloan")
	if !ok {
		t.Fatalf("auction not found")
	}
	if a.AuctionHouseAddress != "0xhouse" || a.CollateralTokenAddress != "0xtoken" {
		t.Fatalf("addresses not normalized: %+v", a)
	}
	if !a.CallDebt.Equal(decimal.RequireFromString("100000000000000000000")) {
		t.Fatalf("callDebt=%s", a.CallDebt)
	}
	if !a.CallCreditMultiplier.Equal(decimal.RequireFromString("1000000000000000000")) {
		t.Fatalf("multiplier=%s", a.CallCreditMultiplier)
	}
	if a.Status != auction.StatusActive || a.HasBid() {
		t.Fatalf("status=%s hasBid=%v", a.Status, a.HasBid())
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	defer server.Close()
	client := NewClient(server.Client(), server.URL, nil)

	_, _, err := client.GetLoans(context.Background(), "1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("err=%v", err)
	}
	if !poller.IsPermanent(err) {
		t.Fatalf("404 should be permanent")
	}

	for _, code := range []int{http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusBadGateway} {
		status.Store(int32(code))
		_, _, err = client.GetProposals(context.Background(), "1")
		if err == nil || poller.IsPermanent(err) {
			t.Fatalf("status %d should be transient, err=%v", code, err)
		}
	}
}

func TestClient_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()
	client := NewClient(server.Client(), server.URL, nil)
	if _, _, err := client.GetLendingTerms(context.Background(), "1"); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := client.GetRaw(context.Background(), " ", ResourceLoans); err == nil {
		t.Fatalf("expected market id error")
	}
}

func TestParseResource(t *testing.T) {
	tests := []struct {
		in   string
		want Resource
	}{
		{"auctions", ResourceAuctions},
		{"Lending-Terms", ResourceLendingTerms},
		{"lendingterms", ResourceLendingTerms},
		{"loans", ResourceLoans},
		{" proposals ", ResourceProposals},
	}
	for _, tt := range tests {
		got, err := ParseResource(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("ParseResource(%q) = %q, %v", tt.in, got, err)
		}
	}
	if _, err := ParseResource("votes"); err == nil {
		t.Fatalf("expected error")
	}
}
