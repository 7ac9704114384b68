package auction

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func approx(t *testing.T, got, want decimal.Decimal, label string) {
	t.Helper()
	if got.Sub(want).Abs().GreaterThan(dec("0.000001")) {
		t.Fatalf("%s=%s want=%s", label, got.String(), want.String())
	}
}

var exampleHouse = House{Address: "0xhouse", Duration: 3600, MidPoint: 1800}

func TestAt_PhaseExamples(t *testing.T) {
	maxDebt := decimal.NewFromInt(100)
	maxCollateral := decimal.NewFromInt(10)

	p := At(900*1000, 0, exampleHouse, maxDebt, maxCollateral)
	approx(t, p.DebtAsked, maxDebt, "phase1 debt")
	approx(t, p.CollateralOffered, decimal.NewFromInt(5), "phase1 collateral")

	p = At(2700*1000, 0, exampleHouse, maxDebt, maxCollateral)
	approx(t, p.DebtAsked, decimal.NewFromInt(50), "phase2 debt")
	approx(t, p.CollateralOffered, maxCollateral, "phase2 collateral")
}

func TestAt_Clamps(t *testing.T) {
	maxDebt := decimal.NewFromInt(100)
	maxCollateral := decimal.NewFromInt(10)
	for _, ts := range []int64{-1_000_000, -1, 0} {
		p := At(ts, 0, exampleHouse, maxDebt, maxCollateral)
		if !p.CollateralOffered.IsZero() || !p.DebtAsked.Equal(maxDebt) {
			t.Fatalf("t=%d before start: %+v", ts, p)
		}
	}
	for _, ts := range []int64{3600 * 1000, 3600*1000 + 1, 10_000_000} {
		p := At(ts, 0, exampleHouse, maxDebt, maxCollateral)
		if !p.DebtAsked.IsZero() || !p.CollateralOffered.Equal(maxCollateral) {
			t.Fatalf("t=%d after end: %+v", ts, p)
		}
	}
}

func TestAt_ContinuityAtBoundaries(t *testing.T) {
	maxDebt := decimal.NewFromInt(100)
	maxCollateral := decimal.NewFromInt(10)
	start := int64(1_700_000_000_000)
	tol := dec("0.01")
	for _, boundary := range []int64{start, start + exampleHouse.MidPoint*1000, start + exampleHouse.Duration*1000} {
		before := At(boundary-1, start, exampleHouse, maxDebt, maxCollateral)
		at := At(boundary, start, exampleHouse, maxDebt, maxCollateral)
		after := At(boundary+1, start, exampleHouse, maxDebt, maxCollateral)
		for _, pair := range [][2]Point{{before, at}, {at, after}} {
			if pair[0].DebtAsked.Sub(pair[1].DebtAsked).Abs().GreaterThan(tol) {
				t.Fatalf("debt jump at %d: %s -> %s", boundary, pair[0].DebtAsked, pair[1].DebtAsked)
			}
			if pair[0].CollateralOffered.Sub(pair[1].CollateralOffered).Abs().GreaterThan(tol) {
				t.Fatalf("collateral jump at %d: %s -> %s", boundary, pair[0].CollateralOffered, pair[1].CollateralOffered)
			}
		}
	}
}

func TestSample_Monotonic(t *testing.T) {
	maxDebt := decimal.NewFromInt(100)
	maxCollateral := decimal.NewFromInt(10)
	points := Sample(0, exampleHouse, maxDebt, maxCollateral, Options{})
	if len(points) != DefaultSamples+1 {
		t.Fatalf("points=%d want=%d", len(points), DefaultSamples+1)
	}
	if points[0].Time != -720*1000 || points[len(points)-1].Time != 4320*1000 {
		t.Fatalf("window=[%d,%d]", points[0].Time, points[len(points)-1].Time)
	}
	mid := exampleHouse.MidPoint * 1000
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		if cur.CollateralOffered.LessThan(prev.CollateralOffered) {
			t.Fatalf("collateral decreased at %d", cur.Time)
		}
		if cur.DebtAsked.GreaterThan(prev.DebtAsked) {
			t.Fatalf("debt increased at %d", cur.Time)
		}
		if cur.Time > 0 && cur.Time <= mid && !cur.DebtAsked.Equal(maxDebt) {
			t.Fatalf("debt not constant in phase 1 at %d", cur.Time)
		}
		if cur.Time > mid && !cur.CollateralOffered.Equal(maxCollateral) {
			t.Fatalf("collateral not constant in phase 2 at %d", cur.Time)
		}
	}
}

func TestAt_ZeroMidPoint(t *testing.T) {
	house := House{Duration: 100, MidPoint: 0}
	maxDebt := decimal.NewFromInt(100)
	maxCollateral := decimal.NewFromInt(10)
	p := At(1, 0, house, maxDebt, maxCollateral)
	if !p.CollateralOffered.Equal(maxCollateral) {
		t.Fatalf("first tick after start should be phase 2, got %+v", p)
	}
	approx(t, At(50*1000, 0, house, maxDebt, maxCollateral).DebtAsked, decimal.NewFromInt(50), "debt")
}

func TestAt_MidPointEqualsDuration(t *testing.T) {
	house := House{Duration: 100, MidPoint: 100}
	maxDebt := decimal.NewFromInt(100)
	maxCollateral := decimal.NewFromInt(10)
	p := At(99_999, 0, house, maxDebt, maxCollateral)
	if !p.DebtAsked.Equal(maxDebt) {
		t.Fatalf("phase 2 should never run, got %+v", p)
	}
	p = At(100_000, 0, house, maxDebt, maxCollateral)
	if !p.DebtAsked.IsZero() {
		t.Fatalf("end clamp expected, got %+v", p)
	}
}

func TestBounds_FixedPoint(t *testing.T) {
	a := Auction{
		CallDebt:             dec("100000000000000000000"),
		CallCreditMultiplier: dec("500000000000000000"),
		CollateralAmount:     dec("2500000"),
	}
	maxDebt, maxCollateral := Bounds(a, 6)
	approx(t, maxDebt, decimal.NewFromInt(50), "maxDebt")
	approx(t, maxCollateral, dec("2.5"), "maxCollateral")
}

func TestCrossingPoint_Phase1(t *testing.T) {
	maxDebt := decimal.NewFromInt(100)
	maxCollateral := decimal.NewFromInt(10)
	// collateral worth 200, debt worth 100 -> r = 0.5
	prices := MarketPrices{CollateralPrice: decimal.NewFromInt(20), PegPrice: decimal.NewFromInt(1)}
	c := CrossingPoint(0, exampleHouse, maxDebt, maxCollateral, prices)
	if c == nil {
		t.Fatalf("expected crossing")
	}
	if c.Phase != 1 || c.Time != 900*1000 {
		t.Fatalf("phase=%d time=%d", c.Phase, c.Time)
	}
	approx(t, c.MarkerDebt, decimal.NewFromInt(50), "marker")
	approx(t, c.DebtAsked.Mul(prices.PegPrice), c.CollateralOffered.Mul(prices.CollateralPrice), "value balance")
}

func TestCrossingPoint_Phase2(t *testing.T) {
	maxDebt := decimal.NewFromInt(100)
	maxCollateral := decimal.NewFromInt(10)
	// collateral worth 25, debt worth 100 -> r = 0.25
	prices := MarketPrices{CollateralPrice: dec("2.5"), PegPrice: decimal.NewFromInt(1)}
	c := CrossingPoint(0, exampleHouse, maxDebt, maxCollateral, prices)
	if c == nil {
		t.Fatalf("expected crossing")
	}
	wantTime := int64(1800*1000 + 1350*1000)
	if c.Phase != 2 || c.Time != wantTime {
		t.Fatalf("phase=%d time=%d want=%d", c.Phase, c.Time, wantTime)
	}
	approx(t, c.DebtAsked, decimal.NewFromInt(25), "debt")
	approx(t, c.MarkerDebt, decimal.NewFromInt(25), "marker")
	if c.Time < 0 || c.Time > exampleHouse.Duration*1000 {
		t.Fatalf("crossing outside auction window: %d", c.Time)
	}
	approx(t, c.DebtAsked.Mul(prices.PegPrice), c.CollateralOffered.Mul(prices.CollateralPrice), "value balance")
}

func TestCrossingPoint_ZeroMidPointStaysOnCurve(t *testing.T) {
	house := House{Duration: 3600, MidPoint: 0}
	maxDebt := decimal.NewFromInt(100)
	maxCollateral := decimal.NewFromInt(10)
	prices := MarketPrices{CollateralPrice: decimal.NewFromInt(20), PegPrice: decimal.NewFromInt(1)}
	c := CrossingPoint(1000, house, maxDebt, maxCollateral, prices)
	if c == nil {
		t.Fatalf("expected crossing")
	}
	if c.Phase != 2 || c.Time != 1000 {
		t.Fatalf("phase=%d time=%d", c.Phase, c.Time)
	}
	approx(t, c.MarkerDebt, decimal.NewFromInt(50), "marker")
	approx(t, c.CollateralOffered, maxCollateral, "collateral")
	approx(t, c.DebtAsked, maxDebt, "debt")
	next := At(1001, 1000, house, maxDebt, maxCollateral)
	approx(t, next.CollateralOffered, c.CollateralOffered, "collateral after start")
}

func TestCrossingPoint_Undefined(t *testing.T) {
	maxDebt := decimal.NewFromInt(100)
	maxCollateral := decimal.NewFromInt(10)
	cases := []MarketPrices{
		{},
		{CollateralPrice: decimal.NewFromInt(1)},
		{PegPrice: decimal.NewFromInt(1)},
	}
	for i, prices := range cases {
		if c := CrossingPoint(0, exampleHouse, maxDebt, maxCollateral, prices); c != nil {
			t.Fatalf("case %d: expected nil crossing, got %+v", i, c)
		}
	}
	if c := CrossingPoint(0, exampleHouse, decimal.Zero, decimal.Zero, MarketPrices{CollateralPrice: one, PegPrice: one}); c != nil {
		t.Fatalf("zero amounts should have no crossing")
	}
}

func TestBuild_NotRenderable(t *testing.T) {
	a := &Auction{StartTime: 0, CallDebt: decimal.NewFromInt(1), CallCreditMultiplier: decimal.NewFromInt(1)}
	if _, ok := Build(nil, &exampleHouse, 18, nil, Options{}); ok {
		t.Fatalf("nil auction should not render")
	}
	if _, ok := Build(a, nil, 18, nil, Options{}); ok {
		t.Fatalf("nil house should not render")
	}
	if _, ok := Build(a, &House{Duration: 10, MidPoint: 20}, 18, nil, Options{}); ok {
		t.Fatalf("midpoint beyond duration should not render")
	}
}

func TestBuild_WithCrossingAndBid(t *testing.T) {
	a := &Auction{
		StartTime:            1_000_000,
		EndTime:              1_000_000 + 2700*1000,
		CallDebt:             dec("100000000000000000000"),
		CallCreditMultiplier: dec("1000000000000000000"),
		CollateralAmount:     dec("10000000000000000000"),
		Status:               StatusClosed,
	}
	prices := &MarketPrices{CollateralPrice: decimal.NewFromInt(20), PegPrice: decimal.NewFromInt(1)}
	curve, ok := Build(a, &exampleHouse, 18, prices, Options{Samples: 10, PaddingRatio: 0.2})
	if !ok {
		t.Fatalf("expected renderable curve")
	}
	if len(curve.Points) != 11 {
		t.Fatalf("points=%d want=11", len(curve.Points))
	}
	if curve.Crossing == nil || curve.Crossing.Phase != 1 {
		t.Fatalf("crossing=%+v", curve.Crossing)
	}
	if curve.Bid == nil {
		t.Fatalf("expected bid marker")
	}
	approx(t, curve.Bid.DebtAsked, decimal.NewFromInt(50), "bid debt")
}
