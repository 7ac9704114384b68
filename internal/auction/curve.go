package auction

import (
	"github.com/shopspring/decimal"
)

const (
	wadDecimals = 18
	msPerSecond = 1000
)

var one = decimal.NewFromInt(1)

// Bounds converts the auction's fixed-point amounts into the debt asked at
// the start (peg units) and the collateral offered at the end (token units).
func Bounds(a Auction, collateralDecimals int32) (maxDebt, maxCollateral decimal.Decimal) {
	multiplier := a.CallCreditMultiplier.Shift(-wadDecimals)
	maxDebt = multiplier.Mul(a.CallDebt).Shift(-wadDecimals)
	maxCollateral = a.CollateralAmount.Shift(-collateralDecimals)
	return maxDebt, maxCollateral
}

// At evaluates the two-phase schedule at t (unix ms). Phase one releases
// collateral linearly at a fixed debt ask, phase two decays the debt ask
// linearly with all collateral offered.
func At(t int64, startTime int64, house House, maxDebt, maxCollateral decimal.Decimal) Point {
	p := Point{Time: t}
	end := startTime + house.Duration*msPerSecond
	mid := startTime + house.MidPoint*msPerSecond

	switch {
	case t <= startTime:
		p.DebtAsked = maxDebt
		p.CollateralOffered = decimal.Zero
	case t >= end:
		p.DebtAsked = decimal.Zero
		p.CollateralOffered = maxCollateral
	case t <= mid && house.MidPoint > 0:
		progress := decimal.NewFromInt(t - startTime).Div(decimal.NewFromInt(house.MidPoint * msPerSecond))
		p.DebtAsked = maxDebt
		p.CollateralOffered = maxCollateral.Mul(progress)
	default:
		phase2 := house.Duration - house.MidPoint
		if phase2 <= 0 {
			p.DebtAsked = decimal.Zero
			p.CollateralOffered = maxCollateral
			break
		}
		progress := decimal.NewFromInt(t - mid).Div(decimal.NewFromInt(phase2 * msPerSecond))
		p.DebtAsked = maxDebt.Mul(one.Sub(progress))
		p.CollateralOffered = maxCollateral
	}
	return p
}

// Sample returns samples+1 evenly spaced points covering the auction
// window padded on both sides by paddingRatio of its duration.
func Sample(startTime int64, house House, maxDebt, maxCollateral decimal.Decimal, opts Options) []Point {
	opts = opts.normalize()
	durationMs := house.Duration * msPerSecond
	pad := int64(float64(durationMs) * opts.PaddingRatio)
	from := startTime - pad
	span := durationMs + 2*pad

	points := make([]Point, 0, opts.Samples+1)
	for i := 0; i <= opts.Samples; i++ {
		t := from + span*int64(i)/int64(opts.Samples)
		points = append(points, At(t, startTime, house, maxDebt, maxCollateral))
	}
	return points
}

// CrossingPoint finds where the auction's exchange rate meets the market
// rate. It returns nil when either side has no positive value.
func CrossingPoint(startTime int64, house House, maxDebt, maxCollateral decimal.Decimal, prices MarketPrices) *Crossing {
	collateralValue := maxCollateral.Mul(prices.CollateralPrice)
	debtValue := maxDebt.Mul(prices.PegPrice)
	if collateralValue.Sign() <= 0 || debtValue.Sign() <= 0 {
		return nil
	}

	c := &Crossing{}
	if collateralValue.GreaterThan(debtValue) {
		r := debtValue.Div(collateralValue)
		offset := r.Mul(decimal.NewFromInt(house.MidPoint * msPerSecond))
		c.Phase = 1
		c.Ratio = r
		c.Time = startTime + offset.Round(0).IntPart()
	} else {
		r := collateralValue.Div(debtValue)
		phase2 := decimal.NewFromInt((house.Duration - house.MidPoint) * msPerSecond)
		offset := one.Sub(r).Mul(phase2)
		c.Phase = 2
		c.Ratio = r
		c.Time = startTime + house.MidPoint*msPerSecond + offset.Round(0).IntPart()
	}
	c.MarkerDebt = c.Ratio.Mul(maxDebt)

	// Without a phase one the curve opens at full collateral, so a
	// breakeven before phase two sits at the first instant of phase two.
	if c.Phase == 1 && house.MidPoint <= 0 {
		c.Phase = 2
		c.Point = Point{Time: c.Time, DebtAsked: maxDebt, CollateralOffered: maxCollateral}
		return c
	}

	// Curve values come from the exact ratio, not the ms-rounded time.
	at := At(c.Time, startTime, house, maxDebt, maxCollateral)
	if c.Phase == 1 {
		at.DebtAsked = maxDebt
		at.CollateralOffered = maxCollateral.Mul(c.Ratio)
	} else {
		at.DebtAsked = maxDebt.Mul(c.Ratio)
		at.CollateralOffered = maxCollateral
	}
	c.Point = at
	return c
}

// Build assembles the chart data for one auction. The boolean is false
// when the inputs cannot be rendered; prices may be nil, in which case no
// crossing is computed.
func Build(a *Auction, house *House, collateralDecimals int32, prices *MarketPrices, opts Options) (*Curve, bool) {
	if a == nil || house == nil || !house.Valid() {
		return nil, false
	}
	if a.CollateralAmount.Sign() < 0 || a.CallDebt.Sign() < 0 || a.CallCreditMultiplier.Sign() < 0 {
		return nil, false
	}
	maxDebt, maxCollateral := Bounds(*a, collateralDecimals)

	curve := &Curve{
		MaxDebt:       maxDebt,
		MaxCollateral: maxCollateral,
		Points:        Sample(a.StartTime, *house, maxDebt, maxCollateral, opts),
	}
	if prices != nil {
		curve.Crossing = CrossingPoint(a.StartTime, *house, maxDebt, maxCollateral, *prices)
	}
	if a.HasBid() {
		bid := At(a.EndTime, a.StartTime, *house, maxDebt, maxCollateral)
		curve.Bid = &bid
	}
	return curve, true
}
