package bookmath

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func bids() []types.PriceLevel {
	return []types.PriceLevel{
		{Price: dec("40100"), Size: dec("0.5")},
		{Price: dec("40050"), Size: dec("0.5")},
	}
}

// S1: clean profit scenario — full consumption of both levels.
func TestProceedsForSizeExactLevels(t *testing.T) {
	t.Parallel()

	fill := ProceedsForSize(bids(), dec("1.0"))
	if fill.DepthLimited {
		t.Error("should not be depth-limited when x exactly matches total depth")
	}
	want := dec("40100").Mul(dec("0.5")).Add(dec("40050").Mul(dec("0.5")))
	if !fill.Quote.Equal(want) {
		t.Errorf("proceeds = %v, want %v", fill.Quote, want)
	}
}

// S2: depth-limited scenario.
func TestProceedsForSizeDepthLimited(t *testing.T) {
	t.Parallel()

	levels := []types.PriceLevel{{Price: dec("40100"), Size: dec("0.3")}}
	fill := ProceedsForSize(levels, dec("10"))
	if !fill.DepthLimited {
		t.Error("expected depth-limited when x exceeds total depth")
	}
	if !fill.AvailableBase.Equal(dec("0.3")) {
		t.Errorf("available base = %v, want 0.3", fill.AvailableBase)
	}
	want := dec("40100").Mul(dec("0.3"))
	if !fill.Quote.Equal(want) {
		t.Errorf("proceeds = %v, want %v", fill.Quote, want)
	}
}

// Partial-level consumption: interpolate within the last partially-consumed level.
func TestProceedsForSizePartialLevel(t *testing.T) {
	t.Parallel()

	fill := ProceedsForSize(bids(), dec("0.25"))
	if fill.DepthLimited {
		t.Error("should not be depth-limited; 0.25 < total depth")
	}
	want := dec("40100").Mul(dec("0.25"))
	if !fill.Quote.Equal(want) {
		t.Errorf("proceeds = %v, want %v", fill.Quote, want)
	}
}

// Invariant 6: VWAP computed by C3 satisfies min_price <= vwap <= max_price
// over the consumed levels.
func TestVWAPWithinBounds(t *testing.T) {
	t.Parallel()

	fill := ProceedsForSize(bids(), dec("1.0"))
	vwap, ok := fill.VWAP()
	if !ok {
		t.Fatal("expected a VWAP for a non-empty fill")
	}
	if vwap.LessThan(dec("40050")) || vwap.GreaterThan(dec("40100")) {
		t.Errorf("vwap = %v, want within [40050, 40100]", vwap)
	}
}

func TestVWAPEmptyFill(t *testing.T) {
	t.Parallel()

	fill := Fill{}
	if _, ok := fill.VWAP(); ok {
		t.Error("VWAP should return ok=false for a fill with zero available base")
	}
}

// Invariant 7 (round-trip): given a synthesized book and a size x consuming
// exactly the top k levels, proceeds_for_size(x) = sum(size_i * price_i) exactly.
func TestRoundTripExactSum(t *testing.T) {
	t.Parallel()

	levels := []types.PriceLevel{
		{Price: dec("100.00000001"), Size: dec("1.23456789")},
		{Price: dec("99.99999999"), Size: dec("0.00000001")},
		{Price: dec("99.5"), Size: dec("5")},
	}

	x := decimal.Zero
	want := decimal.Zero
	for _, lvl := range levels {
		x = x.Add(lvl.Size)
		want = want.Add(lvl.Size.Mul(lvl.Price))
	}

	fill := ProceedsForSize(levels, x)
	if fill.DepthLimited {
		t.Fatal("should not be depth-limited when x equals total depth exactly")
	}
	if !fill.Quote.Equal(want) {
		t.Errorf("proceeds = %v, want exact sum %v", fill.Quote, want)
	}
}

func TestCumulativeCurveMonotonic(t *testing.T) {
	t.Parallel()

	curve := CumulativeCurve(bids())
	if len(curve) != 2 {
		t.Fatalf("len(curve) = %d, want 2", len(curve))
	}
	if !curve[1].CumBase.GreaterThan(curve[0].CumBase) {
		t.Error("cumulative base should strictly increase across levels")
	}
	if !curve[1].CumQuote.GreaterThan(curve[0].CumQuote) {
		t.Error("cumulative quote should strictly increase across levels")
	}
}

func TestCostForSizeAsks(t *testing.T) {
	t.Parallel()

	asks := []types.PriceLevel{{Price: dec("40000"), Size: dec("1")}}
	fill := CostForSize(asks, dec("1"))
	if !fill.Quote.Equal(dec("40000")) {
		t.Errorf("cost = %v, want 40000", fill.Quote)
	}
}
