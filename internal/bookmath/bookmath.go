// Package bookmath implements the book-aggregation primitive (C3): pure,
// side-effect-free functions over one side of an order book. Nothing here
// performs I/O or holds state; every function is a straight decimal
// computation over a caller-supplied ladder.
package bookmath

import (
	"github.com/shopspring/decimal"

	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

// CumulativePoint is one step of a cumulative curve: the running totals
// after consuming the first i+1 levels of a ladder.
type CumulativePoint struct {
	CumBase  decimal.Decimal
	CumQuote decimal.Decimal
	Price    decimal.Decimal // the level's own price, for VWAP bounds checks
}

// CumulativeCurve derives the running (cum_base, cum_quote) curve from one
// side of a book, walking best to worst.
func CumulativeCurve(levels []types.PriceLevel) []CumulativePoint {
	curve := make([]CumulativePoint, 0, len(levels))
	cumBase := decimal.Zero
	cumQuote := decimal.Zero
	for _, lvl := range levels {
		cumBase = cumBase.Add(lvl.Size)
		cumQuote = cumQuote.Add(lvl.Size.Mul(lvl.Price))
		curve = append(curve, CumulativePoint{CumBase: cumBase, CumQuote: cumQuote, Price: lvl.Price})
	}
	return curve
}

// Fill is the result of consuming a ladder for a target size x.
type Fill struct {
	AvailableBase decimal.Decimal // how much base could actually be filled
	Quote         decimal.Decimal // quote paid (cost_for_size) or received (proceeds_for_size)
	DepthLimited  bool            // true when x exceeds the ladder's total depth
}

// ProceedsForSize walks bids best-to-worst and returns the quote proceeds
// from selling x base units into them (§4.3).
func ProceedsForSize(bids []types.PriceLevel, x decimal.Decimal) Fill {
	return consume(bids, x)
}

// CostForSize walks asks best-to-worst and returns the quote cost of
// buying x base units from them (§4.3).
func CostForSize(asks []types.PriceLevel, x decimal.Decimal) Fill {
	return consume(asks, x)
}

// consume implements the shared walk-and-interpolate algorithm: find the
// level k where cum_base[k-1] < x <= cum_base[k], take the partial fill
// delta = x - cum_base[k-1] at level k's price, and return
// cum_quote[k-1] + delta*price. If x exceeds total depth, return the full
// depth consumed and flag depth-limited.
func consume(levels []types.PriceLevel, x decimal.Decimal) Fill {
	prevCumBase := decimal.Zero
	prevCumQuote := decimal.Zero

	for _, lvl := range levels {
		cumBase := prevCumBase.Add(lvl.Size)
		cumQuote := prevCumQuote.Add(lvl.Size.Mul(lvl.Price))

		if x.LessThanOrEqual(cumBase) {
			delta := x.Sub(prevCumBase)
			quote := prevCumQuote.Add(delta.Mul(lvl.Price))
			return Fill{AvailableBase: x, Quote: quote, DepthLimited: false}
		}

		prevCumBase = cumBase
		prevCumQuote = cumQuote
	}

	return Fill{AvailableBase: prevCumBase, Quote: prevCumQuote, DepthLimited: true}
}

// VWAP returns the volume-weighted average price for a Fill, or false if
// no base was available.
func (f Fill) VWAP() (decimal.Decimal, bool) {
	if f.AvailableBase.IsZero() {
		return decimal.Zero, false
	}
	return f.Quote.Div(f.AvailableBase), true
}
