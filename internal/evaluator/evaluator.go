// Package evaluator implements the opportunity evaluator (C4): given a
// buy-side snapshot, a sell-side snapshot, and an available quote balance,
// decide whether a profitable arbitrage cycle exists and, if so, size it.
// Every computation is Decimal-exact; no floating point appears anywhere
// in the profit or slippage math (§9 design note).
package evaluator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbtrader/mexc-bingx-arb/internal/bookmath"
	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

// bps is the basis-point scale factor (10000 = 100%).
var bps = decimal.NewFromInt(10000)

// Params are the tunable thresholds §4.4 reads from configuration.
type Params struct {
	MinProfitQuote  decimal.Decimal
	MinProfitPct    decimal.Decimal // e.g. 0.1 for 0.1%
	MaxBasePerTrade decimal.Decimal
	MaxSlippageBps  decimal.Decimal
}

// Evaluate runs the nine-step algorithm of §4.4 and either returns a
// TradePlan or ok=false if no profitable plan exists.
func Evaluate(buySnap, sellSnap types.OrderBookSnapshot, balance decimal.Decimal, baseSizeIncrement decimal.Decimal, params Params) (types.TradePlan, bool) {
	// Step 1: best MEXC (buy-venue) ask.
	ask1Level, ok := buySnap.BestAsk()
	if !ok {
		return types.TradePlan{}, false
	}
	ask1 := ask1Level.Price

	// Step 2: BingX (sell-venue) bid cumulative curve.
	curve := bookmath.CumulativeCurve(sellSnap.Bids)
	availableBaseOnSell := decimal.Zero
	if len(curve) > 0 {
		availableBaseOnSell = curve[len(curve)-1].CumBase
	}

	// Step 3: candidate base amount.
	x := decimal.Zero
	if !ask1.IsZero() {
		x = balance.Div(ask1)
	}
	x = minDecimal(x, params.MaxBasePerTrade, availableBaseOnSell)
	if x.LessThanOrEqual(decimal.Zero) {
		return types.TradePlan{}, false
	}

	// Tie-break: round x down to the venue's base-size increment when the
	// balance constraint binds (or generally, to keep every emitted plan
	// executable at the venue's granularity).
	if baseSizeIncrement.IsPositive() {
		x = roundDownToIncrement(x, baseSizeIncrement)
	}
	if x.LessThanOrEqual(decimal.Zero) {
		return types.TradePlan{}, false
	}

	// Step 4: quote cost at the single best-ask limit.
	quoteCost := x.Mul(ask1)
	if quoteCost.IsZero() {
		return types.TradePlan{}, false
	}

	// Step 5: quote proceeds selling x into BingX bids.
	fill := bookmath.ProceedsForSize(sellSnap.Bids, x)
	quoteProceeds := fill.Quote

	// Step 6: expected profit and profit_bps.
	expectedProfit := quoteProceeds.Sub(quoteCost)
	profitBps := expectedProfit.Mul(bps).Div(quoteCost)

	// Step 7: profitability gate.
	minProfitBps := params.MinProfitPct.Mul(decimal.NewFromInt(100))
	if expectedProfit.LessThan(params.MinProfitQuote) || profitBps.LessThan(minProfitBps) {
		return types.TradePlan{}, false
	}

	// Step 8: slippage gate.
	sellVWAP, hasVWAP := fill.VWAP()
	if !hasVWAP {
		return types.TradePlan{}, false
	}
	slippageBps := sellVWAP.Sub(ask1).Mul(bps).Div(ask1)
	if slippageBps.LessThan(decimal.Zero) {
		return types.TradePlan{}, false
	}
	if slippageBps.GreaterThan(params.MaxSlippageBps) {
		return types.TradePlan{}, false
	}

	// Step 9: emit the plan, tagging both source books' update_ids.
	return types.TradePlan{
		Symbol:           buySnap.Symbol,
		BaseAmount:       x,
		BuyLimitPrice:    ask1,
		ExpectedSellVWAP: sellVWAP,
		QuoteCost:        quoteCost,
		QuoteProceeds:    quoteProceeds,
		ExpectedProfit:   expectedProfit,
		ProfitBps:        profitBps,
		SlippageBps:      slippageBps,
		BuyBookUpdateID:  buySnap.UpdateID,
		SellBookUpdateID: sellSnap.UpdateID,
		ComputedAt:       time.Now(),
	}, true
}

func minDecimal(values ...decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	min := values[0]
	for _, v := range values[1:] {
		if v.LessThan(min) {
			min = v
		}
	}
	return min
}

// roundDownToIncrement truncates x to the nearest multiple of increment at
// or below x.
func roundDownToIncrement(x, increment decimal.Decimal) decimal.Decimal {
	if increment.IsZero() {
		return x
	}
	units := x.Div(increment).Floor()
	return units.Mul(increment)
}
