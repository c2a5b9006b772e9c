// Package coordinator implements the paired-execution coordinator (C6): the
// main tick loop that reads books, asks the evaluator for a plan, drives the
// buy leg then the sell leg through the order state machine, and invokes
// the Recovery Planner whenever a leg doesn't resolve to a clean, fully
// hedged fill. Structured like the teacher's engine.Engine main loop —
// context-cancelled, one ticking loop driving the whole lifecycle.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arbtrader/mexc-bingx-arb/internal/evaluator"
	"github.com/arbtrader/mexc-bingx-arb/internal/exchange"
	"github.com/arbtrader/mexc-bingx-arb/internal/guard"
	"github.com/arbtrader/mexc-bingx-arb/internal/legfsm"
	"github.com/arbtrader/mexc-bingx-arb/internal/marketdata"
	"github.com/arbtrader/mexc-bingx-arb/internal/store"
	"github.com/arbtrader/mexc-bingx-arb/internal/telemetry"
	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

// Params tunes the main loop and Recovery Planner (§4.6 / §6).
type Params struct {
	Symbol                   string
	RecheckInterval          time.Duration
	PreExecPriceTolerancePct decimal.Decimal
	EmergencyDiscountPct     decimal.Decimal
	MaxRecoveryRetries       int
	Evaluator                evaluator.Params
	Leg                      legfsm.Params
	OrderBookDepth           int
}

// Coordinator drives one symbol's buy/sell pair end to end.
type Coordinator struct {
	params Params

	mexc  exchange.Adapter
	bingx exchange.Adapter

	md    *marketdata.Service
	store *store.Store
	guard *guard.Guard

	logger *slog.Logger
}

// New wires a coordinator for one symbol.
func New(params Params, mexcAdapter, bingxAdapter exchange.Adapter, md *marketdata.Service, st *store.Store, g *guard.Guard, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		params: params,
		mexc:   mexcAdapter,
		bingx:  bingxAdapter,
		md:     md,
		store:  st,
		guard:  g,
		logger: logger.With("component", "coordinator", "symbol", params.Symbol),
	}
}

// Run ticks every params.RecheckInterval until ctx is cancelled. Shutdown is
// cooperative: the in-flight cycle (if any) is driven to completion before
// Run returns — no leg is ever abandoned mid-flight.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.params.RecheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			// The cycle runs on a context detached from ctx's cancellation so a
			// shutdown signal cannot cut a leg's polling short.
			c.tick(context.WithoutCancel(ctx))
		}
	}
}

// tick executes step 1 of §4.6: read books, invoke the evaluator, and start
// a cycle if a profitable plan exists. It never blocks the next tick on a
// rejected plan.
func (c *Coordinator) tick(ctx context.Context) {
	if c.guard.IsStuck() {
		return
	}

	plan, ok := c.evaluateOnce()
	if !ok {
		return
	}

	c.runCycle(ctx, plan)
}

func (c *Coordinator) evaluateOnce() (types.TradePlan, bool) {
	buySnap, ok := c.md.Snapshot(c.mexc.Name())
	if !ok {
		return types.TradePlan{}, false
	}
	sellSnap, ok := c.md.Snapshot(c.bingx.Name())
	if !ok {
		return types.TradePlan{}, false
	}

	balance, err := c.mexc.QuoteBalance(context.Background(), quoteAsset(c.params.Symbol))
	if err != nil {
		c.logger.Warn("failed to read mexc balance", "error", err)
		return types.TradePlan{}, false
	}

	increment := c.mexc.BaseSizeIncrement(c.params.Symbol)
	return evaluator.Evaluate(buySnap, sellSnap, balance, increment, c.params.Evaluator)
}

// runCycle drives one full cycle: pre-execution gate, buy leg, sell leg,
// and records the outcome.
func (c *Coordinator) runCycle(ctx context.Context, plan types.TradePlan) {
	rec := types.ExecutionRecord{
		ID:             uuid.NewString(),
		Symbol:         plan.Symbol,
		CycleStartedAt: time.Now(),
	}

	// Step 2: pre-execution gate.
	freshPlan, gateOK := c.preExecutionGate(plan)
	if !gateOK {
		c.logger.Info("pre-execution gate rejected plan", "planned_ask", plan.BuyLimitPrice)
		return
	}
	plan = freshPlan

	c.logger.Info("executing cycle",
		"base_amount", plan.BaseAmount,
		"buy_limit", plan.BuyLimitPrice,
		"expected_profit", humanize.Commaf(plan.ExpectedProfit.InexactFloat64()),
	)

	// Step 3-4: drive buy leg.
	buyOrderID, err := c.mexc.PlaceLimit(ctx, plan.Symbol, types.Buy, plan.BaseAmount, plan.BuyLimitPrice)
	if err != nil {
		c.logger.Warn("buy leg placement rejected", "error", err)
		rec.BuyLeg = types.LegResult{Venue: c.mexc.Name(), State: types.Rejected, TerminalAt: time.Now()}
		rec.CycleEndedAt = time.Now()
		c.finishCycle(rec)
		return
	}

	buyResult := legfsm.Drive(ctx, c.logger, c.mexc, plan.Symbol, buyOrderID, c.params.Leg)
	rec.BuyLeg = legResult(c.mexc.Name(), buyOrderID, buyResult)

	switch {
	case buyResult.State == types.Unknown:
		c.recoverUnknownBuy(ctx, plan, &rec)
	case buyResult.FilledBase.IsZero():
		// terminal with zero fill: cycle ends, no position held.
	default:
		c.driveSellLeg(ctx, plan, buyResult.FilledBase, &rec)
	}

	rec.CycleEndedAt = time.Now()
	c.finishCycle(rec)
}

// preExecutionGate re-reads both books and re-invokes the evaluator; the
// gate passes iff the refreshed plan is still profitable and the new best
// MEXC ask is within PreExecPriceTolerancePct of the original plan's buy
// price (§4.6 step 2).
func (c *Coordinator) preExecutionGate(original types.TradePlan) (types.TradePlan, bool) {
	fresh, ok := c.evaluateOnce()
	if !ok {
		return types.TradePlan{}, false
	}

	tolerance := c.params.PreExecPriceTolerancePct
	deviation := fresh.BuyLimitPrice.Sub(original.BuyLimitPrice).Abs().
		Mul(decimal.NewFromInt(100)).Div(original.BuyLimitPrice)
	if deviation.GreaterThan(tolerance) {
		return types.TradePlan{}, false
	}
	return fresh, true
}

// driveSellLeg drives the sell leg (§4.6 step 5) using the realized filled
// base from the buy leg, never the originally planned amount.
func (c *Coordinator) driveSellLeg(ctx context.Context, plan types.TradePlan, baseAmount decimal.Decimal, rec *types.ExecutionRecord) {
	sellOrderID, err := c.bingx.PlaceMarket(ctx, plan.Symbol, types.Sell, baseAmount)
	if err != nil {
		c.recoverSellRejected(ctx, plan.Symbol, baseAmount, rec, fmt.Sprintf("sell placement rejected: %v", err))
		return
	}

	sellResult := legfsm.Drive(ctx, c.logger, c.bingx, plan.Symbol, sellOrderID, c.params.Leg)
	rec.SellLeg = legResult(c.bingx.Name(), sellOrderID, sellResult)

	switch {
	case sellResult.State == types.Unknown:
		c.recoverSellRejected(ctx, plan.Symbol, baseAmount.Sub(sellResult.FilledBase), rec, "sell leg unknown after poll timeout")
	case sellResult.FilledBase.LessThan(baseAmount):
		c.recoverSellRejected(ctx, plan.Symbol, baseAmount.Sub(sellResult.FilledBase), rec, "sell leg partially filled")
	default:
		rec.RealizedProfit = sellResult.FilledQuote.Sub(rec.BuyLeg.FilledQuote)
	}
}

// recoverUnknownBuy handles a buy leg left in Unknown: a later reconciling
// query either finds it Filled (proceed to sell normally) or zero-filled
// (cycle ends). Since legfsm.Drive already exhausted the query/cancel
// protocol, reconciliation here is a single best-effort query.
func (c *Coordinator) recoverUnknownBuy(ctx context.Context, plan types.TradePlan, rec *types.ExecutionRecord) {
	telemetry.CoordinatorRecoveryTotal.WithLabelValues("buy_unknown").Inc()

	status, err := c.mexc.Query(ctx, plan.Symbol, rec.BuyLeg.OrderID)
	if err != nil {
		c.logger.Error("buy leg remains unreconciled", "error", err)
		rec.RecoveryActions = append(rec.RecoveryActions, "buy leg unreconciled after Unknown, marking stuck")
		c.markStuck(plan.Symbol, "buy leg unreconciled", rec)
		return
	}

	rec.BuyLeg.State = status.State
	rec.BuyLeg.FilledBase = status.FilledBase
	rec.BuyLeg.FilledQuote = status.FilledQuote
	rec.BuyLeg.AvgPrice = status.AvgPrice

	if status.FilledBase.IsZero() {
		rec.RecoveryActions = append(rec.RecoveryActions, "buy leg reconciled to zero fill, cycle ends")
		return
	}

	rec.RecoveryActions = append(rec.RecoveryActions, "buy leg reconciled to a fill, proceeding to sell leg")
	c.driveSellLeg(ctx, plan, status.FilledBase, rec)
}

// recoverSellRejected implements the Recovery Planner's sell-side branch:
// retry a market sell on BingX for the unsold remainder; if the venue keeps
// rejecting, fall back to an emergency sell priced at the current best bid
// discounted by EmergencyDiscountPct; if that still fails, mark the
// position stuck so no further trading occurs until an operator clears it.
func (c *Coordinator) recoverSellRejected(ctx context.Context, symbol string, remaining decimal.Decimal, rec *types.ExecutionRecord, reason string) {
	telemetry.CoordinatorRecoveryTotal.WithLabelValues("sell_rejected").Inc()
	c.logger.Warn("invoking recovery planner", "reason", reason, "remaining_base", remaining)
	rec.RecoveryActions = append(rec.RecoveryActions, reason)

	if remaining.LessThanOrEqual(decimal.Zero) {
		return
	}

	for attempt := 0; attempt < c.params.MaxRecoveryRetries; attempt++ {
		orderID, err := c.bingx.PlaceMarket(ctx, symbol, types.Sell, remaining)
		if err != nil {
			rec.RecoveryActions = append(rec.RecoveryActions, fmt.Sprintf("retry market sell attempt %d rejected: %v", attempt+1, err))
			continue
		}

		result := legfsm.Drive(ctx, c.logger, c.bingx, symbol, orderID, c.params.Leg)
		remaining = remaining.Sub(result.FilledBase)
		mergeSellFill(&rec.SellLeg, result)
		if remaining.LessThanOrEqual(decimal.Zero) {
			return
		}
	}

	if !c.emergencySell(ctx, symbol, remaining, rec) {
		c.markStuck(symbol, "sell leg could not be unwound after recovery retries and emergency sell", rec)
	}
}

// emergencySell places a limit order at the current best bid discounted by
// EmergencyDiscountPct, aggressive enough to fill immediately against the
// book, and reports whether it fully unwound remaining.
func (c *Coordinator) emergencySell(ctx context.Context, symbol string, remaining decimal.Decimal, rec *types.ExecutionRecord) bool {
	snap, ok := c.md.Snapshot(c.bingx.Name())
	if !ok {
		rec.RecoveryActions = append(rec.RecoveryActions, "emergency sell skipped: no sell-venue snapshot available")
		return false
	}
	bestBid, ok := snap.BestBid()
	if !ok {
		rec.RecoveryActions = append(rec.RecoveryActions, "emergency sell skipped: sell-venue book has no bids")
		return false
	}

	discount := decimal.NewFromInt(1).Sub(c.params.EmergencyDiscountPct.Div(decimal.NewFromInt(100)))
	emergencyPrice := bestBid.Price.Mul(discount)

	orderID, err := c.bingx.PlaceLimit(ctx, symbol, types.Sell, remaining, emergencyPrice)
	if err != nil {
		rec.RecoveryActions = append(rec.RecoveryActions, fmt.Sprintf("emergency sell rejected: %v", err))
		return false
	}

	result := legfsm.Drive(ctx, c.logger, c.bingx, symbol, orderID, c.params.Leg)
	mergeSellFill(&rec.SellLeg, result)
	rec.RecoveryActions = append(rec.RecoveryActions, fmt.Sprintf("emergency sell at %s filled %s", emergencyPrice, result.FilledBase))

	return result.FilledBase.GreaterThanOrEqual(remaining)
}

func (c *Coordinator) markStuck(symbol, reason string, rec *types.ExecutionRecord) {
	rec.Stuck = true
	c.guard.MarkStuck(symbol, reason)
	telemetry.CoordinatorStuckTotal.Inc()

	_, _, _, since := c.guard.Status()
	if err := c.store.SaveStuckMarker(store.StuckMarker{Symbol: symbol, Reason: reason, Since: since}); err != nil {
		c.logger.Error("failed to persist stuck marker", "error", err)
	}
}

func (c *Coordinator) finishCycle(rec types.ExecutionRecord) {
	if rec.ID == "" {
		return
	}
	if err := c.store.AppendExecutionRecord(rec); err != nil {
		c.logger.Error("failed to persist execution record", "error", err)
	}
}

func legResult(venue types.Venue, orderID string, r legfsm.Result) types.LegResult {
	return types.LegResult{
		Venue:       venue,
		OrderID:     orderID,
		State:       r.State,
		FilledBase:  r.FilledBase,
		FilledQuote: r.FilledQuote,
		AvgPrice:    r.AvgPrice,
		TerminalAt:  time.Now(),
	}
}

// mergeSellFill accumulates a retry/emergency fill into the record's
// cumulative sell leg result.
func mergeSellFill(dst *types.LegResult, r legfsm.Result) {
	dst.FilledBase = dst.FilledBase.Add(r.FilledBase)
	dst.FilledQuote = dst.FilledQuote.Add(r.FilledQuote)
	dst.State = r.State
	dst.TerminalAt = time.Now()
}

// quoteAsset splits the canonical "BASE-QUOTE" symbol form and returns the
// quote leg, e.g. "USDC" for "BTC-USDC".
func quoteAsset(symbol string) string {
	for i := len(symbol) - 1; i >= 0; i-- {
		if symbol[i] == '-' {
			return symbol[i+1:]
		}
	}
	return symbol
}
