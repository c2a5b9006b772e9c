// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the arbitrage engine — price
// ladder levels, order-book snapshots, trade plans, leg state, and execution
// records. It has no dependencies on internal packages, so it can be
// imported by any layer. All monetary and size quantities use
// shopspring/decimal rather than float64: the engine trades real money and
// floating point cannot be allowed to round a profit check the wrong way.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is the direction of an order: BUY or SELL.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Venue identifies one of the two exchanges the engine trades against.
type Venue string

const (
	MEXC  Venue = "MEXC"
	BingX Venue = "BINGX"
)

// LegState is the state variable of one order (§4.5). Transitions are
// monotonic except PartiallyFilled -> PartiallyFilled (filled size grows)
// and any non-terminal state -> Unknown (query failure exceeding threshold).
type LegState string

const (
	Idle            LegState = "IDLE"
	Submitted       LegState = "SUBMITTED"
	PartiallyFilled LegState = "PARTIALLY_FILLED"
	Filled          LegState = "FILLED"
	Cancelled       LegState = "CANCELLED"
	Rejected        LegState = "REJECTED"
	Unknown         LegState = "UNKNOWN"
)

// IsTerminal reports whether a leg in this state can no longer change state
// (other than the Unknown -> terminal reconciliation path driven by the
// caller once a delayed query succeeds).
func (s LegState) IsTerminal() bool {
	switch s {
	case Filled, Cancelled, Rejected:
		return true
	default:
		return false
	}
}

// ————————————————————————————————————————————————————————————————————————
// Price ladder
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level in an order book. Both fields are
// non-negative, finite decimals — size in base-asset units (BTC), price in
// quote-asset units per base unit (USDC per BTC).
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBookSnapshot is a point-in-time view of one venue's book for one
// symbol. Bids are sorted strictly descending by price, Asks strictly
// ascending. UpdateID is venue-supplied and monotonically non-decreasing;
// CapturedAt is the local receipt timestamp.
type OrderBookSnapshot struct {
	Symbol     string // canonical BASE-QUOTE form, e.g. "BTC-USDC"
	Venue      Venue
	Bids       []PriceLevel
	Asks       []PriceLevel
	UpdateID   uint64
	CapturedAt time.Time
}

// BestBid returns the top bid level and whether one exists.
func (s OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the top ask level and whether one exists.
func (s OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// IsCrossed reports whether best bid >= best ask — a book invariant
// violation that must be rejected rather than applied (§3, §7, §8 S8).
func (s OrderBookSnapshot) IsCrossed() bool {
	bid, bidOK := s.BestBid()
	ask, askOK := s.BestAsk()
	if !bidOK || !askOK {
		return false
	}
	return bid.Price.GreaterThanOrEqual(ask.Price)
}

// ————————————————————————————————————————————————————————————————————————
// Trade plan
// ————————————————————————————————————————————————————————————————————————

// TradePlan is produced by the opportunity evaluator (C4) and consumed by
// the paired-execution coordinator (C6). It lives only within one
// evaluation-to-execution cycle and is never mutated after creation.
type TradePlan struct {
	Symbol           string
	BaseAmount       decimal.Decimal // x: base-asset size to trade
	BuyLimitPrice    decimal.Decimal // ask1 on the buy venue
	ExpectedSellVWAP decimal.Decimal // VWAP achieved selling BaseAmount into sell-venue bids
	QuoteCost        decimal.Decimal // x * BuyLimitPrice
	QuoteProceeds    decimal.Decimal // proceeds_for_size(x) on sell-venue bids
	ExpectedProfit   decimal.Decimal // QuoteProceeds - QuoteCost
	ProfitBps        decimal.Decimal // 10000 * ExpectedProfit / QuoteCost
	SlippageBps      decimal.Decimal // 10000 * (ExpectedSellVWAP - BuyLimitPrice) / BuyLimitPrice
	BuyBookUpdateID  uint64
	SellBookUpdateID uint64
	ComputedAt       time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Execution record
// ————————————————————————————————————————————————————————————————————————

// LegResult captures the outcome of driving one leg's order state machine
// to a terminal (or Unknown) state.
type LegResult struct {
	Venue       Venue
	OrderID     string
	State       LegState
	FilledBase  decimal.Decimal
	FilledQuote decimal.Decimal
	AvgPrice    decimal.Decimal
	SubmittedAt time.Time
	TerminalAt  time.Time
}

// ExecutionRecord is the terminal, append-only record of one arbitrage
// cycle. Once emitted by the coordinator it is never mutated (§3).
type ExecutionRecord struct {
	ID              string // uuid
	Symbol          string
	CycleStartedAt  time.Time
	CycleEndedAt    time.Time
	BuyLeg          LegResult
	SellLeg         LegResult
	RealizedProfit  decimal.Decimal
	RecoveryActions []string // human-readable description of any recovery steps taken
	Stuck           bool
}
