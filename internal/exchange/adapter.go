// Package exchange defines the venue-agnostic adapter contract (C1) and the
// ambient plumbing shared by every concrete venue implementation: rate
// limiting, HMAC request signing, and reconnect/backoff for streaming
// connections. Concrete adapters live in the mexc and bingx subpackages.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

// Rejected is returned by place_limit/place_market when the venue declines
// the order outright (invalid size, invalid price, insufficient balance).
// It is terminal for the affected leg.
type Rejected struct {
	Reason string
}

func (e *Rejected) Error() string { return fmt.Sprintf("order rejected: %s", e.Reason) }

// TransportError wraps any timeout, disconnect, or decode failure. It is
// never fatal on its own; callers retry with backoff per §7.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// InvariantViolation signals a request that would violate a venue-declared
// constraint (minimum size, tick size) and was rejected before submission.
type InvariantViolation struct {
	Constraint string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Constraint)
}

// AlreadyTerminal is returned by cancel when the order has already reached
// a terminal state (filled, cancelled, or rejected).
var AlreadyTerminal = errors.New("order already in a terminal state")

// NotFound is returned by cancel/query when the venue has no record of the order.
var NotFound = errors.New("order not found")

// OrderStatus is the result of a query() call: the venue's current view of
// one order.
type OrderStatus struct {
	State         types.LegState
	FilledBase    decimal.Decimal
	FilledQuote   decimal.Decimal
	AvgPrice      decimal.Decimal
}

// Adapter is the capability set the core requires from one venue (§4.1).
// The coordinator (C6) and order state machine (C5) depend only on this
// interface; they never special-case a venue by name.
type Adapter interface {
	// Name identifies the venue for logging and metrics labels.
	Name() types.Venue

	// SubscribeOrderBook starts a restartable stream of order-book snapshots
	// for symbol at the given depth. The returned channel is closed when ctx
	// is cancelled. Decode and transport errors are logged internally and
	// never close the channel; the stream reconnects on its own.
	SubscribeOrderBook(ctx context.Context, symbol string, depth int) (<-chan types.OrderBookSnapshot, error)

	// FetchOrderBook issues a one-shot REST request for symbol's book — the
	// staleness fallback path (§4.2).
	FetchOrderBook(ctx context.Context, symbol string, depth int) (types.OrderBookSnapshot, error)

	// PlaceLimit submits a limit order and returns the venue order ID.
	PlaceLimit(ctx context.Context, symbol string, side types.Side, baseAmount, limitPrice decimal.Decimal) (string, error)

	// PlaceMarket submits a market order and returns the venue order ID.
	PlaceMarket(ctx context.Context, symbol string, side types.Side, baseAmount decimal.Decimal) (string, error)

	// Cancel requests cancellation of orderID. Returns AlreadyTerminal or
	// NotFound as sentinel errors where applicable.
	Cancel(ctx context.Context, symbol, orderID string) error

	// Query returns the current state of orderID.
	Query(ctx context.Context, symbol, orderID string) (OrderStatus, error)

	// BaseSizeIncrement returns the venue's minimum base-asset size
	// increment for symbol, used by C4's tie-break rounding.
	BaseSizeIncrement(symbol string) decimal.Decimal

	// QuoteBalance returns the free (available, unlocked) balance of asset
	// on this venue — the `B` input to the opportunity evaluator (§4.4).
	QuoteBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}
