// Package legfsm drives one order (one leg of a trade) from submission to a
// terminal state (C5): poll the venue on an interval, apply the transition
// table of §4.5, and cancel-on-timeout when the venue never settles.
package legfsm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbtrader/mexc-bingx-arb/internal/exchange"
	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

// maxConsecutiveTransportErrors is the query-failure threshold past which a
// non-terminal leg reconciles to Unknown rather than polling forever.
const maxConsecutiveTransportErrors = 5

// Params configures one drive() call.
type Params struct {
	PollInterval time.Duration // default 500ms
	Timeout      time.Duration // default 30s
}

// Result is the terminal (or Unknown) outcome of driving one leg.
type Result struct {
	State       types.LegState
	FilledBase  decimal.Decimal
	FilledQuote decimal.Decimal
	AvgPrice    decimal.Decimal
}

// Drive polls orderID on adapter every params.PollInterval until it reaches
// a terminal state or params.Timeout elapses. On timeout while still
// Submitted or PartiallyFilled, it cancels the order and reports whatever
// was filled at cancel-ack time. Consecutive transport errors past the
// threshold reconcile to Unknown.
func Drive(ctx context.Context, logger *slog.Logger, adapter exchange.Adapter, symbol, orderID string, params Params) Result {
	logger = logger.With("venue", adapter.Name(), "order_id", orderID)

	ticker := time.NewTicker(params.PollInterval)
	defer ticker.Stop()

	deadline := time.Now().Add(params.Timeout)
	last := Result{State: types.Submitted}
	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			return last
		case now := <-ticker.C:
			status, err := adapter.Query(ctx, symbol, orderID)
			if err != nil {
				consecutiveErrors++
				logger.Warn("leg query failed", "error", err, "consecutive_errors", consecutiveErrors)
				if errors.Is(err, exchange.NotFound) || consecutiveErrors >= maxConsecutiveTransportErrors {
					last.State = types.Unknown
					return last
				}
			} else {
				consecutiveErrors = 0
				last = Result{
					State:       status.State,
					FilledBase:  status.FilledBase,
					FilledQuote: status.FilledQuote,
					AvgPrice:    status.AvgPrice,
				}
				if last.State.IsTerminal() {
					return last
				}
			}

			if now.After(deadline) || time.Now().After(deadline) {
				return cancelAndFinalize(ctx, logger, adapter, symbol, orderID, last)
			}
		}
	}
}

// cancelAndFinalize issues a cancel for a non-terminal order that timed out
// and makes a best-effort final query to learn the fill at cancel-ack time.
func cancelAndFinalize(ctx context.Context, logger *slog.Logger, adapter exchange.Adapter, symbol, orderID string, last Result) Result {
	logger.Info("leg poll timeout, cancelling", "state", last.State)

	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := adapter.Cancel(cancelCtx, symbol, orderID); err != nil && !errors.Is(err, exchange.AlreadyTerminal) {
		logger.Error("cancel on timeout failed", "error", err)
	}

	status, err := adapter.Query(cancelCtx, symbol, orderID)
	if err != nil {
		logger.Error("final query after cancel failed", "error", err)
		if last.State.IsTerminal() {
			return last
		}
		last.State = types.Unknown
		return last
	}

	return Result{
		State:       finalStateAfterCancel(status.State),
		FilledBase:  status.FilledBase,
		FilledQuote: status.FilledQuote,
		AvgPrice:    status.AvgPrice,
	}
}

// finalStateAfterCancel maps the venue's post-cancel state to a terminal
// leg state. A venue that reports the order already Filled wins over our
// cancel attempt; anything still non-terminal is treated as Cancelled with
// whatever partial fill was reported.
func finalStateAfterCancel(venueState types.LegState) types.LegState {
	if venueState == types.Filled {
		return types.Filled
	}
	return types.Cancelled
}
