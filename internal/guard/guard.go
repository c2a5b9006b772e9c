// Package guard implements the operator-intervention latch the Recovery
// Planner (§4.6) falls back to when a cycle cannot restore the
// zero-base-exposure invariant on its own: once a position is marked stuck,
// the coordinator stops starting new cycles until an operator clears it.
package guard

import (
	"log/slog"
	"sync"
	"time"
)

// Alert is emitted on the guard's channel whenever a position becomes stuck.
type Alert struct {
	Symbol string
	Reason string
	Since  time.Time
}

// Guard holds the stuck-position latch. Zero value is not usable; use New.
type Guard struct {
	logger *slog.Logger

	mu     sync.RWMutex
	stuck  bool
	symbol string
	reason string
	since  time.Time

	alertCh chan Alert
}

// New creates a cleared guard.
func New(logger *slog.Logger) *Guard {
	return &Guard{
		logger:  logger.With("component", "guard"),
		alertCh: make(chan Alert, 10),
	}
}

// IsStuck reports whether trading is currently latched off.
func (g *Guard) IsStuck() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stuck
}

// MarkStuck latches the guard and emits an Alert. Calling it while already
// stuck overwrites the reason but keeps the original since timestamp.
func (g *Guard) MarkStuck(symbol, reason string) {
	g.mu.Lock()
	firstSince := !g.stuck
	g.stuck = true
	g.symbol = symbol
	g.reason = reason
	if firstSince {
		g.since = time.Now()
	}
	since := g.since
	g.mu.Unlock()

	g.logger.Error("position marked stuck, trading halted for symbol",
		"symbol", symbol, "reason", reason, "since", since)

	alert := Alert{Symbol: symbol, Reason: reason, Since: since}
	select {
	case g.alertCh <- alert:
	default:
		select {
		case <-g.alertCh:
		default:
		}
		g.alertCh <- alert
	}
}

// Clear releases the latch. The engine itself never calls it; the
// clear-stuck subcommand removes the persisted stuck marker instead, so the
// next process start begins with a cleared guard.
func (g *Guard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.stuck {
		return
	}
	g.logger.Info("stuck latch cleared", "symbol", g.symbol)
	g.stuck = false
	g.symbol = ""
	g.reason = ""
	g.since = time.Time{}
}

// Status returns the current latch state for logging/telemetry.
func (g *Guard) Status() (stuck bool, symbol, reason string, since time.Time) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stuck, g.symbol, g.reason, g.since
}

// Alerts returns the channel operator-facing surfaces (CLI, metrics,
// notification hooks) should drain to learn about new stuck positions.
func (g *Guard) Alerts() <-chan Alert {
	return g.alertCh
}
