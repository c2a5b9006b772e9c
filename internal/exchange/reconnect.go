package exchange

import (
	"context"
	"log/slog"
	"time"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// RunWithReconnect repeatedly invokes connect, which should block until its
// stream ends and return the error that ended it. Reconnection uses
// exponential backoff starting at 1s, capped at 30s, matching the teacher's
// websocket reconnect policy generalized to any streaming transport (JSON,
// gzip-JSON, or binary frames). connect receives a monotonically increasing
// attempt counter (starting at 0) so a caller with more than one endpoint
// can rotate round-robin on every reconnect, migrating traffic off an
// endpoint that keeps failing. Returns when ctx is cancelled.
func RunWithReconnect(ctx context.Context, logger *slog.Logger, label string, connect func(ctx context.Context, attempt int) error) error {
	backoff := initialBackoff

	for attempt := 0; ; attempt++ {
		err := connect(ctx, attempt)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Warn("stream disconnected, reconnecting",
			"stream", label,
			"error", err,
			"backoff", backoff,
			"attempt", attempt,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
