package marketdata

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

// isStale reports whether lastUpdate is older than maxAge relative to now.
// A zero lastUpdate (no data has ever arrived) is always stale.
func isStale(lastUpdate time.Time, maxAge time.Duration, now time.Time) bool {
	if lastUpdate.IsZero() {
		return true
	}
	return now.Sub(lastUpdate) > maxAge
}

// withinDeviation reports whether fresh's top-of-book deviates from last's
// by no more than maxDeviation quote units on either side (§4.2: a REST
// fallback snapshot is discarded rather than applied if it disagrees too
// much with the last streamed view, to stop a slow REST path from
// corrupting the view during fast markets).
func withinDeviation(last, fresh types.OrderBookSnapshot, maxDeviation decimal.Decimal) bool {
	lastBid, lastBidOK := last.BestBid()
	freshBid, freshBidOK := fresh.BestBid()
	if lastBidOK && freshBidOK {
		if lastBid.Price.Sub(freshBid.Price).Abs().GreaterThan(maxDeviation) {
			return false
		}
	}

	lastAsk, lastAskOK := last.BestAsk()
	freshAsk, freshAskOK := fresh.BestAsk()
	if lastAskOK && freshAskOK {
		if lastAsk.Price.Sub(freshAsk.Price).Abs().GreaterThan(maxDeviation) {
			return false
		}
	}

	return true
}
