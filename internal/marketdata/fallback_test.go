package marketdata

import (
	"testing"
	"time"

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

func TestIsStale(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if !isStale(time.Time{}, time.Second, now) {
		t.Error("zero lastUpdate should always be stale")
	}
	if isStale(now.Add(-500*time.Millisecond), time.Second, now) {
		t.Error("update within maxAge should not be stale")
	}
	if !isStale(now.Add(-2*time.Second), time.Second, now) {
		t.Error("update older than maxAge should be stale")
	}
}

func snapshotWith(bidPrice, askPrice string) types.OrderBookSnapshot {
	return types.OrderBookSnapshot{
		Bids: []types.PriceLevel{{Price: dec(bidPrice), Size: dec("1")}},
		Asks: []types.PriceLevel{{Price: dec(askPrice), Size: dec("1")}},
	}
}

func TestWithinDeviationAccepts(t *testing.T) {
	t.Parallel()

	last := snapshotWith("50000", "50010")
	fresh := snapshotWith("50005", "50012")

	if !withinDeviation(last, fresh, dec("10")) {
		t.Error("small deviation should be accepted")
	}
}

func TestWithinDeviationRejects(t *testing.T) {
	t.Parallel()

	last := snapshotWith("50000", "50010")
	fresh := snapshotWith("50500", "50012") // 500 unit bid jump

	if withinDeviation(last, fresh, dec("10")) {
		t.Error("large deviation should be rejected")
	}
}

func TestWithinDeviationOneSidedBooksSkipCheck(t *testing.T) {
	t.Parallel()

	last := types.OrderBookSnapshot{}
	fresh := snapshotWith("50000", "50010")

	if !withinDeviation(last, fresh, dec("1")) {
		t.Error("missing prior side should not block the fallback snapshot")
	}
}
