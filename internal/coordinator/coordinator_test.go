package coordinator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbtrader/mexc-bingx-arb/internal/evaluator"
	"github.com/arbtrader/mexc-bingx-arb/internal/exchange"
	"github.com/arbtrader/mexc-bingx-arb/internal/guard"
	"github.com/arbtrader/mexc-bingx-arb/internal/legfsm"
	"github.com/arbtrader/mexc-bingx-arb/internal/marketdata"
	"github.com/arbtrader/mexc-bingx-arb/internal/store"
	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedAdapter is a fake venue adapter whose PlaceLimit/PlaceMarket/
// Cancel/Query behavior is entirely scripted by the test.
type scriptedAdapter struct {
	venue types.Venue

	mu           sync.Mutex
	placeErr     error
	queryResults []exchange.OrderStatus
	queryErrs    []error
	nextQuery    int
	balance      decimal.Decimal
	increment    decimal.Decimal
	orderCount   int
}

func (s *scriptedAdapter) Name() types.Venue { return s.venue }

func (s *scriptedAdapter) SubscribeOrderBook(ctx context.Context, symbol string, depth int) (<-chan types.OrderBookSnapshot, error) {
	return nil, nil
}
func (s *scriptedAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (types.OrderBookSnapshot, error) {
	return types.OrderBookSnapshot{}, nil
}

func (s *scriptedAdapter) PlaceLimit(ctx context.Context, symbol string, side types.Side, baseAmount, limitPrice decimal.Decimal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placeErr != nil {
		return "", s.placeErr
	}
	s.orderCount++
	return "order-limit", nil
}

func (s *scriptedAdapter) PlaceMarket(ctx context.Context, symbol string, side types.Side, baseAmount decimal.Decimal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placeErr != nil {
		return "", s.placeErr
	}
	s.orderCount++
	return "order-market", nil
}

func (s *scriptedAdapter) Cancel(ctx context.Context, symbol, orderID string) error { return nil }

func (s *scriptedAdapter) Query(ctx context.Context, symbol, orderID string) (exchange.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextQuery >= len(s.queryResults) {
		return s.queryResults[len(s.queryResults)-1], s.queryErrs[len(s.queryErrs)-1]
	}
	status, err := s.queryResults[s.nextQuery], s.queryErrs[s.nextQuery]
	s.nextQuery++
	return status, err
}

func (s *scriptedAdapter) BaseSizeIncrement(symbol string) decimal.Decimal { return s.increment }

func (s *scriptedAdapter) QuoteBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return s.balance, nil
}

func testParams() Params {
	return Params{
		Symbol:                   "BTC-USDC",
		RecheckInterval:          time.Hour, // tick() is invoked directly in tests
		PreExecPriceTolerancePct: dec("2"),
		EmergencyDiscountPct:     dec("1"),
		MaxRecoveryRetries:       2,
		Evaluator: evaluator.Params{
			MinProfitQuote:  dec("10"),
			MinProfitPct:    dec("0"),
			MaxBasePerTrade: dec("10"),
			MaxSlippageBps:  dec("500"),
		},
		Leg: legfsm.Params{
			PollInterval: 2 * time.Millisecond,
			Timeout:      20 * time.Millisecond,
		},
	}
}

func newTestCoordinator(t *testing.T, mexc, bingx *scriptedAdapter) (*Coordinator, *marketdata.Service, *guard.Guard) {
	t.Helper()

	md := marketdata.New("BTC-USDC", mexc, bingx, marketdata.VenueConfig{}, marketdata.VenueConfig{}, 20, testLogger())
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	g := guard.New(testLogger())

	c := New(testParams(), mexc, bingx, md, st, g, testLogger())
	return c, md, g
}

// S1-style: clean profit, both legs fully fill.
func TestRunCycleCleanProfit(t *testing.T) {
	t.Parallel()

	mexc := &scriptedAdapter{
		venue:   types.MEXC,
		balance: dec("1000000"),
		queryResults: []exchange.OrderStatus{
			{State: types.Filled, FilledBase: dec("1"), FilledQuote: dec("40000"), AvgPrice: dec("40000")},
		},
		queryErrs: []error{nil},
	}
	bingx := &scriptedAdapter{
		venue: types.BingX,
		queryResults: []exchange.OrderStatus{
			{State: types.Filled, FilledBase: dec("1"), FilledQuote: dec("40075"), AvgPrice: dec("40075")},
		},
		queryErrs: []error{nil},
	}

	c, md, g := newTestCoordinator(t, mexc, bingx)

	mexcBook := types.OrderBookSnapshot{Asks: []types.PriceLevel{{Price: dec("40000"), Size: dec("1")}}}
	bingxBook := types.OrderBookSnapshot{Bids: []types.PriceLevel{
		{Price: dec("40100"), Size: dec("0.5")},
		{Price: dec("40050"), Size: dec("0.5")},
	}}

	injectSnapshot(md, types.MEXC, mexcBook)
	injectSnapshot(md, types.BingX, bingxBook)

	c.tick(context.Background())

	if g.IsStuck() {
		t.Fatal("guard should not be stuck after a clean cycle")
	}
	if mexc.orderCount != 1 {
		t.Errorf("mexc order count = %d, want 1", mexc.orderCount)
	}
	if bingx.orderCount != 1 {
		t.Errorf("bingx order count = %d, want 1", bingx.orderCount)
	}
}

func TestRunCycleNoPlanWhenUnprofitable(t *testing.T) {
	t.Parallel()

	mexc := &scriptedAdapter{venue: types.MEXC, balance: dec("1000000")}
	bingx := &scriptedAdapter{venue: types.BingX}

	c, md, _ := newTestCoordinator(t, mexc, bingx)

	injectSnapshot(md, types.MEXC, types.OrderBookSnapshot{Asks: []types.PriceLevel{{Price: dec("40100"), Size: dec("1")}}})
	injectSnapshot(md, types.BingX, types.OrderBookSnapshot{Bids: []types.PriceLevel{{Price: dec("40050"), Size: dec("1")}}})

	c.tick(context.Background())

	if mexc.orderCount != 0 {
		t.Error("expected no buy order placed for an unprofitable spread")
	}
}

// S5-style: buy fills, the sell venue rejects every market-sell retry and
// the emergency limit sell as well -> guard latches stuck.
func TestRunCycleSellRejectedEscalatesToStuck(t *testing.T) {
	t.Parallel()

	mexc := &scriptedAdapter{
		venue:   types.MEXC,
		balance: dec("1000000"),
		queryResults: []exchange.OrderStatus{
			{State: types.Filled, FilledBase: dec("1"), FilledQuote: dec("40000"), AvgPrice: dec("40000")},
		},
		queryErrs: []error{nil},
	}
	bingx := &scriptedAdapter{
		venue:    types.BingX,
		placeErr: assertionError{"insufficient balance"},
	}

	c, md, g := newTestCoordinator(t, mexc, bingx)

	injectSnapshot(md, types.MEXC, types.OrderBookSnapshot{Asks: []types.PriceLevel{{Price: dec("40000"), Size: dec("1")}}})
	injectSnapshot(md, types.BingX, types.OrderBookSnapshot{Bids: []types.PriceLevel{
		{Price: dec("40100"), Size: dec("0.5")},
		{Price: dec("40050"), Size: dec("0.5")},
	}})

	c.tick(context.Background())

	if !g.IsStuck() {
		t.Fatal("expected the guard to latch stuck when the sell leg cannot be unwound")
	}
}

func TestRunCycleGuardBlocksFurtherTicks(t *testing.T) {
	t.Parallel()

	mexc := &scriptedAdapter{venue: types.MEXC, balance: dec("1000000")}
	bingx := &scriptedAdapter{venue: types.BingX}

	c, _, g := newTestCoordinator(t, mexc, bingx)
	g.MarkStuck("BTC-USDC", "pre-existing stuck position")

	c.tick(context.Background())

	if mexc.orderCount != 0 {
		t.Error("expected no trading while the guard is latched")
	}
}

// assertionError is a trivial error type for scripting rejections in tests.
type assertionError struct{ msg string }

func (e assertionError) Error() string { return e.msg }

// injectSnapshot publishes a snapshot directly into the market-data
// service's internal book state for a venue, bypassing the stream.
func injectSnapshot(md *marketdata.Service, venue types.Venue, snap types.OrderBookSnapshot) {
	md.TestPublish(venue, snap)
}
