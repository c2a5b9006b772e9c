package legfsm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbtrader/mexc-bingx-arb/internal/exchange"
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

// fakeAdapter scripts a sequence of Query responses and records Cancel calls.
type fakeAdapter struct {
	mu        sync.Mutex
	responses []exchange.OrderStatus
	errs      []error
	next      int
	cancelled bool
	cancelErr error
	afterCancel exchange.OrderStatus
}

func (f *fakeAdapter) Name() types.Venue { return types.MEXC }

func (f *fakeAdapter) SubscribeOrderBook(ctx context.Context, symbol string, depth int) (<-chan types.OrderBookSnapshot, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (types.OrderBookSnapshot, error) {
	return types.OrderBookSnapshot{}, nil
}
func (f *fakeAdapter) PlaceLimit(ctx context.Context, symbol string, side types.Side, baseAmount, limitPrice decimal.Decimal) (string, error) {
	return "", nil
}
func (f *fakeAdapter) PlaceMarket(ctx context.Context, symbol string, side types.Side, baseAmount decimal.Decimal) (string, error) {
	return "", nil
}
func (f *fakeAdapter) BaseSizeIncrement(symbol string) decimal.Decimal { return decimal.Zero }

func (f *fakeAdapter) QuoteBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeAdapter) Cancel(ctx context.Context, symbol, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
	return f.cancelErr
}

func (f *fakeAdapter) Query(ctx context.Context, symbol, orderID string) (exchange.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelled {
		return f.afterCancel, nil
	}

	if f.next >= len(f.responses) {
		return f.responses[len(f.responses)-1], f.errs[len(f.errs)-1]
	}
	status, err := f.responses[f.next], f.errs[f.next]
	f.next++
	return status, err
}

func TestDriveFillsOnFirstPoll(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		responses: []exchange.OrderStatus{
			{State: types.Filled, FilledBase: dec("1"), FilledQuote: dec("40000"), AvgPrice: dec("40000")},
		},
		errs: []error{nil},
	}

	result := Drive(context.Background(), testLogger(), adapter, "BTC-USDC", "o1", Params{
		PollInterval: 5 * time.Millisecond,
		Timeout:      time.Second,
	})

	if result.State != types.Filled {
		t.Fatalf("state = %v, want Filled", result.State)
	}
	if !result.FilledBase.Equal(dec("1")) {
		t.Errorf("filled base = %v, want 1", result.FilledBase)
	}
}

func TestDrivePartialThenFilled(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		responses: []exchange.OrderStatus{
			{State: types.PartiallyFilled, FilledBase: dec("0.3")},
			{State: types.PartiallyFilled, FilledBase: dec("0.6")},
			{State: types.Filled, FilledBase: dec("1")},
		},
		errs: []error{nil, nil, nil},
	}

	result := Drive(context.Background(), testLogger(), adapter, "BTC-USDC", "o1", Params{
		PollInterval: 5 * time.Millisecond,
		Timeout:      time.Second,
	})

	if result.State != types.Filled {
		t.Fatalf("state = %v, want Filled", result.State)
	}
	if !result.FilledBase.Equal(dec("1")) {
		t.Errorf("filled base = %v, want 1", result.FilledBase)
	}
}

// S4: timeout while partially filled triggers cancel and reports the
// filled amount at cancel-ack time.
func TestDriveTimeoutCancelsAndReportsPartial(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		responses:   []exchange.OrderStatus{{State: types.PartiallyFilled, FilledBase: dec("0.4")}},
		errs:        []error{nil},
		afterCancel: exchange.OrderStatus{State: types.Cancelled, FilledBase: dec("0.4")},
	}

	result := Drive(context.Background(), testLogger(), adapter, "BTC-USDC", "o1", Params{
		PollInterval: 5 * time.Millisecond,
		Timeout:      15 * time.Millisecond,
	})

	if result.State != types.Cancelled {
		t.Fatalf("state = %v, want Cancelled", result.State)
	}
	if !result.FilledBase.Equal(dec("0.4")) {
		t.Errorf("filled base = %v, want 0.4", result.FilledBase)
	}
	if !adapter.cancelled {
		t.Error("expected Cancel to have been called on timeout")
	}
}

func TestDriveTimeoutVenueReportsFilledAfterCancelRace(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		responses:   []exchange.OrderStatus{{State: types.Submitted}},
		errs:        []error{nil},
		afterCancel: exchange.OrderStatus{State: types.Filled, FilledBase: dec("1")},
	}

	result := Drive(context.Background(), testLogger(), adapter, "BTC-USDC", "o1", Params{
		PollInterval: 5 * time.Millisecond,
		Timeout:      10 * time.Millisecond,
	})

	if result.State != types.Filled {
		t.Fatalf("state = %v, want Filled (venue won the cancel race)", result.State)
	}
}

func TestDriveReconcilesToUnknownAfterRepeatedTransportErrors(t *testing.T) {
	t.Parallel()

	transportErr := &exchange.TransportError{Op: "query", Err: errors.New("timeout")}
	adapter := &fakeAdapter{
		responses: []exchange.OrderStatus{{}, {}, {}, {}, {}, {}},
		errs:      []error{transportErr, transportErr, transportErr, transportErr, transportErr, transportErr},
	}

	result := Drive(context.Background(), testLogger(), adapter, "BTC-USDC", "o1", Params{
		PollInterval: 2 * time.Millisecond,
		Timeout:      time.Second,
	})

	if result.State != types.Unknown {
		t.Fatalf("state = %v, want Unknown", result.State)
	}
}

func TestDriveNotFoundReconcilesToUnknown(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		responses: []exchange.OrderStatus{{}},
		errs:      []error{exchange.NotFound},
	}

	result := Drive(context.Background(), testLogger(), adapter, "BTC-USDC", "o1", Params{
		PollInterval: 2 * time.Millisecond,
		Timeout:      time.Second,
	})

	if result.State != types.Unknown {
		t.Fatalf("state = %v, want Unknown", result.State)
	}
}
