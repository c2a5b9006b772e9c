package marketdata

import (
	"testing"
	"time"

	"github.com/arbtrader/mexc-bingx-arb/pkg/types"
)

func TestSubscribeReceivesPublishedSnapshot(t *testing.T) {
	t.Parallel()

	b := &book{}
	ch := b.subscribe()

	snap := types.OrderBookSnapshot{Symbol: "BTC-USDC", UpdateID: 1}
	b.publish(snap)

	select {
	case got := <-ch:
		if got.UpdateID != 1 {
			t.Errorf("updateID = %d, want 1", got.UpdateID)
		}
	case <-time.After(time.Second):
		t.Fatal("listener never received the published snapshot")
	}
}

func TestSubscribeMultipleListenersAllNotified(t *testing.T) {
	t.Parallel()

	b := &book{}
	first := b.subscribe()
	second := b.subscribe()

	b.publish(types.OrderBookSnapshot{UpdateID: 7})

	for _, ch := range []<-chan types.OrderBookSnapshot{first, second} {
		select {
		case got := <-ch:
			if got.UpdateID != 7 {
				t.Errorf("updateID = %d, want 7", got.UpdateID)
			}
		case <-time.After(time.Second):
			t.Fatal("a registered listener never received the published snapshot")
		}
	}
}

func TestSubscribePreservesPerVenueOrder(t *testing.T) {
	t.Parallel()

	b := &book{}
	ch := b.subscribe()

	for i := uint64(1); i <= 3; i++ {
		b.publish(types.OrderBookSnapshot{UpdateID: i})
	}

	for i := uint64(1); i <= 3; i++ {
		select {
		case got := <-ch:
			if got.UpdateID != i {
				t.Fatalf("update %d out of order: got update_id %d", i, got.UpdateID)
			}
		case <-time.After(time.Second):
			t.Fatal("listener never received an expected update")
		}
	}
}

func TestSlowListenerDoesNotBlockPublish(t *testing.T) {
	t.Parallel()

	b := &book{}
	_ = b.subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := uint64(0); i < listenerBuffer*2; i++ {
			b.publish(types.OrderBookSnapshot{UpdateID: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow listener")
	}
}

func TestServiceSubscribeUnknownVenueReturnsClosedChannel(t *testing.T) {
	t.Parallel()

	svc := &Service{books: map[types.Venue]*book{}}
	ch := svc.Subscribe(types.MEXC)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected a closed, empty channel for an unregistered venue")
		}
	case <-time.After(time.Second):
		t.Fatal("channel for an unknown venue should already be closed")
	}
}
