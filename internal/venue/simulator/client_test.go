package simulator

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/venue"
)

func TestClientWatchOrderBookStreamsSnapshots(t *testing.T) {
	srv := NewServer(map[string]float64{"BTCUSDT": 50000}, 5, 5*time.Millisecond)
	defer srv.Close()

	c := NewClient("sim", srv, 10000, 0.0004, 5, 0.001, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := c.WatchOrderBook(ctx, "BTCUSDT", 5)
	if err != nil {
		t.Fatalf("WatchOrderBook: %v", err)
	}

	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before any snapshot")
		}
		if snap.Empty() {
			t.Fatal("snapshot should not be empty")
		}
		if len(snap.Bids) != 5 || len(snap.Asks) != 5 {
			t.Fatalf("expected depth 5, got bids=%d asks=%d", len(snap.Bids), len(snap.Asks))
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for first snapshot")
	}
}

func TestClientOrderFillsUpdateLedger(t *testing.T) {
	srv := NewServer(map[string]float64{"BTCUSDT": 50000}, 5, 50*time.Millisecond)
	defer srv.Close()

	c := NewClient("sim", srv, 10000, 0.001, 5, 0.001, zap.NewNop())
	ctx := context.Background()

	order, err := c.CreateOrder(ctx, "BTCUSDT", "buy", venue.OrderTypeMarket, 0.01, 50000, venue.OrderParams{})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Status != "filled" {
		t.Fatalf("expected filled, got %s", order.Status)
	}

	positions, err := c.FetchPositions(ctx, []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("FetchPositions: %v", err)
	}
	if positions[0].Contracts != 0.01 {
		t.Fatalf("expected 0.01 contracts, got %v", positions[0].Contracts)
	}

	balance, _ := c.FetchBalance(ctx)
	if balance >= 10000 {
		t.Fatalf("expected balance to be reduced by fee, got %v", balance)
	}
}
