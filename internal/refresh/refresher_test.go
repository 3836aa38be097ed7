package refresh

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/models"
	"arbitrage/internal/venue"
	"arbitrage/internal/venue/simulator"
)

func TestBalanceRefresherPrimesMapBeforeFirstTick(t *testing.T) {
	srv := simulator.NewServer(map[string]float64{"BTCUSDT": 50000}, 10, time.Hour)
	defer srv.Close()

	log := zap.NewNop()
	clientA := simulator.NewClient("A", srv, 500, 0.001, 10, 0.001, log)
	clients := map[string]venue.VenueClient{"A": clientA}

	balances := models.NewBalanceMap()
	r := NewBalanceRefresher(clients, balances, time.Hour, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for balances.Get("A") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := balances.Get("A"); got != 500 {
		t.Fatalf("balance A = %v, want 500", got)
	}

	cancel()
	<-done
}

func TestFundingRefresherReplacesMap(t *testing.T) {
	log := zap.NewNop()
	clients := map[string]venue.VenueClient{}
	funding := models.NewFundingMap()
	r := NewFundingRefresher(clients, funding, time.Hour, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	if got := funding.Get("A", "BTCUSDT"); got != 0 {
		t.Fatalf("expected zero-value funding for unknown venue, got %v", got)
	}
}
