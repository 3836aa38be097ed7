package feed

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/models"
	"arbitrage/internal/venue/simulator"
)

func TestIngestorForwardsSnapshotsToRawChannel(t *testing.T) {
	srv := simulator.NewServer(map[string]float64{"BTCUSDT": 50000}, 5, 5*time.Millisecond)
	defer srv.Close()
	client := simulator.NewClient("sim", srv, 10000, 0.0004, 5, 0.001, zap.NewNop())

	rawCh := make(chan models.BookSnapshot, 16)
	ing := NewIngestor(client, "BTCUSDT", IngestorConfig{Depth: 5, StaleThreshold: 200 * time.Millisecond, ReconnectBackoff: 10 * time.Millisecond}, rawCh, nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go ing.Run(ctx)

	select {
	case snap := <-rawCh:
		if snap.Venue != "sim" || snap.Instrument != "BTCUSDT" {
			t.Fatalf("unexpected snapshot %+v", snap)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for first snapshot")
	}
}

func TestIngestorReconnectsAfterStall(t *testing.T) {
	srv := simulator.NewServer(map[string]float64{"ETHUSDT": 3000}, 3, 5*time.Millisecond)
	defer srv.Close()
	client := simulator.NewClient("sim", srv, 10000, 0.0004, 5, 0.001, zap.NewNop())

	rawCh := make(chan models.BookSnapshot, 16)
	ing := NewIngestor(client, "ETHUSDT", IngestorConfig{Depth: 3, StaleThreshold: 50 * time.Millisecond, ReconnectBackoff: 10 * time.Millisecond}, rawCh, nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go ing.Run(ctx)

	// Drain the first snapshot to confirm the feed is live.
	select {
	case <-rawCh:
	case <-time.After(1 * time.Second):
		t.Fatal("feed never produced an initial snapshot")
	}

	// Stall the server; the watchdog must eventually force a
	// reconnect and resume delivering snapshots once unstalled.
	srv.Stall("ETHUSDT", true)
	time.Sleep(300 * time.Millisecond)
	srv.Stall("ETHUSDT", false)

	select {
	case <-rawCh:
		// resumed after the forced reconnect cycle
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("feed did not resume after unstall")
	}
}
