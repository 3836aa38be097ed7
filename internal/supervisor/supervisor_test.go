package supervisor

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/position"
	"arbitrage/internal/venue"
	"arbitrage/internal/venue/simulator"
)

func TestSupervisorOpensPositionEndToEnd(t *testing.T) {
	log := zap.NewNop()

	srvA := simulator.NewServer(map[string]float64{"BTCUSDT": 49800}, 10, 10*time.Millisecond)
	defer srvA.Close()
	srvB := simulator.NewServer(map[string]float64{"BTCUSDT": 50200}, 10, 10*time.Millisecond)
	defer srvB.Close()

	clientA := simulator.NewClient("A", srvA, 10000, 0.0005, 10, 0.001, log)
	clientB := simulator.NewClient("B", srvB, 10000, 0.0005, 10, 0.001, log)

	clients := map[string]venue.VenueClient{"A": clientA, "B": clientB}
	markets := map[string]map[string]venue.MarketInfo{
		"A": {"BTCUSDT": {TakerFee: 0.0005, MinNotional: 10, QtyStep: 0.001}},
		"B": {"BTCUSDT": {TakerFee: 0.0005, MinNotional: 10, QtyStep: 0.001}},
	}
	venues := VenueInstruments{"A": {"BTCUSDT"}, "B": {"BTCUSDT"}}

	cfg := Config{
		Depth:               10,
		StaleThreshold:      time.Second,
		ReconnectBackoff:    50 * time.Millisecond,
		RawChannelSize:      16,
		DeltaChannelSize:    16,
		BalanceRefreshEvery: time.Hour,
		FundingRefreshEvery: time.Hour,
		StatusReportEvery:   time.Hour,
		MaxAgeMs:            5000,
		Position: position.Config{
			OpenNetSpreadThresholdPct:  0.1,
			CloseRawSpreadThresholdPct: 0.02,
			CloseAfter:                 time.Hour,
			UsdAmount:                  100,
			Leverage:                   1,
			SizeBufferFactor:           1.1,
			OpenMaxDataAgeMs:           5000,
			CloseMaxDataAgeMs:          5000,
			OrderType:                  venue.OrderTypeMarket,
		},
	}

	sup := New(clients, markets, venues, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for len(sup.manager.Positions()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	positions := sup.manager.Positions()
	cancel()
	<-done

	if len(positions) != 1 {
		t.Fatalf("expected the wide A/B spread to open a position, got %d", len(positions))
	}
	if positions[0].Instrument != "BTCUSDT" {
		t.Fatalf("unexpected instrument: %+v", positions[0])
	}
}
