package status

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"arbitrage/internal/models"
)

type fakePositions struct{ positions []models.Position }

func (f fakePositions) Positions() []models.Position { return f.positions }

func TestReporterEmitsSnapshotOnTick(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	balances := models.NewBalanceMap()
	balances.Replace(map[string]float64{"A": 100})

	r := NewReporter(fakePositions{positions: []models.Position{{Instrument: "BTCUSDT"}}}, balances, nil, nil, 10*time.Millisecond, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for logs.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if logs.Len() == 0 {
		t.Fatal("expected at least one status snapshot log entry")
	}
	entry := logs.All()[0]
	if entry.Message != "status snapshot" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
}

func TestReporterOrphanedLegIsCritical(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	r := NewReporter(fakePositions{}, models.NewBalanceMap(), nil, nil, time.Hour, log)
	r.ReportOrphanedLeg("BTCUSDT", "A", context.Canceled)

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	if logs.All()[0].Level != zap.ErrorLevel {
		t.Fatalf("expected error level for orphaned leg, got %v", logs.All()[0].Level)
	}
}
