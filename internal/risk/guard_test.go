package risk

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"arbitrage/internal/models"
)

type fakePositions struct {
	positions []models.Position
	closed    []string
}

func (f *fakePositions) Positions() []models.Position { return f.positions }

func (f *fakePositions) RequestClose(ctx context.Context, instrument string, reason models.CloseReason) error {
	f.closed = append(f.closed, instrument)
	return nil
}

type fakeQuoter map[string]models.Quote

func (q fakeQuoter) Get(venue, instrument string) (models.Quote, bool) {
	v, ok := q[venue+"|"+instrument]
	return v, ok
}

func TestGuardRequestsCloseOnStopLossBreach(t *testing.T) {
	fp := &fakePositions{positions: []models.Position{{
		Instrument: "BTCUSDT", BuyVenue: "A", SellVenue: "B", BuyPrice: 50000, SellPrice: 50100,
	}}}
	g := NewGuard(fp, 5.0, zap.NewNop())

	feed := fakeQuoter{
		"A|BTCUSDT": {VWAPBid: 47000}, // long leg lost heavily
		"B|BTCUSDT": {VWAPAsk: 50100}, // short leg flat
	}

	g.Evaluate(context.Background(), feed)

	if len(fp.closed) != 1 || fp.closed[0] != "BTCUSDT" {
		t.Fatalf("expected RequestClose(BTCUSDT), got %+v", fp.closed)
	}
}

func TestGuardIgnoresHealthyPosition(t *testing.T) {
	fp := &fakePositions{positions: []models.Position{{
		Instrument: "BTCUSDT", BuyVenue: "A", SellVenue: "B", BuyPrice: 50000, SellPrice: 50100,
	}}}
	g := NewGuard(fp, 5.0, zap.NewNop())

	feed := fakeQuoter{
		"A|BTCUSDT": {VWAPBid: 50010},
		"B|BTCUSDT": {VWAPAsk: 50090},
	}

	g.Evaluate(context.Background(), feed)

	if len(fp.closed) != 0 {
		t.Fatalf("expected no close, got %+v", fp.closed)
	}
}

func TestGuardDisabledWithNonPositiveStopLoss(t *testing.T) {
	fp := &fakePositions{positions: []models.Position{{
		Instrument: "BTCUSDT", BuyVenue: "A", SellVenue: "B", BuyPrice: 50000, SellPrice: 50100,
	}}}
	g := NewGuard(fp, 0, zap.NewNop())

	feed := fakeQuoter{
		"A|BTCUSDT": {VWAPBid: 1},
		"B|BTCUSDT": {VWAPAsk: 100000},
	}

	g.Evaluate(context.Background(), feed)

	if len(fp.closed) != 0 {
		t.Fatalf("guard with stop_loss_pct<=0 must never close, got %+v", fp.closed)
	}
}
