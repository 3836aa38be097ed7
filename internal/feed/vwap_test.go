package feed

import (
	"math"
	"testing"

	"arbitrage/internal/models"
)

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestVWAPAskExactFill(t *testing.T) {
	snap := &models.BookSnapshot{
		Asks: []models.PriceLevel{
			{Price: 100, Size: 1}, // notional 100
			{Price: 101, Size: 1}, // notional 101, cumulative 201
		},
	}

	// Target exactly covered by first level.
	res := VWAPAsk(snap, 100)
	if !res.Filled {
		t.Fatal("expected filled")
	}
	if !approxEqual(res.Price, 100, 1e-9) {
		t.Fatalf("price = %v, want 100", res.Price)
	}
}

func TestVWAPAskPartialLastLevel(t *testing.T) {
	snap := &models.BookSnapshot{
		Asks: []models.PriceLevel{
			{Price: 100, Size: 1}, // notional 100
			{Price: 102, Size: 1}, // notional 102
		},
	}

	// Target 150: consume all of level 1 (100 notional, 1 unit),
	// then 50 notional from level 2 at price 102 -> 50/102 units.
	res := VWAPAsk(snap, 150)
	if !res.Filled {
		t.Fatal("expected filled")
	}

	wantVolume := 1 + 50.0/102.0
	wantPrice := 150 / wantVolume
	if !approxEqual(res.BaseVolume, wantVolume, 1e-9) {
		t.Fatalf("volume = %v, want %v", res.BaseVolume, wantVolume)
	}
	if !approxEqual(res.Price, wantPrice, 1e-9) {
		t.Fatalf("price = %v, want %v", res.Price, wantPrice)
	}
	if !approxEqual(res.QuoteNotional, 150, 1e-9) {
		t.Fatalf("notional = %v, want 150", res.QuoteNotional)
	}
}

func TestVWAPInsufficientDepthNotFilled(t *testing.T) {
	snap := &models.BookSnapshot{
		Asks: []models.PriceLevel{{Price: 100, Size: 0.5}},
	}
	res := VWAPAsk(snap, 1000)
	if res.Filled {
		t.Fatal("expected not filled when depth is insufficient")
	}
}

func TestVWAPBidWalksBidsSide(t *testing.T) {
	snap := &models.BookSnapshot{
		Bids: []models.PriceLevel{{Price: 99, Size: 2}},
	}
	res := VWAPBid(snap, 198)
	if !res.Filled || !approxEqual(res.Price, 99, 1e-9) {
		t.Fatalf("res = %+v", res)
	}
}

func TestVWAPZeroTargetNotFilled(t *testing.T) {
	snap := &models.BookSnapshot{Asks: []models.PriceLevel{{Price: 100, Size: 1}}}
	res := VWAPAsk(snap, 0)
	if res.Filled {
		t.Fatal("zero target must not be reported filled")
	}
}
