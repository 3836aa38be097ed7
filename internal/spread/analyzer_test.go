package spread

import (
	"math"
	"testing"

	"arbitrage/internal/models"
)

func fixedFees(a, b float64) FeeLookup {
	return func(venue, instrument string) float64 {
		if venue == "A" {
			return a
		}
		return b
	}
}

func withNow(ms int64, fn func()) {
	old := nowFunc
	nowFunc = func() int64 { return ms }
	defer func() { nowFunc = old }()
	fn()
}

func buildState(now int64) *models.FeedState {
	fs := models.NewFeedState()
	fs.Set(models.Quote{Venue: "A", Instrument: "BTCUSDT", VWAPBid: 49900, VWAPAsk: 49800, TimestampMs: now - 50})
	fs.Set(models.Quote{Venue: "B", Instrument: "BTCUSDT", VWAPBid: 50050, VWAPAsk: 50100, TimestampMs: now - 20})
	return fs
}

func TestAnalyzeScenarioOpenSucceeds(t *testing.T) {
	now := int64(1_000_000)
	withNow(now, func() {
		a := NewAnalyzer(fixedFees(0.001, 0.001), 400)
		results := a.Analyze(buildState(now))

		var found *models.SpreadData
		for i := range results {
			if results[i].BuyVenue == "A" && results[i].SellVenue == "B" {
				found = &results[i]
			}
		}
		if found == nil {
			t.Fatal("expected an A->B spread")
		}
		if found.CommissionPct != 0.4 {
			t.Fatalf("commission = %v, want 0.4", found.CommissionPct)
		}
		// raw ~= (50050-49800)/((50050+49800)/2)*100 ~= 0.501%
		if found.RawSpreadPct < 0.45 || found.RawSpreadPct > 0.55 {
			t.Fatalf("raw spread = %v, want ~0.501", found.RawSpreadPct)
		}
		if found.NetSpreadPct < 0.05 {
			t.Fatalf("net spread = %v, want positive ~0.1", found.NetSpreadPct)
		}
	})
}

func TestAnalyzeScenarioNoOpenOnThinSpread(t *testing.T) {
	now := int64(1_000_000)
	withNow(now, func() {
		fs := models.NewFeedState()
		fs.Set(models.Quote{Venue: "A", Instrument: "BTCUSDT", VWAPAsk: 50000, VWAPBid: 49990, TimestampMs: now - 50})
		fs.Set(models.Quote{Venue: "B", Instrument: "BTCUSDT", VWAPBid: 50050, VWAPAsk: 50060, TimestampMs: now - 50})

		a := NewAnalyzer(fixedFees(0.001, 0.001), 400)
		results := a.Analyze(fs)

		for _, r := range results {
			if r.BuyVenue == "A" && r.SellVenue == "B" && r.NetSpreadPct >= 0.1 {
				t.Fatalf("expected net spread below 0.1%% threshold, got %v", r.NetSpreadPct)
			}
		}
	})
}

func TestAnalyzeAgeGateDropsStalePair(t *testing.T) {
	now := int64(1_000_000)
	withNow(now, func() {
		fs := models.NewFeedState()
		fs.Set(models.Quote{Venue: "A", Instrument: "BTCUSDT", VWAPAsk: 49800, VWAPBid: 49790, TimestampMs: now - 500})
		fs.Set(models.Quote{Venue: "B", Instrument: "BTCUSDT", VWAPBid: 50050, VWAPAsk: 50060, TimestampMs: now - 20})

		a := NewAnalyzer(fixedFees(0.001, 0.001), 400)
		results := a.Analyze(fs)

		for _, r := range results {
			if r.Instrument == "BTCUSDT" {
				t.Fatalf("expected no spread emitted when min_ts age exceeds threshold, got %+v", r)
			}
		}
	})
}

func TestAnalyzeSpreadSymmetry(t *testing.T) {
	now := int64(1_000_000)
	withNow(now, func() {
		// Bid == ask on each venue, so A->B and B->A use the same two
		// prices and the same mid, and their raw spreads negate exactly.
		fs := models.NewFeedState()
		fs.Set(models.Quote{Venue: "A", Instrument: "BTCUSDT", VWAPBid: 49800, VWAPAsk: 49800, TimestampMs: now - 50})
		fs.Set(models.Quote{Venue: "B", Instrument: "BTCUSDT", VWAPBid: 50050, VWAPAsk: 50050, TimestampMs: now - 20})

		a := NewAnalyzer(fixedFees(0.001, 0.001), 400)
		results := a.Analyze(fs)

		byPair := map[string]float64{}
		for _, r := range results {
			byPair[r.BuyVenue+">"+r.SellVenue] = r.RawSpreadPct
		}

		ab, okAB := byPair["A>B"]
		ba, okBA := byPair["B>A"]
		if !okAB || !okBA {
			t.Fatalf("expected both mirrored pairs present: %+v", byPair)
		}
		if math.Abs(ab+ba) > 1e-9 {
			t.Fatalf("raw spreads must be near-exact negatives: A>B=%v B>A=%v", ab, ba)
		}
	})
}

func TestCommissionCacheIdempotentAndSingleEntry(t *testing.T) {
	now := int64(1_000_000)
	withNow(now, func() {
		calls := 0
		fees := func(venue, instrument string) float64 {
			calls++
			return 0.001
		}
		a := NewAnalyzer(fees, 400)
		state := buildState(now)

		a.Analyze(state)
		callsAfterFirst := calls
		a.Analyze(state)

		if calls != callsAfterFirst {
			t.Fatalf("expected no new fee lookups on second analysis, first=%d second=%d", callsAfterFirst, calls)
		}
		// Two venues, one instrument: two ordered pairs (A->B, B->A) = 2 cache entries.
		if a.CacheLen() != 2 {
			t.Fatalf("expected exactly 2 cache entries, got %d", a.CacheLen())
		}
	})
}

func TestAnalyzeNoSelfPair(t *testing.T) {
	now := int64(1_000_000)
	withNow(now, func() {
		fs := models.NewFeedState()
		fs.Set(models.Quote{Venue: "A", Instrument: "BTCUSDT", VWAPAsk: 100, VWAPBid: 99, TimestampMs: now})

		a := NewAnalyzer(fixedFees(0.001, 0.001), 400)
		results := a.Analyze(fs)
		if len(results) != 0 {
			t.Fatalf("single venue must produce no pairs, got %+v", results)
		}
	})
}
