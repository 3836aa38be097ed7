// Package spread implements the SpreadAnalyzer: a stateless function
// from the current FeedState to a SpreadData record per ordered venue
// pair per common instrument (spec.md §4.3).
package spread

import (
	"time"

	"arbitrage/internal/metrics"
	"arbitrage/internal/models"
)

// FeeLookup resolves the taker fee for (venue, instrument). Backed by
// the static market metadata loaded at startup (spec.md §6
// LoadMarkets); never changes within a session.
type FeeLookup func(venue, instrument string) float64

// Analyzer is the pairwise spread computation, parametrized by the
// configured max data age and a commission cache shared across calls.
type Analyzer struct {
	cache     *CommissionCache
	fees      FeeLookup
	maxAgeMs  int64
}

// NewAnalyzer builds an Analyzer. maxAgeMs is
// analyze_arbitrage_max_data_age_ms (spec.md §4.3).
func NewAnalyzer(fees FeeLookup, maxAgeMs int64) *Analyzer {
	return &Analyzer{cache: NewCommissionCache(), fees: fees, maxAgeMs: maxAgeMs}
}

// nowFunc is overridable by tests; production code always uses the
// real wall clock, compared against venue-supplied snapshot
// timestamps exactly as spec.md §9 requires.
var nowFunc = func() int64 { return time.Now().UnixMilli() }

// Analyze computes one SpreadData per ordered venue pair per
// instrument present on both venues, skipping stale pairs. O(E^2) in
// the number of venues, as spec.md §2 states.
func (a *Analyzer) Analyze(state *models.FeedState) []models.SpreadData {
	venues := state.Venues()
	now := nowFunc()

	var out []models.SpreadData
	for _, buyVenue := range venues {
		buyQuotes := state.InstrumentsFor(buyVenue)
		for _, sellVenue := range venues {
			if buyVenue == sellVenue {
				continue
			}
			sellQuotes := state.InstrumentsFor(sellVenue)

			for instrument, buyQuote := range buyQuotes {
				sellQuote, ok := sellQuotes[instrument]
				if !ok {
					continue
				}

				minTs := buyQuote.TimestampMs
				if sellQuote.TimestampMs < minTs {
					minTs = sellQuote.TimestampMs
				}
				if now-minTs > a.maxAgeMs {
					continue
				}

				buyPrice := buyQuote.VWAPAsk
				sellPrice := sellQuote.VWAPBid
				mid := (sellPrice + buyPrice) / 2
				if mid == 0 {
					continue
				}
				rawSpreadPct := (sellPrice - buyPrice) / mid * 100

				commissionPct := a.cache.GetOrCompute(buyVenue, sellVenue, instrument, func() float64 {
					return 2 * (a.fees(buyVenue, instrument) + a.fees(sellVenue, instrument)) * 100
				})

				netSpreadPct := rawSpreadPct - commissionPct

				metrics.SpreadObserved.WithLabelValues(instrument, buyVenue, sellVenue).Observe(netSpreadPct)

				out = append(out, models.SpreadData{
					Instrument:     instrument,
					BuyVenue:       buyVenue,
					BuyPrice:       buyPrice,
					SellVenue:      sellVenue,
					SellPrice:      sellPrice,
					RawSpreadPct:   rawSpreadPct,
					CommissionPct:  commissionPct,
					NetSpreadPct:   netSpreadPct,
					MinTimestampMs: minTs,
				})
			}
		}
	}
	return out
}

// CacheLen exposes the commission cache size for tests/metrics.
func (a *Analyzer) CacheLen() int {
	return a.cache.Len()
}
