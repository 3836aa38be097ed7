// Package feed turns raw venue order-book snapshots into executable,
// volume-weighted quotes (spec.md §4.2). FeedIngestor owns the
// per-(venue,instrument) subscription and staleness watchdog;
// FeedAggregator is the single consumer that derives quotes and
// detects changes.
package feed

import "arbitrage/internal/models"

// VWAPResult is the outcome of walking one side of a book to fill a
// target notional.
type VWAPResult struct {
	Price         float64 // accumulated notional / accumulated base volume
	Filled        bool    // false if book depth was insufficient
	BaseVolume    float64
	QuoteNotional float64
}

// walkSide accumulates price*size across levels until the cumulative
// notional first reaches targetNotional, including a fractional fill
// of the final level so cumulative notional equals it exactly
// (spec.md §4.2).
func walkSide(levels []models.PriceLevel, targetNotional float64) VWAPResult {
	if targetNotional <= 0 {
		return VWAPResult{}
	}

	var accNotional, accVolume float64
	for _, lvl := range levels {
		if lvl.Price <= 0 || lvl.Size <= 0 {
			continue
		}
		levelNotional := lvl.Price * lvl.Size
		if accNotional+levelNotional >= targetNotional {
			remaining := targetNotional - accNotional
			fracVolume := remaining / lvl.Price
			accNotional += remaining
			accVolume += fracVolume
			return VWAPResult{
				Price:         accNotional / accVolume,
				Filled:        true,
				BaseVolume:    accVolume,
				QuoteNotional: accNotional,
			}
		}
		accNotional += levelNotional
		accVolume += lvl.Size
	}

	// Depth exhausted before reaching target notional.
	return VWAPResult{BaseVolume: accVolume, QuoteNotional: accNotional, Filled: false}
}

// VWAPAsk walks the ask side — the price a buy order of targetNotional
// would achieve.
func VWAPAsk(snap *models.BookSnapshot, targetNotional float64) VWAPResult {
	return walkSide(snap.Asks, targetNotional)
}

// VWAPBid walks the bid side — the price a sell order of
// targetNotional would achieve.
func VWAPBid(snap *models.BookSnapshot, targetNotional float64) VWAPResult {
	return walkSide(snap.Bids, targetNotional)
}
