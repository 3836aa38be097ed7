package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/metrics"
	"arbitrage/internal/models"
)

// TargetNotionalFunc resolves the VWAP target notional for an
// instrument — position.usd_amount * position.leverage, which can
// change per pair/config (spec.md §4.2).
type TargetNotionalFunc func(instrument string) float64

// Aggregator is the single consumer of the raw-snapshots channel. It
// derives VWAP quotes, mutates the shared FeedState, and forwards
// changed-feed deltas. Exclusive owner of FeedState (spec.md §3).
type Aggregator struct {
	state         *models.FeedState
	targetNotional TargetNotionalFunc
	deltaCh       chan<- models.FeedDelta
	log           *zap.Logger
}

// NewAggregator builds an Aggregator. deltaCh is the bounded
// feed-deltas channel; the aggregator blocks pushing onto it rather
// than dropping (spec.md §5).
func NewAggregator(targetNotional TargetNotionalFunc, deltaCh chan<- models.FeedDelta, log *zap.Logger) *Aggregator {
	return &Aggregator{
		state:          models.NewFeedState(),
		targetNotional: targetNotional,
		deltaCh:        deltaCh,
		log:            log,
	}
}

// State returns the live FeedState. Callers other than the aggregator
// must only read it, and should prefer Snapshot() for a consistent
// whole-map view (spec.md §3).
func (a *Aggregator) State() *models.FeedState {
	return a.state
}

// Run drains rawCh until it closes or ctx is cancelled, processing one
// snapshot at a time (single-consumer, arrival order preserved).
func (a *Aggregator) Run(ctx context.Context, rawCh <-chan models.BookSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-rawCh:
			if !ok {
				return
			}
			a.process(snap)
		}
	}
}

func (a *Aggregator) process(snap models.BookSnapshot) {
	target := a.targetNotional(snap.Instrument)
	if target <= 0 {
		return
	}

	start := time.Now()
	bidRes := VWAPBid(&snap, target)
	askRes := VWAPAsk(&snap, target)
	metrics.VWAPLatency.Observe(time.Since(start).Seconds())

	if !bidRes.Filled || !askRes.Filled {
		metrics.SnapshotsDropped.WithLabelValues(snap.Venue, snap.Instrument, "insufficient_liquidity").Inc()
		return
	}

	q := models.Quote{
		Venue:       snap.Venue,
		Instrument:  snap.Instrument,
		VWAPBid:     bidRes.Price,
		VWAPAsk:     askRes.Price,
		TimestampMs: snap.TimestampMs,
	}

	if changed := a.state.Set(q); !changed {
		return
	}

	delta := models.FeedDelta{Changed: []models.Quote{q}}
	select {
	case a.deltaCh <- delta:
	default:
		// Channel full: measure the wait but still block — dropping is
		// not permitted (spec.md §5); staleness is the ingestor's job.
		blockStart := time.Now()
		a.deltaCh <- delta
		metrics.ChannelBlockedSeconds.WithLabelValues("feed_deltas").Observe(time.Since(blockStart).Seconds())
	}
}
