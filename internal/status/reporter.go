// Package status implements the StatusReporter: a periodic structured
// snapshot of engine health, replacing the teacher's DB-backed
// notification/stats services with a stateless log-and-metrics sink
// (spec.md §7 "structured status events"; SPEC_FULL.md §4.8).
package status

import (
	"context"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/models"
)

// PositionSource supplies the active position snapshot.
type PositionSource interface {
	Positions() []models.Position
}

// FeedStaleness reports the age, in milliseconds, of the last
// snapshot seen for a (venue, instrument) subscription.
type FeedStaleness interface {
	StalenessMs() map[string]int64 // key: "venue|instrument"
}

// SpreadObservations holds the spread readings of the most recent
// analysis pass, replaced by the Supervisor's consumer loop on every
// pass and kept purely for reporting.
type SpreadObservations interface {
	Recent() []models.SpreadData
}

// Reporter logs one structured snapshot per tick and is the sink for
// ad hoc structured events (position lifecycle errors, orphaned-leg
// criticals) emitted elsewhere in the engine.
type Reporter struct {
	positions PositionSource
	balances  *models.BalanceMap
	staleness FeedStaleness
	spreads   SpreadObservations
	interval  time.Duration
	log       *zap.Logger
}

func NewReporter(
	positions PositionSource,
	balances *models.BalanceMap,
	staleness FeedStaleness,
	spreads SpreadObservations,
	interval time.Duration,
	log *zap.Logger,
) *Reporter {
	return &Reporter{
		positions: positions,
		balances:  balances,
		staleness: staleness,
		spreads:   spreads,
		interval:  interval,
		log:       log,
	}
}

// Run blocks, emitting one snapshot every interval, until ctx is
// cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.snapshot()
		}
	}
}

func (r *Reporter) snapshot() {
	positions := r.positions.Positions()
	fields := []zap.Field{
		zap.Int("active_positions", len(positions)),
		zap.Any("balances", r.balances.Snapshot()),
	}
	if r.staleness != nil {
		fields = append(fields, zap.Any("feed_staleness_ms", r.staleness.StalenessMs()))
	}
	if r.spreads != nil {
		recent := r.spreads.Recent()
		fields = append(fields, zap.Int("recent_spread_samples", len(recent)))
		if len(recent) > 0 {
			fields = append(fields, zap.Float64("last_net_spread_pct", recent[len(recent)-1].NetSpreadPct))
		}
	}
	r.log.Info("status snapshot", fields...)
}

// ReportOrphanedLeg emits the critical structured event spec.md §7
// requires when an open leaves one leg filled and the other failed.
func (r *Reporter) ReportOrphanedLeg(instrument, filledVenue string, cause error) {
	r.log.Error("orphaned leg",
		zap.String("severity", "critical"),
		zap.String("instrument", instrument),
		zap.String("filled_venue", filledVenue),
		zap.Error(cause))
}

// ReportLifecycleError emits a non-critical position lifecycle error
// (e.g. a close leg that failed; the position is removed regardless).
func (r *Reporter) ReportLifecycleError(instrument, stage string, cause error) {
	r.log.Warn("position lifecycle error",
		zap.String("instrument", instrument),
		zap.String("stage", stage),
		zap.Error(cause))
}
