// Package risk implements the RiskGuard: a stop-loss watchdog that
// runs alongside the PositionManager and force-closes positions whose
// combined unrealized PnL has breached a configured threshold.
package risk

import (
	"context"

	"go.uber.org/zap"

	"arbitrage/internal/models"
	"arbitrage/pkg/utils"
)

// PositionSource is the subset of *position.Manager the guard needs.
// Declared here (rather than importing internal/position directly) to
// avoid a risk<->position import cycle — position.Manager satisfies
// this interface as-is.
type PositionSource interface {
	Positions() []models.Position
	RequestClose(ctx context.Context, instrument string, reason models.CloseReason) error
}

// Quoter gives the guard read access to current VWAP quotes (the long
// leg is priced at its venue's VWAPBid, the short leg at its venue's
// VWAPAsk), the same
// FeedState the SpreadAnalyzer reads — never venue mark price, to
// avoid an extra round trip per spec.md §4.7.
type Quoter interface {
	Get(venue, instrument string) (models.Quote, bool)
}

// Guard evaluates combined PnL on every spread delta and requests a
// close, through the PositionManager's normal lifecycle, when it
// breaches -stop_loss_pct.
type Guard struct {
	positions   PositionSource
	stopLossPct float64
	log         *zap.Logger
}

// NewGuard builds a RiskGuard. stopLossPct is given as a positive
// magnitude (e.g. 5.0 means "close at -5% combined PnL").
func NewGuard(positions PositionSource, stopLossPct float64, log *zap.Logger) *Guard {
	return &Guard{positions: positions, stopLossPct: stopLossPct, log: log}
}

// Evaluate checks every open position against feed and requests a
// close for any that has breached the stop loss. Called once per
// feed delta, before the PositionManager's own close/open pass, so
// risk takes priority over spread_based/time_based close reasons
// (spec.md §4.7 "risk first").
func (g *Guard) Evaluate(ctx context.Context, feed Quoter) {
	if g.stopLossPct <= 0 {
		return
	}
	for _, pos := range g.positions.Positions() {
		buyQuote, ok := feed.Get(pos.BuyVenue, pos.Instrument)
		if !ok {
			continue
		}
		sellQuote, ok := feed.Get(pos.SellVenue, pos.Instrument)
		if !ok {
			continue
		}

		pnlPct := pos.TotalPnlPct(buyQuote.VWAPBid, sellQuote.VWAPAsk)
		if !utils.IsStopLossHit(pnlPct, g.stopLossPct) {
			continue
		}

		g.log.Warn("risk guard: stop loss breached, requesting close",
			zap.String("instrument", pos.Instrument),
			zap.Float64("pnl_pct", pnlPct),
			zap.Float64("stop_loss_pct", g.stopLossPct))

		if err := g.positions.RequestClose(ctx, pos.Instrument, models.CloseReasonRisk); err != nil {
			g.log.Error("risk guard: close request failed",
				zap.String("instrument", pos.Instrument), zap.Error(err))
		}
	}
}
