// Package position implements the PositionManager: the control core
// that decides which positions to open and close on every spread
// delta, and sequences paired, venue-concurrent order placement.
package position

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/models"
	"arbitrage/internal/venue"
)

// ErrInsufficientBalance is returned by openPosition when either leg's
// venue lacks the reserve required by size_buffer_factor.
var ErrInsufficientBalance = errors.New("insufficient reserved balance")

// EventSink receives the structured lifecycle events the
// PositionManager can't return synchronously to its own caller: an
// orphaned leg on open, or a lifecycle error such as a failed close
// leg (the position is removed all the same). Declared here rather than importing internal/status, to
// avoid a position<->status import cycle — *status.Reporter satisfies
// this interface as-is.
type EventSink interface {
	ReportOrphanedLeg(instrument, filledVenue string, cause error)
	ReportLifecycleError(instrument, stage string, cause error)
}

// Config is the subset of spec.md §6's configuration surface the
// PositionManager consumes directly.
type Config struct {
	OpenNetSpreadThresholdPct  float64
	CloseRawSpreadThresholdPct float64
	CloseAfter                 time.Duration

	UsdAmount        float64
	Leverage         int
	SizeBufferFactor float64
	TrailingStopMode bool

	ConsiderFunding   bool
	OpenMaxDataAgeMs  int64
	CloseMaxDataAgeMs int64

	OrderType venue.OrderType // market or limit, per order_type
}

// Manager owns the `positions` map and the local balance reservation
// bookkeeping. Per spec.md §3, it is the single mutator of both.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]*models.Position // keyed by instrument

	clients  map[string]venue.VenueClient
	markets  map[string]map[string]venue.MarketInfo // venue -> instrument -> MarketInfo
	balances *models.BalanceMap
	funding  *models.FundingMap

	cfg Config
	log *zap.Logger

	// events is nil until SetEventSink is called; every reporting call
	// site falls back to plain logging when it's unset so the manager
	// works standalone in tests.
	events EventSink

	// nowFunc is overridable in tests; production always observes
	// monotonic-ish wall clock via time.Now (spec.md §9 timebase note).
	nowFunc func() time.Time
}

// NewManager builds a PositionManager.
func NewManager(
	clients map[string]venue.VenueClient,
	markets map[string]map[string]venue.MarketInfo,
	balances *models.BalanceMap,
	funding *models.FundingMap,
	cfg Config,
	log *zap.Logger,
) *Manager {
	return &Manager{
		positions: make(map[string]*models.Position),
		clients:   clients,
		markets:   markets,
		balances:  balances,
		funding:   funding,
		cfg:       cfg,
		log:       log,
		nowFunc:   time.Now,
	}
}

// SetEventSink wires the StatusReporter (or any compatible sink) in
// after construction, since the Supervisor builds the reporter from
// the already-built Manager. Safe to call once before Run; not
// goroutine-safe against concurrent ProcessSpreads calls.
func (m *Manager) SetEventSink(sink EventSink) {
	m.events = sink
}

func (m *Manager) reportOrphanedLeg(instrument, filledVenue string, cause error) {
	if m.events != nil {
		m.events.ReportOrphanedLeg(instrument, filledVenue, cause)
		return
	}
	m.log.Error("orphaned leg", zap.String("instrument", instrument), zap.String("filled_venue", filledVenue), zap.Error(cause))
}

func (m *Manager) reportLifecycleError(instrument, stage string, cause error) {
	if m.events != nil {
		m.events.ReportLifecycleError(instrument, stage, cause)
		return
	}
	m.log.Warn("position lifecycle error", zap.String("instrument", instrument), zap.String("stage", stage), zap.Error(cause))
}

// Positions returns a point-in-time snapshot of open positions, for
// the StatusReporter and RiskGuard.
func (m *Manager) Positions() []models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// ProcessSpreads is the PositionManager's per-delta decision point:
// close candidates are evaluated and executed before any open is
// considered (spec.md §4.4 tie-breaking), and the whole pass runs to
// completion before the next delta is processed (single consumer,
// spec.md §5).
func (m *Manager) ProcessSpreads(ctx context.Context, spreads []models.SpreadData) {
	byPair := make(map[string]models.SpreadData, len(spreads))
	for _, s := range spreads {
		byPair[pairKey(s.Instrument, s.BuyVenue, s.SellVenue)] = s
	}

	closedThisCycle := m.runCloses(ctx, byPair)
	m.runOpens(ctx, spreads, closedThisCycle)
}

func pairKey(instrument, buyVenue, sellVenue string) string {
	return instrument + "|" + buyVenue + "|" + sellVenue
}

func nowMs() int64 { return time.Now().UnixMilli() }

// runCloses evaluates the close predicate for every open position and
// executes qualifying closes, returning the set of instruments closed
// this cycle (excluded from the open pass per the tie-break rule).
func (m *Manager) runCloses(ctx context.Context, byPair map[string]models.SpreadData) map[string]bool {
	m.mu.RLock()
	candidates := make([]*models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		candidates = append(candidates, p)
	}
	m.mu.RUnlock()

	closed := make(map[string]bool)
	for _, pos := range candidates {
		s, ok := byPair[pairKey(pos.Instrument, pos.BuyVenue, pos.SellVenue)]
		if !ok {
			continue // no fresh quote for this pair this cycle
		}

		fundingAdj := m.fundingAdj(pos.Instrument, pos.BuyVenue, pos.SellVenue)
		ageOK := nowMs()-s.MinTimestampMs < m.cfg.CloseMaxDataAgeMs
		if !ageOK {
			continue
		}

		timeBased := m.nowFunc().Sub(pos.OpenedAt) >= m.cfg.CloseAfter
		spreadBased := s.RawSpreadPct-fundingAdj <= m.cfg.CloseRawSpreadThresholdPct

		if !timeBased && !spreadBased {
			continue
		}

		reason := models.CloseReasonTime
		if spreadBased {
			reason = models.CloseReasonSpread
		}

		if err := m.closePosition(ctx, pos, reason); err != nil {
			m.log.Error("close failed", zap.String("instrument", pos.Instrument), zap.Error(err))
			continue
		}
		closed[pos.Instrument] = true
	}
	return closed
}

// runOpens picks, per instrument, the spread with the highest net
// spread among those clearing the open predicate, and attempts to
// open it.
func (m *Manager) runOpens(ctx context.Context, spreads []models.SpreadData, closedThisCycle map[string]bool) {
	best := make(map[string]models.SpreadData)
	bestNet := make(map[string]float64)
	for _, s := range spreads {
		if closedThisCycle[s.Instrument] {
			continue
		}
		if m.hasPosition(s.Instrument) {
			continue
		}

		fundingAdj := m.fundingAdj(s.Instrument, s.BuyVenue, s.SellVenue)
		effectiveNet := s.NetSpreadPct - fundingAdj
		ageOK := nowMs()-s.MinTimestampMs < m.cfg.OpenMaxDataAgeMs

		if effectiveNet < m.cfg.OpenNetSpreadThresholdPct || !ageOK {
			continue
		}

		if cur, ok := bestNet[s.Instrument]; !ok || effectiveNet > cur {
			best[s.Instrument] = s
			bestNet[s.Instrument] = effectiveNet
		}
	}

	for instrument, s := range best {
		if err := m.openPosition(ctx, s); err != nil {
			m.log.Warn("open skipped", zap.String("instrument", instrument), zap.Error(err))
		}
	}
}

func (m *Manager) hasPosition(instrument string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.positions[instrument]
	return ok
}

func (m *Manager) fundingAdj(instrument, buyVenue, sellVenue string) float64 {
	if !m.cfg.ConsiderFunding {
		return 0
	}
	return (m.funding.Get(buyVenue, instrument) - m.funding.Get(sellVenue, instrument)) * 100
}

// RequestClose lets the RiskGuard (or any other supervising component)
// force-close a position through the same lifecycle path a normal
// close uses — no bypass of order placement or map mutation.
func (m *Manager) RequestClose(ctx context.Context, instrument string, reason models.CloseReason) error {
	m.mu.RLock()
	pos, ok := m.positions[instrument]
	m.mu.RUnlock()
	if !ok {
		return nil // already closed: idempotent
	}
	return m.closePosition(ctx, pos, reason)
}

// minNotionalFor returns the configured min-notional for (venue,
// instrument), or 0 if unknown.
func (m *Manager) minNotionalFor(venueName, instrument string) float64 {
	instruments, ok := m.markets[venueName]
	if !ok {
		return 0
	}
	return instruments[instrument].MinNotional
}
