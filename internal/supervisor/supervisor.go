// Package supervisor owns the task-group lifecycle for the whole
// engine: it starts every long-running component, wires the channels
// between them, and brings everything down on cancellation (spec.md
// §4.6, SPEC_FULL.md §4.6).
package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/feed"
	"arbitrage/internal/metrics"
	"arbitrage/internal/models"
	"arbitrage/internal/position"
	"arbitrage/internal/refresh"
	"arbitrage/internal/risk"
	"arbitrage/internal/spread"
	"arbitrage/internal/status"
	"arbitrage/internal/venue"
)

// VenueInstruments is the set of instruments subscribed per venue.
type VenueInstruments map[string][]string

// Config parametrizes the supervisor's wiring; each field maps to a
// spec.md §6 configuration knob.
type Config struct {
	Depth                int
	StaleThreshold       time.Duration
	ReconnectBackoff     time.Duration
	RawChannelSize       int
	DeltaChannelSize     int
	BalanceRefreshEvery  time.Duration
	FundingRefreshEvery  time.Duration
	StatusReportEvery    time.Duration

	Position    position.Config
	StopLossPct float64
	MaxAgeMs    int64
}

// Supervisor wires ingestors, the aggregator, the spread analyzer, the
// position manager, the risk guard, the refreshers and the status
// reporter into one cancellable task group.
type Supervisor struct {
	clients map[string]venue.VenueClient
	markets map[string]map[string]venue.MarketInfo
	venues  VenueInstruments
	cfg     Config
	log     *zap.Logger

	balances *models.BalanceMap
	funding  *models.FundingMap

	aggregator *feed.Aggregator
	analyzer   *spread.Analyzer
	manager    *position.Manager
	guard      *risk.Guard
	reporter   *status.Reporter
	staleness  *feed.StalenessTracker

	spreadsMu sync.Mutex
	spreads   []models.SpreadData
}

// New builds a Supervisor ready to Run. clients/markets/venues must
// share the same venue-name keys.
func New(clients map[string]venue.VenueClient, markets map[string]map[string]venue.MarketInfo, venues VenueInstruments, cfg Config, log *zap.Logger) *Supervisor {
	s := &Supervisor{
		clients: clients,
		markets: markets,
		venues:  venues,
		cfg:     cfg,
		log:     log,

		balances:  models.NewBalanceMap(),
		funding:   models.NewFundingMap(),
		staleness: feed.NewStalenessTracker(),
	}

	s.manager = position.NewManager(clients, markets, s.balances, s.funding, cfg.Position, log)
	s.guard = risk.NewGuard(s.manager, cfg.StopLossPct, log)

	fees := func(v, instrument string) float64 {
		if instruments, ok := markets[v]; ok {
			return instruments[instrument].TakerFee
		}
		return 0
	}
	s.analyzer = spread.NewAnalyzer(fees, cfg.MaxAgeMs)
	s.reporter = status.NewReporter(s.manager, s.balances, s.staleness, s, cfg.StatusReportEvery, log)
	s.manager.SetEventSink(s.reporter)

	return s
}

// Recent implements status.SpreadObservations.
func (s *Supervisor) Recent() []models.SpreadData {
	s.spreadsMu.Lock()
	defer s.spreadsMu.Unlock()
	out := make([]models.SpreadData, len(s.spreads))
	copy(out, s.spreads)
	return out
}

func (s *Supervisor) recordSpreads(spreads []models.SpreadData) {
	s.spreadsMu.Lock()
	s.spreads = spreads
	s.spreadsMu.Unlock()
}

// Run starts every task and blocks until ctx is cancelled, then waits
// for all tasks to return before closing every venue client.
func (s *Supervisor) Run(ctx context.Context) {
	var wg sync.WaitGroup

	rawCh := make(chan models.BookSnapshot, s.cfg.RawChannelSize)
	deltaCh := make(chan models.FeedDelta, s.cfg.DeltaChannelSize)
	targetNotional := func(instrument string) float64 {
		return s.cfg.Position.UsdAmount * float64(s.cfg.Position.Leverage)
	}
	s.aggregator = feed.NewAggregator(targetNotional, deltaCh, s.log)

	for venueName, instruments := range s.venues {
		client, ok := s.clients[venueName]
		if !ok {
			continue
		}
		for _, instrument := range instruments {
			ing := feed.NewIngestor(client, instrument, feed.IngestorConfig{
				Depth:            s.cfg.Depth,
				StaleThreshold:   s.cfg.StaleThreshold,
				ReconnectBackoff: s.cfg.ReconnectBackoff,
			}, rawCh, s.staleness, s.log)
			wg.Add(1)
			go func(ing *feed.Ingestor) {
				defer wg.Done()
				ing.Run(ctx)
			}(ing)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.aggregator.Run(ctx, rawCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runDecisionLoop(ctx, deltaCh)
	}()

	balanceRefresher := refresh.NewBalanceRefresher(s.clients, s.balances, s.cfg.BalanceRefreshEvery, s.log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		balanceRefresher.Run(ctx)
	}()

	fundingRefresher := refresh.NewFundingRefresher(s.clients, s.funding, s.cfg.FundingRefreshEvery, s.log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		fundingRefresher.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.reporter.Run(ctx)
	}()

	<-ctx.Done()
	wg.Wait()

	for name, client := range s.clients {
		if err := client.Close(); err != nil {
			s.log.Warn("venue close failed", zap.String("venue", name), zap.Error(err))
		}
	}
}

// runDecisionLoop is the single PositionManager consumer (spec.md
// §5): it reads feed deltas, re-analyzes the whole FeedState (not just
// the delta, since a spread pairs two venues that may not have both
// just changed), runs the risk guard ahead of the normal close/open
// pass, and feeds the result to the PositionManager.
func (s *Supervisor) runDecisionLoop(ctx context.Context, deltaCh <-chan models.FeedDelta) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-deltaCh:
			if !ok {
				return
			}
			// Snapshot once: the aggregator goroutine mutates the live
			// FeedState concurrently (FeedState.Set on every incoming
			// snapshot), so handing it directly to the analyzer/guard
			// would be a concurrent map read+write. The analyzer and
			// the guard must also see the same consistent view.
			feed := s.aggregator.State().Snapshot()

			spreads := s.analyzer.Analyze(feed)
			s.recordSpreads(spreads)

			for _, sp := range spreads {
				if sp.NetSpreadPct >= s.cfg.Position.OpenNetSpreadThresholdPct {
					metrics.OpportunitiesDetected.WithLabelValues(sp.Instrument).Inc()
				}
			}

			s.guard.Evaluate(ctx, feed)
			s.manager.ProcessSpreads(ctx, spreads)
		}
	}
}
