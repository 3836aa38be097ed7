// Package refresh implements the periodic balance and funding-rate
// refreshers: ticker-driven tasks that fetch every venue concurrently
// and replace the shared maps wholesale (spec.md §4.5, §5 — the only
// writers of models.BalanceMap/FundingMap besides the PositionManager's
// Reserve/Release path).
package refresh

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/metrics"
	"arbitrage/internal/models"
	"arbitrage/internal/venue"
	"arbitrage/pkg/ratelimit"
	"arbitrage/pkg/retry"
)

// venueFetchRetry governs retries of a single venue's FetchBalance /
// FetchFundingRates call within one tick: a couple of quick attempts
// only, since a refresher that blocks past its own interval falls
// behind and the next tick will try again anyway.
var venueFetchRetry = retry.Config{
	MaxRetries:   2,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     1 * time.Second,
	Multiplier:   2.0,
	JitterFactor: 0.2,
	RetryIf:      retry.RetryIfNotContext,
}

// BalanceRefresher polls FetchBalance on every venue on a fixed
// interval and replaces models.BalanceMap wholesale. A failed fetch on
// one venue is logged and retried next tick; it never aborts the
// refresh of the other venues and is never fatal (spec.md §4.5). Each
// venue is additionally rate limited so a burst of retries across
// many instruments never exceeds the venue's own request budget.
type BalanceRefresher struct {
	clients  map[string]venue.VenueClient
	balances *models.BalanceMap
	interval time.Duration
	limiter  *ratelimit.MultiLimiter
	log      *zap.Logger
}

func NewBalanceRefresher(clients map[string]venue.VenueClient, balances *models.BalanceMap, interval time.Duration, log *zap.Logger) *BalanceRefresher {
	limiter := ratelimit.NewMultiLimiter()
	for name := range clients {
		limiter.Add(name, 10, 20)
	}
	return &BalanceRefresher{clients: clients, balances: balances, interval: interval, limiter: limiter, log: log}
}

// Run blocks until ctx is cancelled, ticking every interval.
func (r *BalanceRefresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx) // prime the map before the first tick fires
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *BalanceRefresher) tick(ctx context.Context) {
	next := make(map[string]float64, len(r.clients))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, client := range r.clients {
		wg.Add(1)
		go func(name string, client venue.VenueClient) {
			defer wg.Done()
			if err := r.limiter.Wait(ctx, name); err != nil {
				r.log.Warn("balance refresh rate limit wait cancelled", zap.String("venue", name), zap.Error(err))
				return
			}
			bal, err := retry.DoWithResult(ctx, func() (float64, error) {
				return client.FetchBalance(ctx)
			}, venueFetchRetry)
			if err != nil {
				r.log.Warn("balance refresh failed", zap.String("venue", name), zap.Error(err))
				return
			}
			mu.Lock()
			next[name] = bal
			mu.Unlock()
			metrics.BalanceGauge.WithLabelValues(name).Set(bal)
		}(name, client)
	}
	wg.Wait()

	// A venue that failed this tick keeps its previous balance rather
	// than being zeroed out, so a transient fetch error never makes
	// the PositionManager think a venue has no funds.
	prev := r.balances.Snapshot()
	for name, bal := range prev {
		if _, ok := next[name]; !ok {
			next[name] = bal
		}
	}
	r.balances.Replace(next)
}

// FundingRefresher polls FetchFundingRates on every venue and
// replaces models.FundingMap wholesale, same failure policy and
// rate-limiting as BalanceRefresher.
type FundingRefresher struct {
	clients  map[string]venue.VenueClient
	funding  *models.FundingMap
	interval time.Duration
	limiter  *ratelimit.MultiLimiter
	log      *zap.Logger
}

func NewFundingRefresher(clients map[string]venue.VenueClient, funding *models.FundingMap, interval time.Duration, log *zap.Logger) *FundingRefresher {
	limiter := ratelimit.NewMultiLimiter()
	for name := range clients {
		limiter.Add(name, 10, 20)
	}
	return &FundingRefresher{clients: clients, funding: funding, interval: interval, limiter: limiter, log: log}
}

func (r *FundingRefresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *FundingRefresher) tick(ctx context.Context) {
	next := make(map[string]map[string]float64, len(r.clients))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, client := range r.clients {
		wg.Add(1)
		go func(name string, client venue.VenueClient) {
			defer wg.Done()
			if err := r.limiter.Wait(ctx, name); err != nil {
				r.log.Warn("funding refresh rate limit wait cancelled", zap.String("venue", name), zap.Error(err))
				return
			}
			rates, err := retry.DoWithResult(ctx, func() (map[string]float64, error) {
				return client.FetchFundingRates(ctx)
			}, venueFetchRetry)
			if err != nil {
				r.log.Warn("funding refresh failed", zap.String("venue", name), zap.Error(err))
				return
			}
			mu.Lock()
			next[name] = rates
			mu.Unlock()
		}(name, client)
	}
	wg.Wait()
	r.funding.Replace(next)
}
