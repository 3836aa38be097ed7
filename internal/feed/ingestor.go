package feed

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"arbitrage/internal/metrics"
	"arbitrage/internal/models"
	"arbitrage/internal/venue"
)

// IngestorConfig parametrizes one (venue, instrument) subscription
// (spec.md §4.1).
type IngestorConfig struct {
	Depth             int
	StaleThreshold    time.Duration // ws_latency_threshold
	ReconnectBackoff  time.Duration // data_feed_retry_seconds
}

// Ingestor owns a single live subscription and forwards snapshots onto
// the shared bounded raw channel. Never fatal: transport errors and
// stalls just trigger another subscribe attempt.
type Ingestor struct {
	client     venue.VenueClient
	instrument string
	cfg        IngestorConfig
	rawCh      chan<- models.BookSnapshot
	log        *zap.Logger
	breaker    *gobreaker.CircuitBreaker
	staleness  *StalenessTracker
}

// NewIngestor builds an Ingestor. rawCh is the bounded raw-snapshots
// channel shared by all ingestors feeding one FeedAggregator;
// producers block on a full channel rather than drop (spec.md §5).
// staleness may be nil, in which case the subscription's age is simply
// not reported by the StatusReporter.
func NewIngestor(client venue.VenueClient, instrument string, cfg IngestorConfig, rawCh chan<- models.BookSnapshot, staleness *StalenessTracker, log *zap.Logger) *Ingestor {
	if cfg.Depth <= 0 {
		cfg.Depth = 50
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 5 * time.Second
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 2 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        client.Name() + ":" + instrument + ":watch",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.ReconnectBackoff * 4,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Ingestor{client: client, instrument: instrument, cfg: cfg, rawCh: rawCh, log: log, breaker: breaker, staleness: staleness}
}

// Run subscribes forever until ctx is cancelled. Cancellation is
// cooperative: it's observed at the subscribe call, the per-message
// receive, and the raw-channel push.
func (in *Ingestor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		metrics.BreakerState.WithLabelValues(in.client.Name(), "watch_order_book").Set(float64(in.breaker.State()))

		chIface, err := in.breaker.Execute(func() (interface{}, error) {
			return in.client.WatchOrderBook(ctx, in.instrument, in.cfg.Depth)
		})
		if err != nil {
			if in.log != nil {
				in.log.Warn("subscribe failed", zap.String("venue", in.client.Name()), zap.String("instrument", in.instrument), zap.Error(err))
			}
			if !in.sleepBackoff(ctx) {
				return
			}
			continue
		}

		bookCh := chIface.(<-chan venue.BookSnapshot)
		if in.consume(ctx, bookCh) {
			return // ctx cancelled
		}
		metrics.FeedReconnects.WithLabelValues(in.client.Name(), in.instrument).Inc()
	}
}

// consume drains one subscription's channel until it closes
// (transport drop), the staleness watchdog fires, or ctx is done.
// Returns true iff ctx is the reason it returned.
func (in *Ingestor) consume(ctx context.Context, bookCh <-chan venue.BookSnapshot) bool {
	lastMsg := time.Now()

	for {
		remaining := in.cfg.StaleThreshold - time.Since(lastMsg)
		if remaining < 0 {
			remaining = 0
		}
		watchdog := time.NewTimer(remaining)

		select {
		case <-ctx.Done():
			watchdog.Stop()
			return true

		case <-watchdog.C:
			// Gap since the last delivered snapshot exceeded the
			// threshold: force a reconnect by abandoning this channel.
			metrics.SnapshotsDropped.WithLabelValues(in.client.Name(), in.instrument, "stale_watchdog").Inc()
			return false

		case snap, ok := <-bookCh:
			watchdog.Stop()
			if !ok {
				return false // transport dropped the connection
			}

			now := time.Now()
			metrics.FeedIngestLatency.WithLabelValues(in.client.Name(), in.instrument).Observe(now.Sub(lastMsg).Seconds())
			lastMsg = now
			in.staleness.Touch(in.client.Name(), in.instrument)

			if snap.Empty() {
				metrics.SnapshotsDropped.WithLabelValues(in.client.Name(), in.instrument, "empty_book").Inc()
				continue
			}

			out := models.BookSnapshot{
				Venue:       in.client.Name(),
				Instrument:  snap.Instrument,
				TimestampMs: snap.TimestampMs,
			}
			out.Bids = make([]models.PriceLevel, len(snap.Bids))
			for i, l := range snap.Bids {
				out.Bids[i] = models.PriceLevel{Price: l.Price, Size: l.Size}
			}
			out.Asks = make([]models.PriceLevel, len(snap.Asks))
			for i, l := range snap.Asks {
				out.Asks[i] = models.PriceLevel{Price: l.Price, Size: l.Size}
			}

			select {
			case in.rawCh <- out:
			case <-ctx.Done():
				return true
			}
		}
	}
}

func (in *Ingestor) sleepBackoff(ctx context.Context) bool {
	select {
	case <-time.After(in.cfg.ReconnectBackoff):
		return true
	case <-ctx.Done():
		return false
	}
}
