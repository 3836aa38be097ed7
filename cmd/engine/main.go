package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/config"
	"arbitrage/internal/logging"
	"arbitrage/internal/position"
	"arbitrage/internal/supervisor"
	"arbitrage/internal/venue"
	"arbitrage/internal/venue/simulator"
)

// demoVenues lists the venues wired for a local run. A real deployment
// would instead resolve these from operator-provided config; concrete
// exchange SDK adapters are out of scope here (spec.md §1) so every
// venue is backed by the loopback simulator.
var demoVenues = []string{"A", "B"}

var demoInstruments = map[string]float64{
	"BTCUSDT": 50000,
	"ETHUSDT": 3000,
}

func main() {
	cfg, err := config.Load(demoVenues)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logger.Sync()

	derivedKey, err := cfg.DerivedEncryptionKey()
	if err != nil {
		logger.Fatal("deriving encryption key", zap.Error(err))
	}

	clients := make(map[string]venue.VenueClient, len(demoVenues))
	markets := make(map[string]map[string]venue.MarketInfo, len(demoVenues))
	venueInstruments := supervisor.VenueInstruments{}
	servers := make([]*simulator.Server, 0, len(demoVenues))

	for _, name := range demoVenues {
		vc := cfg.Venues[name]
		apiKey, secret, _, err := vc.Decrypt(derivedKey)
		if err != nil {
			logger.Fatal("decrypting venue credentials", zap.String("venue", name), zap.Error(err))
		}
		logger.Info("loaded venue credentials", zap.String("venue", name), zap.Int("api_key_len", len(apiKey)), zap.Int("secret_len", len(secret)))

		mids := jitteredMids(name)
		srv := simulator.NewServer(mids, cfg.Feed.OrderbookDepths[name], 250*time.Millisecond)
		servers = append(servers, srv)

		client := simulator.NewClient(name, srv, 10000, 0.0006, 10, 0.001, logger)
		clients[name] = client

		instruments := make(map[string]venue.MarketInfo, len(demoInstruments))
		venueSymbols := make([]string, 0, len(demoInstruments))
		for symbol := range demoInstruments {
			instruments[symbol] = venue.MarketInfo{
				Symbol:      symbol,
				TakerFee:    0.0006,
				MinNotional: 10,
				QtyStep:     0.001,
				PriceStep:   0.1,
				MaxLeverage: 20,
			}
			venueSymbols = append(venueSymbols, symbol)
		}
		markets[name] = instruments
		venueInstruments[name] = venueSymbols
	}
	defer func() {
		for _, srv := range servers {
			srv.Close()
		}
	}()

	sup := supervisor.New(clients, markets, venueInstruments, supervisor.Config{
		Depth:               10,
		StaleThreshold:      cfg.Feed.WSLatencyThreshold,
		ReconnectBackoff:    cfg.Feed.DataFeedRetry,
		RawChannelSize:      256,
		DeltaChannelSize:    256,
		BalanceRefreshEvery: cfg.Feed.BalanceFetchInterval,
		FundingRefreshEvery: cfg.Feed.FundingRateFetchInterval,
		StatusReportEvery:   cfg.Trading.StatusReportInterval,
		MaxAgeMs:            cfg.Trading.AnalyzeArbitrageMaxDataAge.Milliseconds(),
		StopLossPct:         cfg.Trading.StopLossPct,
		Position: position.Config{
			OpenNetSpreadThresholdPct:  cfg.Trading.OpenNetSpreadThresholdPct,
			CloseRawSpreadThresholdPct: cfg.Trading.CloseRawSpreadThresholdPct,
			CloseAfter:                 cfg.Trading.ClosePositionAfter,
			UsdAmount:                  cfg.Position.UsdAmount,
			Leverage:                   cfg.Position.Leverage,
			SizeBufferFactor:           cfg.Position.SizeBufferFactor,
			OpenMaxDataAgeMs:           cfg.Trading.OpenPositionMaxDataAge.Milliseconds(),
			CloseMaxDataAgeMs:          cfg.Trading.ClosePositionMaxDataAge.Milliseconds(),
			OrderType:                  venue.OrderType(cfg.Trading.OrderType),
			TrailingStopMode:           cfg.Position.TrailingStopMode,
			ConsiderFunding:            cfg.Trading.ConsiderFunding,
		},
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	logger.Info("engine started", zap.Strings("venues", demoVenues))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	select {
	case <-done:
		logger.Info("engine stopped cleanly")
	case <-time.After(30 * time.Second):
		logger.Warn("engine shutdown timed out")
	}
}

// jitteredMids gives each simulated venue a slightly different
// starting mid price per instrument so a cross-venue spread exists
// from the first tick rather than only appearing once the random walk
// drifts the two venues apart.
func jitteredMids(venueName string) map[string]float64 {
	mids := make(map[string]float64, len(demoInstruments))
	skew := 1.0
	if strings.EqualFold(venueName, "B") {
		skew = 1.004
	}
	for symbol, base := range demoInstruments {
		mids[symbol] = base * skew
	}
	return mids
}
