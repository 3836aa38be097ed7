package simulator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/venue"
)

// Client is a venue.VenueClient backed by a loopback Server. It holds
// a trivial internal ledger (balance, open contracts) so the
// PositionManager's full open/close protocol can run against it in
// tests without a real exchange.
type Client struct {
	name   string
	server *Server
	log    *zap.Logger
	cfg    ReconnectConfig

	mu        sync.Mutex
	balance   float64
	contracts map[string]float64 // instrument -> signed contracts (+long, -short)
	orderSeq  int64

	taker       float64
	minNotional float64
	qtyStep     float64
}

// NewClient wires a Client to a loopback Server.
func NewClient(name string, server *Server, startingBalance, takerFee, minNotional, qtyStep float64, log *zap.Logger) *Client {
	return &Client{
		name:        name,
		server:      server,
		log:         log,
		cfg:         DefaultReconnectConfig(),
		balance:     startingBalance,
		contracts:   make(map[string]float64),
		taker:       takerFee,
		minNotional: minNotional,
		qtyStep:     qtyStep,
	}
}

func (c *Client) Name() string { return c.name }

// SetMinNotional overrides the per-order minimum notional enforced by
// CreateOrder — a test hook for forcing one leg of a paired open to
// fail while the other fills.
func (c *Client) SetMinNotional(minNotional float64) {
	c.mu.Lock()
	c.minNotional = minNotional
	c.mu.Unlock()
}

func (c *Client) LoadTimeDifference(ctx context.Context) (time.Duration, error) {
	return 0, nil
}

func (c *Client) LoadMarkets(ctx context.Context) (map[string]venue.MarketInfo, error) {
	return map[string]venue.MarketInfo{}, nil
}

// WatchOrderBook dials the loopback server and translates its frames
// into venue.BookSnapshot values on a channel that is closed whenever
// the underlying connection drops (spec.md §4.1: FeedIngestor detects
// the close and resubscribes).
func (c *Client) WatchOrderBook(ctx context.Context, instrument string, depth int) (<-chan venue.BookSnapshot, error) {
	out := make(chan venue.BookSnapshot, 64)

	mgr := NewReconnectManager(c.name, c.server.URL(), c.cfg, c.log)
	var closed int32

	mgr.SetOnConnect(func() {
		mgr.AddSubscription(subscribeMsg{Op: "subscribe", Instrument: instrument})
	})
	mgr.SetOnMessage(func(raw []byte) {
		var snap venue.BookSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return
		}
		select {
		case out <- snap:
		case <-ctx.Done():
		}
	})
	mgr.SetOnDisconnect(func(err error) {
		if atomic.CompareAndSwapInt32(&closed, 0, 1) {
			close(out)
		}
	})

	if err := mgr.Connect(); err != nil {
		return nil, &venue.Error{Venue: c.name, Message: "connect failed", Err: err}
	}

	go func() {
		<-ctx.Done()
		mgr.Close()
	}()

	return out, nil
}

func (c *Client) FetchBalance(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance, nil
}

func (c *Client) FetchFundingRates(ctx context.Context) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func (c *Client) FetchPositions(ctx context.Context, instruments []string) ([]venue.PositionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]venue.PositionInfo, 0, len(instruments))
	for _, inst := range instruments {
		out = append(out, venue.PositionInfo{Instrument: inst, Contracts: c.contracts[inst]})
	}
	return out, nil
}

// CreateOrder fills immediately at the current mid price recorded by
// the loopback server, charging the configured taker fee against the
// balance and updating the signed contract count.
func (c *Client) CreateOrder(ctx context.Context, instrument, side string, typ venue.OrderType, amount, price float64, params venue.OrderParams) (*venue.Order, error) {
	if amount <= 0 {
		return nil, &venue.Error{Venue: c.name, Message: "invalid order amount"}
	}

	c.server.mu.RLock()
	mid, ok := c.server.mid[instrument]
	c.server.mu.RUnlock()
	if !ok {
		mid = price
	}
	if mid == 0 {
		mid = price
	}

	notional := amount * mid
	if !params.ReduceOnly && notional < c.minNotional {
		return nil, &venue.Error{Venue: c.name, Message: fmt.Sprintf("notional %.2f below min %.2f", notional, c.minNotional)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fee := notional * c.taker
	c.balance -= fee

	signed := amount
	if side == venue.SideSell {
		signed = -amount
	}
	c.contracts[instrument] += signed

	c.orderSeq++
	return &venue.Order{
		ID:           fmt.Sprintf("%s-%d", c.name, c.orderSeq),
		Instrument:   instrument,
		Side:         side,
		Type:         typ,
		Quantity:     amount,
		FilledQty:    amount,
		AvgFillPrice: mid,
		Status:       "filled",
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, id, instrument string) error {
	return nil // loopback fills synchronously; nothing to cancel
}

func (c *Client) CancelAllOrders(ctx context.Context, instrument string) error {
	return nil
}

func (c *Client) SetMarginMode(ctx context.Context, instrument, mode string) error { return nil }
func (c *Client) SetLeverage(ctx context.Context, instrument string, leverage int) error {
	return nil
}

func (c *Client) AmountToPrecision(instrument string, amount float64) float64 {
	if c.qtyStep <= 0 {
		return amount
	}
	steps := float64(int64(amount / c.qtyStep))
	return steps * c.qtyStep
}

func (c *Client) Close() error { return nil }
