package position

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"arbitrage/internal/metrics"
	"arbitrage/internal/models"
	"arbitrage/internal/venue"
)

// legResult is one leg's outcome from a paired order submission.
type legResult struct {
	order *venue.Order
	err   error
}

// legResultChanPool avoids a channel allocation on every order leg —
// same rationale as the teacher's pool for the (now-retired) parallel
// order executor: channels are comparatively expensive to allocate
// and GC, and this path runs on every open/close.
var legResultChanPool = sync.Pool{
	New: func() interface{} { return make(chan legResult, 1) },
}

func acquireLegResultChan() chan legResult {
	return legResultChanPool.Get().(chan legResult)
}

func releaseLegResultChan(ch chan legResult) {
	select {
	case <-ch:
	default:
	}
	legResultChanPool.Put(ch)
}

// submitPaired places one order on each of buyClient/sellClient
// concurrently and waits for both results. It never aborts early on
// ctx cancellation: spec.md §5 requires in-flight placements to be
// awaited before the position is recorded or discarded, so partial
// state is never left behind.
func (m *Manager) submitPaired(
	ctx context.Context,
	buyClient, sellClient venue.VenueClient,
	instrument string,
	buySide, sellSide string,
	amount, buyPrice, sellPrice float64,
	params venue.OrderParams,
) (buyRes, sellRes legResult) {
	buyCh := acquireLegResultChan()
	sellCh := acquireLegResultChan()
	defer releaseLegResultChan(buyCh)
	defer releaseLegResultChan(sellCh)

	go func() {
		order, err := buyClient.CreateOrder(ctx, instrument, buySide, m.cfg.OrderType, amount, buyPrice, params)
		buyCh <- legResult{order: order, err: err}
	}()
	go func() {
		order, err := sellClient.CreateOrder(ctx, instrument, sellSide, m.cfg.OrderType, amount, sellPrice, params)
		sellCh <- legResult{order: order, err: err}
	}()

	return <-buyCh, <-sellCh
}

// openPosition implements spec.md §4.4's order-placement protocol for
// opening: quantize both legs to a unified amount, enforce
// min-notional, reserve balance, submit both legs concurrently, and —
// critically — do NOT roll back a surviving leg if the other fails
// (spec.md §9 open question, left exactly as stated).
func (m *Manager) openPosition(ctx context.Context, s models.SpreadData) error {
	buyClient, ok := m.clients[s.BuyVenue]
	if !ok {
		return fmt.Errorf("unknown venue %s", s.BuyVenue)
	}
	sellClient, ok := m.clients[s.SellVenue]
	if !ok {
		return fmt.Errorf("unknown venue %s", s.SellVenue)
	}

	midPrice := (s.BuyPrice + s.SellPrice) / 2
	if midPrice <= 0 {
		return fmt.Errorf("non-positive mid price for %s", s.Instrument)
	}

	amountRaw := m.cfg.UsdAmount * float64(m.cfg.Leverage) / midPrice
	buyAmount := buyClient.AmountToPrecision(s.Instrument, amountRaw)
	sellAmount := sellClient.AmountToPrecision(s.Instrument, amountRaw)

	unified := buyAmount
	if buyAmount != sellAmount {
		target := buyAmount
		if sellAmount > target {
			target = sellAmount
		}
		buyAmount = buyClient.AmountToPrecision(s.Instrument, target)
		sellAmount = sellClient.AmountToPrecision(s.Instrument, target)
		unified = buyAmount
		if sellAmount < unified {
			unified = sellAmount
		}
	}

	minNotional := m.minNotionalFor(s.BuyVenue, s.Instrument)
	if n := m.minNotionalFor(s.SellVenue, s.Instrument); n > minNotional {
		minNotional = n
	}
	if m.cfg.UsdAmount < minNotional {
		return fmt.Errorf("usd_amount %.2f below min_notional %.2f for %s", m.cfg.UsdAmount, minNotional, s.Instrument)
	}

	reserve := m.cfg.UsdAmount * m.cfg.SizeBufferFactor
	if m.balances.Get(s.BuyVenue) < reserve || m.balances.Get(s.SellVenue) < reserve {
		return ErrInsufficientBalance
	}
	if !m.balances.Reserve(s.BuyVenue, reserve) {
		return ErrInsufficientBalance
	}
	if !m.balances.Reserve(s.SellVenue, reserve) {
		m.balances.Release(s.BuyVenue, reserve)
		return ErrInsufficientBalance
	}

	start := time.Now()
	buyRes, sellRes := m.submitPaired(ctx, buyClient, sellClient, s.Instrument,
		venue.SideBuy, venue.SideSell, unified, s.BuyPrice, s.SellPrice, venue.OrderParams{})
	metrics.OrderExecutionLatency.WithLabelValues("open").Observe(time.Since(start).Seconds())

	buyOK := buyRes.err == nil
	sellOK := sellRes.err == nil

	if !buyOK || !sellOK {
		// Bookkeeping release only — no opposing-side order is ever
		// cancelled here, per spec.md §9.
		m.balances.Release(s.BuyVenue, reserve)
		m.balances.Release(s.SellVenue, reserve)

		if buyOK && !sellOK {
			m.reportOrphanedLeg(s.Instrument, s.BuyVenue, sellRes.err)
			metrics.OrphanedLegs.WithLabelValues(s.Instrument, s.BuyVenue).Inc()
		}
		if sellOK && !buyOK {
			m.reportOrphanedLeg(s.Instrument, s.SellVenue, buyRes.err)
			metrics.OrphanedLegs.WithLabelValues(s.Instrument, s.SellVenue).Inc()
		}
		if !buyOK && !sellOK {
			m.log.Error("open failed on both legs", zap.String("instrument", s.Instrument),
				zap.Error(buyRes.err), zap.Error(sellRes.err))
		}
		return fmt.Errorf("open aborted for %s: buy_err=%v sell_err=%v", s.Instrument, buyRes.err, sellRes.err)
	}

	boughtContracts, soldContracts := unified, unified
	if positions, err := buyClient.FetchPositions(ctx, []string{s.Instrument}); err == nil {
		for _, p := range positions {
			if p.Instrument == s.Instrument {
				boughtContracts = p.Contracts
			}
		}
	}
	if positions, err := sellClient.FetchPositions(ctx, []string{s.Instrument}); err == nil {
		for _, p := range positions {
			if p.Instrument == s.Instrument {
				soldContracts = p.Contracts
			}
		}
	}

	pos := &models.Position{
		Instrument:       s.Instrument,
		BuyVenue:         s.BuyVenue,
		SellVenue:        s.SellVenue,
		BuyPrice:         s.BuyPrice,
		SellPrice:        s.SellPrice,
		RequestedUSD:     m.cfg.UsdAmount,
		Leverage:         m.cfg.Leverage,
		BoughtContracts:  boughtContracts,
		SoldContracts:    soldContracts,
		State:            models.PositionOpen,
		OpenedAt:         m.nowFunc(),
		TrailingStopMode: m.cfg.TrailingStopMode,
	}

	if m.cfg.TrailingStopMode {
		m.placeTrailingStops(ctx, pos, buyClient, sellClient)
	}

	m.mu.Lock()
	m.positions[s.Instrument] = pos
	m.mu.Unlock()

	metrics.PositionsOpened.WithLabelValues(s.Instrument).Inc()
	metrics.ActivePositions.Inc()
	return nil
}

// placeTrailingStops places reduce-only trailing-stop orders sized to
// the fill amount on both legs, in the hedging direction. Best-effort:
// a failure here only adds a warning to the position, it never aborts
// an already-opened position (spec.md §9, secondary mode).
func (m *Manager) placeTrailingStops(ctx context.Context, pos *models.Position, buyClient, sellClient venue.VenueClient) {
	buyStop, err := buyClient.CreateOrder(ctx, pos.Instrument, venue.SideSell, venue.OrderTypeTrailingStop,
		pos.BoughtContracts, 0, venue.OrderParams{ReduceOnly: true, CallbackRate: 1.0})
	if err != nil {
		pos.Warnings = append(pos.Warnings, "trailing stop (buy leg) failed: "+err.Error())
	} else if buyStop != nil {
		pos.StopOrderBuy = buyStop.ID
	}

	sellStop, err := sellClient.CreateOrder(ctx, pos.Instrument, venue.SideBuy, venue.OrderTypeTrailingStop,
		pos.SoldContracts, 0, venue.OrderParams{ReduceOnly: true, CallbackRate: 1.0})
	if err != nil {
		pos.Warnings = append(pos.Warnings, "trailing stop (sell leg) failed: "+err.Error())
	} else if sellStop != nil {
		pos.StopOrderSell = sellStop.ID
	}
}

// closePosition implements spec.md §4.4's close protocol: cancel any
// trailing stops first, submit reduce-only closes concurrently,
// cancel dangling orders, and remove the position — swallowing
// "already closed" errors so repeat calls are idempotent (spec.md §8).
func (m *Manager) closePosition(ctx context.Context, pos *models.Position, reason models.CloseReason) error {
	buyClient, ok := m.clients[pos.BuyVenue]
	if !ok {
		return fmt.Errorf("unknown venue %s", pos.BuyVenue)
	}
	sellClient, ok := m.clients[pos.SellVenue]
	if !ok {
		return fmt.Errorf("unknown venue %s", pos.SellVenue)
	}

	m.mu.Lock()
	if existing, ok := m.positions[pos.Instrument]; !ok || existing != pos {
		m.mu.Unlock()
		return nil // already closed concurrently: idempotent
	}
	pos.State = models.PositionClosing
	m.mu.Unlock()

	if pos.TrailingStopMode {
		if pos.StopOrderBuy != "" {
			if err := buyClient.CancelOrder(ctx, pos.StopOrderBuy, pos.Instrument); err != nil && !isAlreadyClosed(err) {
				m.log.Warn("cancel trailing stop failed", zap.String("instrument", pos.Instrument), zap.Error(err))
			}
		}
		if pos.StopOrderSell != "" {
			if err := sellClient.CancelOrder(ctx, pos.StopOrderSell, pos.Instrument); err != nil && !isAlreadyClosed(err) {
				m.log.Warn("cancel trailing stop failed", zap.String("instrument", pos.Instrument), zap.Error(err))
			}
		}
	}

	// Closing amounts differ per leg (the fills recorded at open), so
	// this does not reuse submitPaired's single-shared-amount signature.
	start := time.Now()
	closeBuyCh := acquireLegResultChan()
	closeSellCh := acquireLegResultChan()
	defer releaseLegResultChan(closeBuyCh)
	defer releaseLegResultChan(closeSellCh)

	go func() {
		order, err := buyClient.CreateOrder(ctx, pos.Instrument, venue.SideSell, m.cfg.OrderType,
			pos.BoughtContracts, 0, venue.OrderParams{ReduceOnly: true})
		closeBuyCh <- legResult{order: order, err: err}
	}()
	go func() {
		order, err := sellClient.CreateOrder(ctx, pos.Instrument, venue.SideBuy, m.cfg.OrderType,
			pos.SoldContracts, 0, venue.OrderParams{ReduceOnly: true})
		closeSellCh <- legResult{order: order, err: err}
	}()
	buyClose := <-closeBuyCh
	sellClose := <-closeSellCh
	metrics.OrderExecutionLatency.WithLabelValues("close").Observe(time.Since(start).Seconds())

	if buyClose.err != nil && !isAlreadyClosed(buyClose.err) {
		m.reportLifecycleError(pos.Instrument, "close_buy_leg", buyClose.err)
	}
	if sellClose.err != nil && !isAlreadyClosed(sellClose.err) {
		m.reportLifecycleError(pos.Instrument, "close_sell_leg", sellClose.err)
	}

	if err := buyClient.CancelAllOrders(ctx, pos.Instrument); err != nil && !isAlreadyClosed(err) {
		m.log.Warn("cancel dangling orders failed", zap.String("venue", pos.BuyVenue), zap.Error(err))
	}
	if err := sellClient.CancelAllOrders(ctx, pos.Instrument); err != nil && !isAlreadyClosed(err) {
		m.log.Warn("cancel dangling orders failed", zap.String("venue", pos.SellVenue), zap.Error(err))
	}

	m.mu.Lock()
	delete(m.positions, pos.Instrument)
	m.mu.Unlock()

	metrics.PositionsClosed.WithLabelValues(pos.Instrument, string(reason)).Inc()
	metrics.ActivePositions.Dec()
	// Balance credit is deferred to the next BalanceRefresher tick
	// (spec.md §4.4 close protocol step 4) — not performed here.
	return nil
}

// isAlreadyClosed reports whether err looks like a venue's
// "order not found / already closed" response, which close treats as
// success (spec.md §4.4 step 3, §8 close idempotence).
func isAlreadyClosed(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, pattern := range []string{"not found", "already closed", "already cancelled", "order does not exist"} {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}
