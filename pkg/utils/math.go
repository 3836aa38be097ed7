package utils

// math.go - математические утилиты
//
// Назначение:
// Вспомогательные математические функции для торговли: округление до
// lot size, расчет спредов, VWAP по стакану, PNL.

import "math"

// snapEpsilon absorbs floating point representation noise (e.g.
// 0.5/0.001 not landing exactly on 500) without masking genuine
// fractional differences, which are always orders of magnitude larger
// at the quantities this package deals with.
const snapEpsilon = 1e-6

// snapToInt returns the nearest integer to q and true if q is within
// snapEpsilon of it.
func snapToInt(q float64) (float64, bool) {
	r := math.Round(q)
	if math.Abs(q-r) < snapEpsilon {
		return r, true
	}
	return q, false
}

// RoundToLotSize rounds value down to the nearest multiple of lotSize.
// lotSize <= 0 disables rounding.
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	q := value / lotSize
	if r, ok := snapToInt(q); ok {
		q = r
	}
	return math.Floor(q) * lotSize
}

// RoundToLotSizeUp rounds value up to the nearest multiple of lotSize.
func RoundToLotSizeUp(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	q := value / lotSize
	if r, ok := snapToInt(q); ok {
		q = r
	}
	return math.Ceil(q) * lotSize
}

// RoundToLotSizeNearest rounds value to the closest multiple of
// lotSize, half away from zero.
func RoundToLotSizeNearest(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	q := value / lotSize
	if r, ok := snapToInt(q); ok {
		return r * lotSize
	}
	return math.Floor(q+0.5+snapEpsilon) * lotSize
}

// CalculateSpread returns (priceHigh-priceLow)/priceLow*100. Returns 0
// for a non-positive priceLow.
func CalculateSpread(priceHigh, priceLow float64) float64 {
	if priceLow <= 0 {
		return 0
	}
	return (priceHigh - priceLow) / priceLow * 100
}

// CalculateSpreadFromPrices is CalculateSpread without a prior
// assumption about which of priceA/priceB is higher.
func CalculateSpreadFromPrices(priceA, priceB float64) float64 {
	high, low := priceA, priceB
	if low > high {
		high, low = low, high
	}
	return CalculateSpread(high, low)
}

// CalculateNetSpread subtracts round-trip taker fees on both legs from
// a raw spread percentage. feeA/feeB are fractional (0.0004 = 0.04%).
func CalculateNetSpread(spreadPct, feeA, feeB float64) float64 {
	return spreadPct - 2*(feeA+feeB)*100
}

// CalculateNetSpreadDirect combines CalculateSpread and
// CalculateNetSpread from raw prices.
func CalculateNetSpreadDirect(priceHigh, priceLow, feeA, feeB float64) float64 {
	return CalculateNetSpread(CalculateSpread(priceHigh, priceLow), feeA, feeB)
}

// CalculateWeightedAverage returns the volume-weighted average of
// values, ignoring negative weights. Returns 0 for mismatched lengths
// or a non-positive total weight.
func CalculateWeightedAverage(values, weights []float64) float64 {
	if len(values) == 0 || len(weights) == 0 || len(values) != len(weights) {
		return 0
	}
	var sumWeight, sumWeighted float64
	for i, w := range weights {
		if w < 0 {
			continue
		}
		sumWeight += w
		sumWeighted += values[i] * w
	}
	if sumWeight <= 0 {
		return 0
	}
	return sumWeighted / sumWeight
}

// OrderBookLevel is one price/volume level of an order book side.
type OrderBookLevel struct {
	Price  float64
	Volume float64
}

// simulateMarketFill walks levels in the order given, filling up to
// targetVolume, and returns the volume-weighted fill price, the
// volume actually filled, and the slippage percentage relative to the
// first level's price.
func simulateMarketFill(levels []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	if len(levels) == 0 || targetVolume <= 0 {
		return 0, 0, 0
	}

	bestPrice := levels[0].Price
	var notional, remaining float64
	remaining = targetVolume

	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		take := lvl.Volume
		if take > remaining {
			take = remaining
		}
		notional += take * lvl.Price
		filled += take
		remaining -= take
	}

	if filled == 0 {
		return 0, 0, 0
	}
	avgPrice = notional / filled
	slippagePct = (avgPrice - bestPrice) / bestPrice * 100
	return
}

// SimulateMarketBuy simulates a market buy walking asks (best first).
func SimulateMarketBuy(asks []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	return simulateMarketFill(asks, targetVolume)
}

// SimulateMarketSell simulates a market sell walking bids (best first).
func SimulateMarketSell(bids []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	return simulateMarketFill(bids, targetVolume)
}

// CalculatePNL returns the PNL of a single leg. Unknown sides return 0.
func CalculatePNL(side string, entryPrice, currentPrice, quantity float64) float64 {
	switch side {
	case "long":
		return (currentPrice - entryPrice) * quantity
	case "short":
		return (entryPrice - currentPrice) * quantity
	default:
		return 0
	}
}

// CalculateTotalPNL returns the combined PNL of a long/short arbitrage
// pair at the given entry and current (or exit) prices.
func CalculateTotalPNL(longEntry, longCurrent, shortEntry, shortCurrent, quantity float64) float64 {
	return CalculatePNL("long", longEntry, longCurrent, quantity) +
		CalculatePNL("short", shortEntry, shortCurrent, quantity)
}

// SplitVolume divides totalVolume into nParts equal, lot-size-rounded
// pieces. Returns nil for nParts <= 0 or a non-positive totalVolume.
func SplitVolume(totalVolume float64, nParts int, lotSize float64) []float64 {
	if nParts <= 0 || totalVolume <= 0 {
		return nil
	}
	each := RoundToLotSize(totalVolume/float64(nParts), lotSize)
	parts := make([]float64, nParts)
	for i := range parts {
		parts[i] = each
	}
	return parts
}

// IsSpreadSufficient reports whether spread meets the open threshold.
func IsSpreadSufficient(spreadPct, thresholdPct float64) bool {
	return spreadPct >= thresholdPct
}

// ShouldExit reports whether spread has decayed to the close threshold.
func ShouldExit(spreadPct, exitThresholdPct float64) bool {
	return spreadPct <= exitThresholdPct
}

// IsStopLossHit reports whether pnl has breached stopLoss (given as a
// positive magnitude). stopLoss <= 0 means the guard is disabled.
func IsStopLossHit(pnl, stopLoss float64) bool {
	if stopLoss <= 0 {
		return false
	}
	return pnl <= -stopLoss
}

// Clamp restricts value to [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
