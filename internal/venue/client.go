// Package venue defines the VenueClient capability: the one surface
// every concrete exchange adapter must implement. Adapters themselves
// (REST/WS bindings for a specific exchange) are out of scope for this
// repository; internal/venue/simulator provides a loopback stand-in
// used by tests and local runs.
package venue

import (
	"context"
	"time"
)

// OrderType enumerates order types a VenueClient must support.
type OrderType string

const (
	OrderTypeMarket       OrderType = "market"
	OrderTypeLimit        OrderType = "limit"
	OrderTypeTrailingStop OrderType = "trailing_stop_market"
)

// Side constants, shared between order placement and position direction.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// OrderParams carries the optional per-order flags spec.md §6 lists.
// Encoding of trailing-stop parameters is venue-specific: one venue
// expects an absolute TrailingAmount, another a percentage CallbackRate.
type OrderParams struct {
	ReduceOnly     bool
	PostOnly       bool
	CallbackRate   float64
	TrailingAmount float64
}

// PriceLevel is one level of a merged order book snapshot.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookSnapshot is what WatchOrderBook delivers: already-merged top-N
// depth. No delta reconstruction is performed by this repository
// (spec.md §1 Non-goals).
type BookSnapshot struct {
	Instrument  string       `json:"instrument"`
	Bids        []PriceLevel `json:"bids"`
	Asks        []PriceLevel `json:"asks"`
	TimestampMs int64        `json:"timestamp_ms"`
}

// Empty reports whether either side of the book is missing.
func (s *BookSnapshot) Empty() bool {
	return len(s.Bids) == 0 || len(s.Asks) == 0
}

// PositionInfo is the per-instrument position fetched from a venue
// after an order fills.
type PositionInfo struct {
	Instrument    string  `json:"instrument"`
	Contracts     float64 `json:"contracts"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
}

// MarketInfo is static per-instrument metadata a venue exposes via
// LoadMarkets.
type MarketInfo struct {
	Symbol      string  `json:"symbol"`
	TakerFee    float64 `json:"taker_fee"`
	MinNotional float64 `json:"min_notional"`
	QtyStep     float64 `json:"qty_step"`
	PriceStep   float64 `json:"price_step"`
	MaxLeverage int     `json:"max_leverage"`
}

// Order is the result of CreateOrder or a cancel lookup.
type Order struct {
	ID           string    `json:"id"`
	Instrument   string    `json:"instrument"`
	Side         string    `json:"side"`
	Type         OrderType `json:"type"`
	Quantity     float64   `json:"quantity"`
	FilledQty    float64   `json:"filled_qty"`
	AvgFillPrice float64   `json:"avg_fill_price"`
	Status       string    `json:"status"` // "filled", "partial", "cancelled", "open"
}

// VenueClient is the capability every exchange adapter must expose.
// FeedIngestor, PositionManager and the refreshers depend only on this
// interface, never on a concrete adapter (spec.md §6).
type VenueClient interface {
	Name() string

	// LoadTimeDifference reconciles local vs venue clock skew; called
	// once at startup.
	LoadTimeDifference(ctx context.Context) (time.Duration, error)

	// LoadMarkets fetches the instrument catalog and per-instrument
	// metadata (taker fee, min notional, precision).
	LoadMarkets(ctx context.Context) (map[string]MarketInfo, error)

	// WatchOrderBook returns a channel of snapshots for an instrument
	// at the requested depth. The channel closes whenever the
	// underlying transport drops; the caller (FeedIngestor) resubscribes.
	WatchOrderBook(ctx context.Context, instrument string, depth int) (<-chan BookSnapshot, error)

	FetchBalance(ctx context.Context) (free float64, err error)
	FetchFundingRates(ctx context.Context) (map[string]float64, error)
	FetchPositions(ctx context.Context, instruments []string) ([]PositionInfo, error)

	CreateOrder(ctx context.Context, instrument, side string, typ OrderType, amount, price float64, params OrderParams) (*Order, error)
	CancelOrder(ctx context.Context, id, instrument string) error
	CancelAllOrders(ctx context.Context, instrument string) error

	SetMarginMode(ctx context.Context, instrument, mode string) error
	SetLeverage(ctx context.Context, instrument string, leverage int) error

	// AmountToPrecision quantizes amount to the venue's lot size for
	// instrument.
	AmountToPrecision(instrument string, amount float64) float64

	Close() error
}

// Error wraps a venue-originated failure, preserving the venue name
// and the underlying error for errors.Is/errors.As.
type Error struct {
	Venue   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Venue == "" {
		return e.Message
	}
	return e.Venue + ": " + e.Message
}

// Unwrap supports errors.Is()/errors.As() against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}
