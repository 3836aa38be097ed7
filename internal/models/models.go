// Package models содержит основные типы данных движка арбитража:
// инструменты, снапшоты стакана, котировки и позиции. Эти типы
// передаются между FeedIngestor, FeedAggregator, SpreadAnalyzer и
// PositionManager без дополнительного копирования там, где это
// безопасно.
package models

import (
	"sync"
	"time"
)

// Instrument описывает торгуемый перпетуальный контракт на одной
// бирже. Неизменяем в рамках одной сессии.
type Instrument struct {
	Symbol      string  `json:"symbol"`
	Base        string  `json:"base"`
	Quote       string  `json:"quote"`
	MinNotional float64 `json:"min_notional"`
	TakerFee    float64 `json:"taker_fee"`
	QtyStep     float64 `json:"qty_step"`
	PriceStep   float64 `json:"price_step"`
}

// PriceLevel — один уровень стакана ордеров.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookSnapshot — сырой снапшот стакана с одной биржи по одному
// инструменту. Транзитный объект: потребляется ровно один раз
// FeedAggregator'ом и не сохраняется.
type BookSnapshot struct {
	Venue      string       `json:"venue"`
	Instrument string       `json:"instrument"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	TimestampMs int64       `json:"timestamp_ms"`
}

// Empty возвращает true если одна из сторон стакана пуста — такой
// снапшот отбрасывается FeedIngestor'ом (spec §4.1).
func (s *BookSnapshot) Empty() bool {
	return len(s.Bids) == 0 || len(s.Asks) == 0
}

// Quote — исполняемая (VWAP) котировка, выведенная из BookSnapshot для
// заданного целевого номинала.
type Quote struct {
	Venue       string
	Instrument  string
	VWAPBid     float64
	VWAPAsk     float64
	TimestampMs int64
}

// FeedState — mapping venue -> instrument -> Quote. Мутируется
// исключительно FeedAggregator'ом; читатели получают консистентные
// снапшоты всей карты.
type FeedState struct {
	// venues[venue][instrument] = Quote
	venues map[string]map[string]Quote
}

// NewFeedState создаёт пустое состояние фида.
func NewFeedState() *FeedState {
	return &FeedState{venues: make(map[string]map[string]Quote)}
}

// Set записывает котировку, возвращая true если bid или ask строго
// изменились относительно предыдущего значения (critera for a
// changed-feed delta, spec §4.2).
func (fs *FeedState) Set(q Quote) bool {
	instruments, ok := fs.venues[q.Venue]
	if !ok {
		instruments = make(map[string]Quote)
		fs.venues[q.Venue] = instruments
	}
	prev, existed := instruments[q.Instrument]
	instruments[q.Instrument] = q
	if !existed {
		return true
	}
	return prev.VWAPBid != q.VWAPBid || prev.VWAPAsk != q.VWAPAsk
}

// Get возвращает котировку по бирже и инструменту.
func (fs *FeedState) Get(venue, instrument string) (Quote, bool) {
	instruments, ok := fs.venues[venue]
	if !ok {
		return Quote{}, false
	}
	q, ok := instruments[instrument]
	return q, ok
}

// Venues возвращает список бирж, присутствующих в состоянии.
func (fs *FeedState) Venues() []string {
	out := make([]string, 0, len(fs.venues))
	for v := range fs.venues {
		out = append(out, v)
	}
	return out
}

// InstrumentsFor возвращает карту инструмент->Quote для биржи
// (для итерации SpreadAnalyzer'ом, не для мутации — вызывающий не
// должен её изменять).
func (fs *FeedState) InstrumentsFor(venue string) map[string]Quote {
	return fs.venues[venue]
}

// Snapshot возвращает глубокую копию состояния — используется там,
// где потребителю нужна согласованная view без удержания блокировки
// на время всего цикла анализа.
func (fs *FeedState) Snapshot() *FeedState {
	out := NewFeedState()
	for venue, instruments := range fs.venues {
		copied := make(map[string]Quote, len(instruments))
		for instrument, q := range instruments {
			copied[instrument] = q
		}
		out.venues[venue] = copied
	}
	return out
}

// FeedDelta — набор котировок, изменившихся в ходе обработки одного
// BookSnapshot. Эмитится FeedAggregator'ом только если непусто.
type FeedDelta struct {
	Changed []Quote
}

// SpreadData — один ордер пара бирж по одному инструменту.
// Identity key = (Instrument, BuyVenue, SellVenue).
type SpreadData struct {
	Instrument    string
	BuyVenue      string
	BuyPrice      float64
	SellVenue     string
	SellPrice     float64
	RawSpreadPct  float64
	CommissionPct float64
	NetSpreadPct  float64
	MinTimestampMs int64
}

// PositionState перечисляет состояния жизненного цикла позиции
// (spec §4.4): Pending -> Open -> Closing -> Closed (удаляется из
// карты, отдельного состояния "Closed" в памяти не существует).
type PositionState string

const (
	PositionPending PositionState = "pending"
	PositionOpen    PositionState = "open"
	PositionClosing PositionState = "closing"
)

// CloseReason перечисляет причины закрытия позиции.
type CloseReason string

const (
	CloseReasonSpread CloseReason = "spread_based"
	CloseReasonTime   CloseReason = "time_based"
	CloseReasonRisk   CloseReason = "risk_stop_loss"
	CloseReasonForced CloseReason = "forced"
)

// Position — открытая (или открываемая) арбитражная позиция на паре
// бирж по одному инструменту.
type Position struct {
	Instrument string
	BuyVenue   string
	SellVenue  string
	BuyPrice   float64
	SellPrice  float64

	RequestedUSD float64
	Leverage     int

	BoughtContracts float64
	SoldContracts   float64

	State    PositionState
	OpenedAt time.Time // monotonic-ish: captured via time.Now(), compared only to other time.Now() values

	// TrailingStopMode и связанные идентификаторы биржевых stop-ордеров
	// — капабилити описана в spec.md §9; задействуется только когда
	// конфиг включает trailing stop для инструмента.
	TrailingStopMode bool
	StopOrderBuy     string
	StopOrderSell    string

	// Warnings собирает некритичные замечания: PositionManager добавляет
	// сюда ошибки выставления trailing-stop ордеров. StatusReporter эти
	// замечания не публикует.
	Warnings []string
}

// TotalPnlPct возвращает суммарный % PnL обеих ног по переданным
// текущим ценам длинной (buy) и короткой (sell) ноги. Единственный
// вызывающий — RiskGuard, который передаёт VWAPBid buy-биржи и VWAPAsk
// sell-биржи; close предикат spread_based эту функцию не использует.
func (p *Position) TotalPnlPct(currentBuyMid, currentSellMid float64) float64 {
	if p.BuyPrice == 0 || p.SellPrice == 0 {
		return 0
	}
	longLegPct := (currentBuyMid - p.BuyPrice) / p.BuyPrice * 100
	shortLegPct := (p.SellPrice - currentSellMid) / p.SellPrice * 100
	return longLegPct + shortLegPct
}

// BalanceMap — venue -> свободный баланс котируемой валюты. Два
// разрешённых писателя: BalanceRefresher заменяет карту целиком
// (периодически, по живым данным биржи); PositionManager декрементирует
// резерв на открытии и полагается на следующий Replace для возврата
// кредита при закрытии (spec §4.4 шаг "close" — "balance credit
// deferred to the next BalanceRefresher tick").
type BalanceMap struct {
	mu sync.Mutex
	m  map[string]float64
}

// NewBalanceMap создаёт пустую карту балансов.
func NewBalanceMap() *BalanceMap {
	return &BalanceMap{m: make(map[string]float64)}
}

// Replace целиком заменяет карту — единственный способ записи для
// Refresher'а (spec §3: "Refreshers exclusively write via whole-map
// replacement").
func (b *BalanceMap) Replace(next map[string]float64) {
	b.mu.Lock()
	b.m = next
	b.mu.Unlock()
}

// Get возвращает баланс биржи (0 если неизвестна).
func (b *BalanceMap) Get(venue string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.m[venue]
}

// Reserve декрементирует баланс биржи на amount, если результат
// остаётся неотрицательным (spec §8 "balance non-negativity"), и
// возвращает true. Возвращает false без изменений, если баланс
// недостаточен.
func (b *BalanceMap) Reserve(venue string, amount float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.m[venue]-amount < 0 {
		return false
	}
	b.m[venue] -= amount
	return true
}

// Release credits amount back to venue's balance. Used to unwind the
// Reserves of an aborted open: when the paired reservation on the other
// leg fails, and when an order leg fails after both reservations were
// made, so an aborted open never leaves a phantom debit (spec §8
// "balance non-negativity" applies to the whole attempt, not per-leg).
func (b *BalanceMap) Release(venue string, amount float64) {
	b.mu.Lock()
	b.m[venue] += amount
	b.mu.Unlock()
}

// Snapshot возвращает копию карты для консистентного чтения.
func (b *BalanceMap) Snapshot() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]float64, len(b.m))
	for k, v := range b.m {
		out[k] = v
	}
	return out
}

// FundingMap — venue -> instrument -> последняя ставка финансирования.
type FundingMap struct {
	mu sync.Mutex
	m  map[string]map[string]float64
}

// NewFundingMap создаёт пустую карту funding rates.
func NewFundingMap() *FundingMap {
	return &FundingMap{m: make(map[string]map[string]float64)}
}

// Replace целиком заменяет карту.
func (f *FundingMap) Replace(next map[string]map[string]float64) {
	f.mu.Lock()
	f.m = next
	f.mu.Unlock()
}

// Get возвращает funding rate для (venue, instrument), 0 если
// неизвестна.
func (f *FundingMap) Get(venue, instrument string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	instruments, ok := f.m[venue]
	if !ok {
		return 0
	}
	return instruments[instrument]
}
