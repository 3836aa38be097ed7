package simulator

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/gorilla/websocket"

	"arbitrage/internal/venue"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscribeMsg is the only message the loopback server understands.
type subscribeMsg struct {
	Op         string `json:"op"`
	Instrument string `json:"instrument"`
}

// Server is a minimal loopback order-book feed: it accepts a
// subscribe message per connection and streams synthetic
// venue.BookSnapshot frames on a fixed tick, doing a small random walk
// around a configured mid price. Used only by tests and local demo
// runs — never a real exchange connection.
type Server struct {
	mu       sync.RWMutex
	mid      map[string]float64 // instrument -> current mid price
	depth    int
	tick     time.Duration
	httpSrv  *httptest.Server
	stallSet map[string]bool // instruments that stop emitting until cleared
}

// NewServer starts a loopback server with the given starting mid
// prices.
func NewServer(initialMid map[string]float64, depth int, tick time.Duration) *Server {
	s := &Server{
		mid:      make(map[string]float64, len(initialMid)),
		depth:    depth,
		tick:     tick,
		stallSet: make(map[string]bool),
	}
	for k, v := range initialMid {
		s.mid[k] = v
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handle)
	s.httpSrv = httptest.NewServer(mux)
	return s
}

// URL returns the ws:// URL clients should dial.
func (s *Server) URL() string {
	return "ws" + s.httpSrv.URL[len("http"):] + "/ws"
}

// SetMid overrides the mid price of an instrument, observed on the
// next tick.
func (s *Server) SetMid(instrument string, mid float64) {
	s.mu.Lock()
	s.mid[instrument] = mid
	s.mu.Unlock()
}

// Stall stops emitting snapshots for an instrument, simulating a
// stalled feed so FeedIngestor's watchdog can be exercised.
func (s *Server) Stall(instrument string, stalled bool) {
	s.mu.Lock()
	s.stallSet[instrument] = stalled
	s.mu.Unlock()
}

func (s *Server) isStalled(instrument string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stallSet[instrument]
}

func (s *Server) Close() {
	s.httpSrv.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var instrument string
	var subMu sync.Mutex

	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			var sub subscribeMsg
			if json.Unmarshal(msg, &sub) == nil && sub.Op == "subscribe" {
				subMu.Lock()
				instrument = sub.Instrument
				subMu.Unlock()
			}
		}
	}()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			subMu.Lock()
			inst := instrument
			subMu.Unlock()
			if inst == "" || s.isStalled(inst) {
				continue
			}
			snap := s.synth(inst)
			b, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

func (s *Server) synth(instrument string) venue.BookSnapshot {
	s.mu.Lock()
	mid, ok := s.mid[instrument]
	if !ok {
		mid = 100
	}
	mid += mid * (rand.Float64() - 0.5) * 0.0005
	s.mid[instrument] = mid
	s.mu.Unlock()

	spreadStep := mid * 0.0002
	bids := make([]venue.PriceLevel, 0, s.depth)
	asks := make([]venue.PriceLevel, 0, s.depth)
	for i := 0; i < s.depth; i++ {
		bids = append(bids, venue.PriceLevel{Price: mid - spreadStep*float64(i+1), Size: 1 + rand.Float64()*5})
		asks = append(asks, venue.PriceLevel{Price: mid + spreadStep*float64(i+1), Size: 1 + rand.Float64()*5})
	}

	return venue.BookSnapshot{
		Instrument:  instrument,
		Bids:        bids,
		Asks:        asks,
		TimestampMs: time.Now().UnixMilli(),
	}
}
