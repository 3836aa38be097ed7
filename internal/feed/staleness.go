package feed

import (
	"sync"
	"time"
)

// StalenessTracker records the wall-clock time each (venue, instrument)
// subscription last delivered a snapshot, and reports the current age
// of that timestamp in milliseconds. One tracker is shared by every
// Ingestor under a Supervisor; reads and writes both take the same
// mutex so it's safe for the reporter's periodic goroutine to read
// while ingestors write concurrently.
type StalenessTracker struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewStalenessTracker builds an empty tracker.
func NewStalenessTracker() *StalenessTracker {
	return &StalenessTracker{lastSeen: make(map[string]time.Time)}
}

// Touch records "now" as the last time venue/instrument delivered a
// snapshot. Safe to call on a nil tracker (a no-op), so callers that
// don't care about staleness reporting can pass nil.
func (t *StalenessTracker) Touch(venue, instrument string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.lastSeen[venue+"|"+instrument] = time.Now()
	t.mu.Unlock()
}

// StalenessMs implements status.FeedStaleness: the age, in
// milliseconds, of the last snapshot seen for every subscription that
// has delivered at least one.
func (t *StalenessTracker) StalenessMs() map[string]int64 {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.lastSeen))
	for key, ts := range t.lastSeen {
		out[key] = now.Sub(ts).Milliseconds()
	}
	return out
}
