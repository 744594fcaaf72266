package alarm

import (
	"sync"
	"time"
)

// DedupCache suppresses repeat fingerprints inside a time window. It is
// best-effort and process-local; the unique dedup_key column on messages is
// the durable backstop.
type DedupCache struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration

	calls          int
	pruneEvery     int
	pruneThreshold int
}

type DedupConfig struct {
	Window time.Duration
	// PruneEvery triggers an amortized sweep every N calls; PruneThreshold
	// forces one whenever the map grows past it.
	PruneEvery     int
	PruneThreshold int
}

func NewDedupCache(cfg DedupConfig) *DedupCache {
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	if cfg.PruneEvery <= 0 {
		cfg.PruneEvery = 200
	}
	if cfg.PruneThreshold <= 0 {
		cfg.PruneThreshold = 10000
	}
	return &DedupCache{
		seen:           make(map[string]time.Time),
		window:         cfg.Window,
		pruneEvery:     cfg.PruneEvery,
		pruneThreshold: cfg.PruneThreshold,
	}
}

// ShouldSuppress reports whether the fingerprint was seen inside the window,
// recording the new sighting otherwise.
func (c *DedupCache) ShouldSuppress(fingerprint string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.seen[fingerprint]; ok && now.Sub(last) < c.window {
		return true
	}
	c.seen[fingerprint] = now
	c.maybePrune(now)
	return false
}

func (c *DedupCache) maybePrune(now time.Time) {
	c.calls++
	if c.calls%c.pruneEvery != 0 && len(c.seen) < c.pruneThreshold {
		return
	}
	ttl := 2 * c.window
	if ttl < 30*time.Second {
		ttl = 30 * time.Second
	}
	for k, t := range c.seen {
		if now.Sub(t) > ttl {
			delete(c.seen, k)
		}
	}
}

// Len is exported for tests.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
