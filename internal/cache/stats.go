package cache

import (
	"sync"
	"sync/atomic"
)

const hitRateHistorySize = 100

type CacheStats struct {
	Backend        string    `json:"backend"`
	Hits           int64     `json:"hits"`
	Misses         int64     `json:"misses"`
	Sets           int64     `json:"sets"`
	Deletes        int64     `json:"deletes"`
	Errors         int64     `json:"errors"`
	HitRate        float64   `json:"hit_rate"`
	HitRateHistory []float64 `json:"hit_rate_history"`
	MemoryUsed     string    `json:"memory_used,omitempty"`
}

type counters struct {
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	errors  atomic.Int64

	mu      sync.Mutex
	history []float64
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

func (c *counters) recordGet(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	rate := hitRate(c.hits.Load(), c.misses.Load())

	c.mu.Lock()
	c.history = append(c.history, rate)
	if len(c.history) > hitRateHistorySize {
		c.history = c.history[len(c.history)-hitRateHistorySize:]
	}
	c.mu.Unlock()
}

func (c *counters) snapshot(backend string) CacheStats {
	c.mu.Lock()
	history := make([]float64, len(c.history))
	copy(history, c.history)
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	return CacheStats{
		Backend:        backend,
		Hits:           hits,
		Misses:         misses,
		Sets:           c.sets.Load(),
		Deletes:        c.deletes.Load(),
		Errors:         c.errors.Load(),
		HitRate:        hitRate(hits, misses),
		HitRateHistory: history,
	}
}
