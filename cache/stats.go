package cache

import (
	"sync/atomic"
	"time"
)

// Statistics tracks cache activity. Counters are updated atomically and are
// always collected, whether or not metrics export is enabled.
type Statistics struct {
	hits          atomic.Int64
	misses        atomic.Int64
	loads         atomic.Int64
	loadErrors    atomic.Int64
	sets          atomic.Int64
	evictions     atomic.Int64
	expirations   atomic.Int64
	invalidations atomic.Int64
	size          atomic.Int64
	maxSize       atomic.Int64
	started       time.Time
}

// NewStatistics creates a zeroed tracker.
func NewStatistics() *Statistics {
	return &Statistics{started: time.Now()}
}

func (s *Statistics) hit()       { s.hits.Add(1) }
func (s *Statistics) miss()      { s.misses.Add(1) }
func (s *Statistics) load()      { s.loads.Add(1) }
func (s *Statistics) loadError() { s.loadErrors.Add(1) }
func (s *Statistics) set()       { s.sets.Add(1) }

func (s *Statistics) evict(reason EvictReason) {
	switch reason {
	case ReasonCapacity:
		s.evictions.Add(1)
	case ReasonExpired:
		s.expirations.Add(1)
	case ReasonInvalidated:
		s.invalidations.Add(1)
	}
}

func (s *Statistics) updateSize(n int) {
	size := int64(n)
	s.size.Store(size)
	for {
		peak := s.maxSize.Load()
		if size <= peak || s.maxSize.CompareAndSwap(peak, size) {
			return
		}
	}
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s *Statistics) HitRatio() float64 {
	hits := s.hits.Load()
	total := hits + s.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// StatsSummary is a point-in-time snapshot of Statistics.
type StatsSummary struct {
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	Loads         int64         `json:"loads"`
	LoadErrors    int64         `json:"load_errors"`
	Sets          int64         `json:"sets"`
	Evictions     int64         `json:"evictions"`
	Expirations   int64         `json:"expirations"`
	Invalidations int64         `json:"invalidations"`
	Size          int64         `json:"size"`
	MaxSize       int64         `json:"max_size"`
	HitRatio      float64       `json:"hit_ratio"`
	Uptime        time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all counters.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Loads:         s.loads.Load(),
		LoadErrors:    s.loadErrors.Load(),
		Sets:          s.sets.Load(),
		Evictions:     s.evictions.Load(),
		Expirations:   s.expirations.Load(),
		Invalidations: s.invalidations.Load(),
		Size:          s.size.Load(),
		MaxSize:       s.maxSize.Load(),
		HitRatio:      s.HitRatio(),
		Uptime:        time.Since(s.started),
	}
}
