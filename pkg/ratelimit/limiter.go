// Package ratelimit caps how many records a single intercepted API may emit.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RecordsPerUnit is how many records per second one unit of rate cap allows.
const RecordsPerUnit = 100

// Verdict is the outcome of a limiter check.
type Verdict int

const (
	Allowed Verdict = iota
	CapReached
	RateLimited
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case CapReached:
		return "cap_reached"
	case RateLimited:
		return "rate_limited"
	}
	return "unknown"
}

// APILimiter tracks per-API record counts. An absolute cap stops an API's
// records for good once reached; a rate cap drops bursts above
// rateCap*RecordsPerUnit per second. Zero disables either limit.
type APILimiter struct {
	apiCap  uint32
	rateCap uint32
	limit   rate.Limit
	burst   int
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]*apiEntry
}

type apiEntry struct {
	count   atomic.Uint32
	dropped atomic.Uint64
	limiter *rate.Limiter
}

// NewAPILimiter creates a limiter for the given absolute and rate caps.
func NewAPILimiter(apiCap, rateCap uint32) *APILimiter {
	l := &APILimiter{
		apiCap:  apiCap,
		rateCap: rateCap,
		now:     time.Now,
		entries: make(map[string]*apiEntry),
	}
	if rateCap > 0 {
		perSecond := int(rateCap) * RecordsPerUnit
		l.limit = rate.Limit(perSecond)
		l.burst = perSecond
	}
	return l
}

// WithClock replaces the time source. It must be called before first use.
func (l *APILimiter) WithClock(now func() time.Time) *APILimiter {
	l.now = now
	return l
}

func (l *APILimiter) entry(api string) *apiEntry {
	l.mu.RLock()
	e, ok := l.entries[api]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[api]; ok {
		return e
	}
	e = &apiEntry{}
	if l.burst > 0 {
		e.limiter = rate.NewLimiter(l.limit, l.burst)
	}
	l.entries[api] = e
	return e
}

// Allow reports whether one more record for api may be emitted and counts
// it when it may.
func (l *APILimiter) Allow(api string) Verdict {
	if l == nil {
		return Allowed
	}
	e := l.entry(api)
	for {
		n := e.count.Load()
		if l.apiCap > 0 && n >= l.apiCap {
			e.dropped.Add(1)
			return CapReached
		}
		if e.count.CompareAndSwap(n, n+1) {
			break
		}
	}
	if e.limiter != nil && !e.limiter.AllowN(l.now(), 1) {
		e.count.Add(^uint32(0))
		e.dropped.Add(1)
		return RateLimited
	}
	return Allowed
}

// Count returns how many records api has emitted.
func (l *APILimiter) Count(api string) uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if e, ok := l.entries[api]; ok {
		return e.count.Load()
	}
	return 0
}

// Dropped returns how many records for api were refused.
func (l *APILimiter) Dropped(api string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if e, ok := l.entries[api]; ok {
		return e.dropped.Load()
	}
	return 0
}

// APICap returns the absolute cap; zero means unlimited.
func (l *APILimiter) APICap() uint32 { return l.apiCap }

// RateCap returns the configured rate cap in units of RecordsPerUnit.
func (l *APILimiter) RateCap() uint32 { return l.rateCap }

// Rate returns the per-API records-per-second limit; zero means unlimited.
func (l *APILimiter) Rate() float64 { return float64(l.limit) }
