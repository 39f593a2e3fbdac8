// Package limiter keeps one token bucket per key (device, remote address)
// and evicts buckets that have been idle longer than a TTL.
package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// Pool hands out per-key limiters with a shared rate and burst.
type Pool struct {
	rps           float64
	burst         int
	ttl           time.Duration
	cleanupPeriod time.Duration

	mu       sync.Mutex
	m        map[string]*entry
	start    sync.Once
	stopOnce sync.Once
	stopCh   chan struct{}
	now      func() time.Time
}

// New returns a pool. rps <= 0 disables limiting.
func New(rps float64, burst int, ttl time.Duration) *Pool {
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Pool{
		rps:           rps,
		burst:         burst,
		ttl:           ttl,
		cleanupPeriod: time.Minute,
		m:             make(map[string]*entry),
		stopCh:        make(chan struct{}),
		now:           time.Now,
	}
}

func (p *Pool) get(key string) *rate.Limiter {
	p.start.Do(func() { go p.cleanupLoop() })

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.m[key]; ok {
		e.lastSeen = p.now()
		return e.l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = &entry{l: l, lastSeen: p.now()}
	return l
}

// Allow reports whether one more event for key fits in the budget.
func (p *Pool) Allow(key string) bool {
	if p == nil || p.rps <= 0 {
		return true
	}
	return p.get(key).Allow()
}

// Len reports the number of tracked keys.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// Shutdown stops the cleanup goroutine.
func (p *Pool) Shutdown() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *Pool) cleanupLoop() {
	ticker := time.NewTicker(p.cleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evict()
		case <-p.stopCh:
			return
		}
	}
}

// evict removes limiters unused for longer than the TTL.
func (p *Pool) evict() {
	cutoff := p.now().Add(-p.ttl)
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, k)
		}
	}
}
