package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a keyed token bucket. Every key starts full and refills
// continuously at refillPerSec up to capacity.
type Limiter struct {
	mu       sync.Mutex
	capacity float64
	refill   float64
	idleTTL  time.Duration
	m        map[string]*bucket
	now      func() time.Time
}

func New(capacity int, refillPerSec float64) *Limiter {
	if capacity <= 0 {
		capacity = 30
	}
	if refillPerSec <= 0 {
		refillPerSec = 5
	}
	return &Limiter{
		capacity: float64(capacity),
		refill:   refillPerSec,
		idleTTL:  10 * time.Minute,
		m:        make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+elapsed*l.refill, l.capacity)
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Prune drops buckets idle long enough to be full again.
func (l *Limiter) Prune() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.m {
		if now.Sub(b.last) > l.idleTTL {
			delete(l.m, k)
			n++
		}
	}
	return n
}
