package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const minLimiterIdle = time.Minute

// Limiter hands out one token bucket per session key. A nil Limiter allows
// everything.
//
// A bucket left idle long enough to refill completely is indistinguishable
// from a new one, so such entries are swept out.
type Limiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	limiters  map[string]*limiterEntry
	now       func() time.Time
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLimiter returns nil when perMinute is not positive.
func NewLimiter(perMinute float64, burst int) *Limiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perMinute / 60)
	idle := time.Duration(float64(burst) / float64(limit) * float64(time.Second))
	if idle < minLimiterIdle {
		idle = minLimiterIdle
	}
	return &Limiter{
		limit:    limit,
		burst:    burst,
		idle:     idle,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// Len reports how many sessions currently hold a bucket.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	for key, e := range l.limiters {
		if now.Sub(e.seen) >= l.idle {
			delete(l.limiters, key)
		}
	}
}
