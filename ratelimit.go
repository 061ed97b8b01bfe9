package smsverify

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MobileLimiter applies a token bucket per mobile number and periodically evicts idle numbers.
// A nil *MobileLimiter allows everything.
type MobileLimiter struct {
	limit   rate.Limit
	burst   int
	lock    sync.Mutex
	byKey   map[string]*limiterEntry
	hits    uint64
	idleTTL time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMobileLimiter allows perMinute sends per number, with bursts of up to burst.
// It returns nil when perMinute <= 0.
func NewMobileLimiter(perMinute float64, burst int) *MobileLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &MobileLimiter{
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		byKey:   map[string]*limiterEntry{},
		idleTTL: time.Hour,
	}
}

// Allow reports whether one more code may be sent to mobile at now.
func (l *MobileLimiter) Allow(mobile string, now time.Time) bool {
	if l == nil {
		return true
	}
	mobile = strings.TrimSpace(mobile)
	if mobile == "" {
		return true
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	e, ok := l.byKey[mobile]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[mobile] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}
