package util

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter to provide a simpler interface.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter creates a token bucket limiter with r tokens per second and
// burst b.
func NewLimiter(r float64, b int) *Limiter {
	return &Limiter{
		inner: rate.NewLimiter(rate.Limit(r), b),
	}
}

// Allow reports whether an event with weight n may happen now.
func (l *Limiter) Allow(n int) bool {
	return l.inner.AllowN(time.Now(), n)
}

// Wait blocks until n tokens are available.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	return l.inner.WaitN(ctx, n)
}

// KeyedLimiter keeps one limiter per key, e.g. per bridge method, created
// on first use with the same rate and burst.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	rate     float64
	burst    int
}

func NewKeyedLimiter(r float64, b int) *KeyedLimiter {
	return &KeyedLimiter{
		limiters: make(map[string]*Limiter),
		rate:     r,
		burst:    b,
	}
}

// Get returns the limiter for key.
func (k *KeyedLimiter) Get(key string) *Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.limiters[key]
	if !ok {
		l = NewLimiter(k.rate, k.burst)
		k.limiters[key] = l
	}
	return l
}

// Allow consumes one token of key's limiter.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.Get(key).Allow(1)
}
