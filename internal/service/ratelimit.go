package service

import (
	"context"
	"sync"
	"time"
)

// UploadLimiter is an in-memory token bucket per key, used to throttle
// uploads per client. It is safe for concurrent use.
type UploadLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens added per second
	burst   float64
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewUploadLimiter creates a limiter allowing burst uploads per key,
// refilling at rate per second. Idle buckets are dropped until ctx is done.
func NewUploadLimiter(ctx context.Context, rate, burst float64) *UploadLimiter {
	l := &UploadLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
	go l.sweep(ctx, 5*time.Minute, 10*time.Minute)
	return l
}

// Allow consumes one token for key. When the bucket is empty it returns
// false and how long until the next token is available.
func (l *UploadLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	}

	b.tokens = min(b.tokens+now.Sub(b.last).Seconds()*l.rate, l.burst)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, 0
	}
	return false, time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
}

func (l *UploadLimiter) sweep(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.now().Add(-idle)
			for key, b := range l.buckets {
				if b.last.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
