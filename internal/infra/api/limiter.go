package api

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	red "membership-access/internal/infra/redis"
)

// Limiter decides whether the caller behind key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

var (
	_ Limiter = (*red.RateLimiter)(nil)
	_ Limiter = (*LocalLimiter)(nil)
)

// LocalLimiter is a per-process token bucket per key, used when no Redis is configured.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	idle    time.Duration
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]*bucket), idle: 10 * time.Minute, now: time.Now}
}

func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		l.sweep(now)
		b = &bucket{lim: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1), nil
}

// sweep drops buckets that have not been touched for the idle period.
func (l *LocalLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.idle {
			delete(l.buckets, k)
		}
	}
}
