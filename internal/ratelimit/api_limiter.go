package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payrecon/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const keyAPISubject = "payments:api:%s:%s"

// APILimiter throttles authenticated API callers per (subject, endpoint).
// With Redis it is shared across instances; without it each process keeps
// its own buckets.
type APILimiter struct {
	enabled bool
	rate    float64
	burst   int

	bucket *TokenBucket

	mu    sync.Mutex
	local map[string]*rate.Limiter
	log   *zap.Logger
}

func NewAPILimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *APILimiter {
	l := &APILimiter{
		enabled: cfg.RateLimit.Enabled && cfg.RateLimit.Rate > 0 && cfg.RateLimit.Burst > 0,
		rate:    cfg.RateLimit.Rate,
		burst:   cfg.RateLimit.Burst,
		local:   make(map[string]*rate.Limiter),
		log:     log.Named("ratelimit"),
	}
	if client != nil {
		l.bucket = NewTokenBucket(client)
	}
	return l
}

func (l *APILimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *APILimiter) Allow(ctx context.Context, subject, endpoint string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyAPISubject, strings.TrimSpace(subject), strings.TrimSpace(endpoint))

	if l.bucket != nil {
		res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
		if err == nil {
			return res, nil
		}
		// Fail over to the local bucket rather than rejecting traffic.
		l.log.Warn("redis token bucket unavailable", zap.String("key", key), zap.Error(err))
	}
	return l.allowLocal(key), nil
}

func (l *APILimiter) allowLocal(key string) *RateLimitResult {
	l.mu.Lock()
	lim, ok := l.local[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.rate), l.burst)
		l.local[key] = lim
	}
	l.mu.Unlock()

	now := time.Now()
	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &RateLimitResult{
			Allowed:    false,
			Limit:      l.burst,
			ResetTime:  now.Add(delay),
			RetryAfter: delay,
		}
	}
	return &RateLimitResult{
		Allowed:   true,
		Limit:     l.burst,
		Remaining: int(lim.TokensAt(now)),
		ResetTime: now,
	}
}
