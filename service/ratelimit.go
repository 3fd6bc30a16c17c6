package service

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lms-agent/config"
	"lms-agent/model"
)

// Admission is the outcome of one Admit call.
type Admission struct {
	Allowed      bool
	RetryAfterMs int64
	Remaining    int
	Capacity     int
	// ResetAt is when the bucket will be full again.
	ResetAt time.Time
}

type bucket struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	capacity int
	refill   float64
	lastSeen time.Time
}

// RateLimiter is a per-identity, per-role token bucket table.
type RateLimiter struct {
	rules   map[model.Role]config.RateLimitRule
	idleTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewRateLimiter(rules map[model.Role]config.RateLimitRule, cfg config.LimiterConfig, logger *slog.Logger) *RateLimiter {
	table := make(map[model.Role]config.RateLimitRule, len(rules))
	for role, rule := range rules {
		table[role] = rule
	}
	return &RateLimiter{
		rules:   table,
		idleTTL: cfg.IdleTTL,
		now:     time.Now,
		logger:  logger.With("component", "ratelimit"),
		buckets: make(map[string]*bucket),
	}
}

// rule falls back to the most restrictive role for anything unknown.
func (l *RateLimiter) rule(role model.Role) config.RateLimitRule {
	if r, ok := l.rules[role]; ok {
		return r
	}
	return l.rules[model.RoleUser]
}

// Admit refills the identity's bucket and takes one token if available.
func (l *RateLimiter) Admit(id model.Identity) Admission {
	key := id.Key()

	// Lock order is table then bucket; Sweep follows the same order and only TryLocks buckets.
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		r := l.rule(id.Role)
		b = &bucket{
			limiter:  rate.NewLimiter(rate.Limit(r.RefillPerSecond), r.Capacity),
			capacity: r.Capacity,
			refill:   r.RefillPerSecond,
		}
		l.buckets[key] = b
	}
	b.mu.Lock()
	l.mu.Unlock()
	defer b.mu.Unlock()

	now := l.now()
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	adm := Admission{
		Allowed:   allowed,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		Capacity:  b.capacity,
		ResetAt:   now.Add(secondsToDuration((float64(b.capacity) - tokens) / b.refill)),
	}
	if !allowed {
		adm.RetryAfterMs = int64(math.Ceil((1 - tokens) / b.refill * 1000))
		l.logger.Debug("request throttled", "role", id.Role, "retry_after_ms", adm.RetryAfterMs)
	}
	return adm
}

// Sweep drops buckets idle for longer than the idle TTL. Buckets currently held by
// an Admit call are skipped and retried on the next sweep.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if !b.mu.TryLock() {
			continue
		}
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
			removed++
		}
		b.mu.Unlock()
	}
	return removed
}

// Run sweeps idle buckets every interval until ctx is done.
func (l *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug("evicted idle buckets", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Len reports the number of live buckets.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
