package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"cynix/utils"
)

// Decision is the outcome of one admission attempt.
type Decision struct {
	Admitted  bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // unix seconds of the next window boundary
}

// RateLimiter is a fixed-window counter over the shared store.
type RateLimiter struct {
	store  Store
	limit  int64
	window int64
}

func NewRateLimiter(store Store, limit int64, window time.Duration) *RateLimiter {
	w := int64(window / time.Second)
	if w <= 0 {
		w = 60
	}
	if limit <= 0 {
		limit = 100
	}
	return &RateLimiter{store: store, limit: limit, window: w}
}

func (l *RateLimiter) Limit() int64 { return l.limit }

func (l *RateLimiter) Window() time.Duration { return time.Duration(l.window) * time.Second }

func (l *RateLimiter) windowIndex(now time.Time) int64 {
	return now.Unix() / l.window
}

func rateLimitKey(identity string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", identity, window)
}

// Admit counts one request for identity in the window containing now.
// The counter is incremented even when the request is rejected.
func (l *RateLimiter) Admit(ctx context.Context, identity string, now time.Time) (Decision, error) {
	idx := l.windowIndex(now)
	key := rateLimitKey(identity, idx)

	d := Decision{
		Limit:   l.limit,
		ResetAt: idx*l.window + l.window,
	}

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		return d, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := l.store.Expire(ctx, key, l.Window()); err != nil {
			return d, fmt.Errorf("expire %s: %w", key, err)
		}
	}

	d.Admitted = count <= l.limit
	d.Remaining = max(0, l.limit-count)
	return d, nil
}

// Open is the decision used when the store cannot be reached: the request
// passes with a full quota reported.
func (l *RateLimiter) Open(now time.Time) Decision {
	idx := l.windowIndex(now)
	return Decision{
		Admitted:  true,
		Limit:     l.limit,
		Remaining: l.limit,
		ResetAt:   idx*l.window + l.window,
	}
}

// AdmitCommand counts one bot command for identity. A nil limiter or an
// unreachable store lets the command through, as the HTTP gate does.
func (l *RateLimiter) AdmitCommand(ctx context.Context, identity string, now time.Time, logger *zap.Logger) bool {
	if l == nil {
		return true
	}
	d, err := l.Admit(ctx, identity, now)
	if err != nil {
		logger.Warn("Rate limiter unavailable, admitting command",
			zap.String("identity", identity),
			zap.Error(err))
		return true
	}
	if !d.Admitted {
		utils.RateLimitRejections.Inc()
	}
	return d.Admitted
}

// WindowUsage sums the counters of the last n windows ending at now.
func (l *RateLimiter) WindowUsage(ctx context.Context, identity string, now time.Time, n int) (int64, error) {
	idx := l.windowIndex(now)
	var total int64
	for i := int64(0); i < int64(n); i++ {
		val, ok, err := l.store.Get(ctx, rateLimitKey(identity, idx-i))
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		c, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		total += c
	}
	return total, nil
}
