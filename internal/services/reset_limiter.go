package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrirent/agrirent/internal/models"
	"github.com/redis/go-redis/v9"
)

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// ResetLimiter throttles forgot-password requests per account
type ResetLimiter interface {
	CheckRequest(ctx context.Context, variant models.Variant, email string) error
}

// RedisResetLimiter is a fixed-window counter keyed by (variant, email)
type RedisResetLimiter struct {
	redis       redis.UniversalClient
	maxRequests int
	window      time.Duration
}

func NewRedisResetLimiter(client redis.UniversalClient, maxRequests int, window time.Duration) *RedisResetLimiter {
	return &RedisResetLimiter{
		redis:       client,
		maxRequests: maxRequests,
		window:      window,
	}
}

// CheckRequest counts one request and returns ErrResetRateLimited once the window is exhausted
func (l *RedisResetLimiter) CheckRequest(ctx context.Context, variant models.Variant, email string) error {
	key := resetRequestKey(variant, email)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
		}
	}

	if count > int64(l.maxRequests) {
		return ErrResetRateLimited
	}

	return nil
}

func resetRequestKey(variant models.Variant, email string) string {
	return "pwreset:" + variant.String() + ":" + email
}
