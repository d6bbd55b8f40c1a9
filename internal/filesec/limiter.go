package filesec

import (
	"context"
	"fmt"
	"time"

	"paperbase/internal/config"
	"paperbase/internal/db"
	"paperbase/internal/models"
)

// RateLimiter bounds uploads per source IP using Redis counters with one
// key per window. Counting is best effort: if Redis is down, uploads pass.
type RateLimiter struct {
	redis *db.RedisClient
	cfg   config.RateConfig
	now   func() time.Time
}

// NewRateLimiter creates an upload rate limiter.
func NewRateLimiter(redis *db.RedisClient, cfg config.RateConfig) *RateLimiter {
	return &RateLimiter{redis: redis, cfg: cfg, now: time.Now}
}

// Allow counts one upload for the source IP and returns a rate-limited error
// when either the hourly or daily quota is exhausted.
func (l *RateLimiter) Allow(ctx context.Context, sourceIP string) error {
	if l.redis == nil || sourceIP == "" {
		return nil
	}

	now := l.now().UTC()
	hourKey := fmt.Sprintf("rate:upload:%s:h:%s", sourceIP, now.Format("2006010215"))
	dayKey := fmt.Sprintf("rate:upload:%s:d:%s", sourceIP, now.Format("20060102"))

	hour, err := l.incr(ctx, hourKey, 2*time.Hour)
	if err != nil {
		return nil
	}
	day, err := l.incr(ctx, dayKey, 48*time.Hour)
	if err != nil {
		return nil
	}

	if l.cfg.UploadsPerHour > 0 && hour > int64(l.cfg.UploadsPerHour) {
		return models.Errorf(models.KindRateLimited, "filesec",
			"hourly upload limit of %d reached", l.cfg.UploadsPerHour)
	}
	if l.cfg.UploadsPerDay > 0 && day > int64(l.cfg.UploadsPerDay) {
		return models.Errorf(models.KindRateLimited, "filesec",
			"daily upload limit of %d reached", l.cfg.UploadsPerDay)
	}
	return nil
}

func (l *RateLimiter) incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := l.redis.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if n == 1 {
		_ = l.redis.Expire(ctx, key, ttl)
	}
	return n, nil
}
