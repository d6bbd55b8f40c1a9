package adapters

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"paperbase/internal/config"
	"paperbase/internal/models"
)

// withRetry runs fn up to cfg.MaxAttempts times with exponential backoff.
// Only transient transport errors are retried; every other kind fails the
// call immediately.
func withRetry(ctx context.Context, cfg config.RetryConfig, op string, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	delay := cfg.Base
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !models.IsRetryable(err) || attempt == attempts {
			return err
		}

		log.Debug().Str("op", op).Int("attempt", attempt).Dur("delay", delay).
			Err(err).Msg("transient failure, retrying")
		select {
		case <-ctx.Done():
			return models.NewError(models.KindCancelled, op, ctx.Err(), "cancelled during retry wait")
		case <-time.After(delay):
		}
		delay *= 2
		if cfg.Cap > 0 && delay > cfg.Cap {
			delay = cfg.Cap
		}
	}
	return err
}
