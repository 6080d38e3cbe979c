package feed

import (
	"context"
	"time"

	"go.uber.org/zap"
)

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}

// Retrying wraps a Source with exponential backoff.
type Retrying struct {
	Source     Source
	MaxRetries int
	Backoff    time.Duration
	Logger     *zap.Logger
	Name       string
}

func (r Retrying) Fetch(ctx context.Context) ([]byte, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var out []byte
	err := withRetry(ctx, r.MaxRetries, r.Backoff, func(ctx context.Context) error {
		var err error
		out, err = r.Source.Fetch(ctx)
		if err != nil {
			logger.Warn("fetch observation failed", zap.String("feed", r.Name), zap.Error(err))
		}
		return err
	})
	return out, err
}
