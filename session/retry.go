package session

import (
	"context"
	"fmt"
	"time"

	"github.com/dnldd/abletrend/broker"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// retry runs the provided broker call until it succeeds, fails permanently or the max attempts
// are exhausted. Attempts back off linearly.
func retry[T any](ctx context.Context, logger zerolog.Logger, maxAttempts int, backoff time.Duration,
	op string, call func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var res T
		res, err = call(ctx)
		if err == nil {
			return res, nil
		}

		if !broker.IsRetryable(err) {
			return zero, fmt.Errorf("%s: %w", op, err)
		}

		logger.Warn().Err(err).Msgf("%s failed, attempt %d/%d", op, attempt, maxAttempts)

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}

	return zero, pkgerrors.Wrapf(ErrRetriesExhausted, "%s after %d attempts: %v", op, maxAttempts, err)
}

// retryErr is retry for broker calls without a result.
func retryErr(ctx context.Context, logger zerolog.Logger, maxAttempts int, backoff time.Duration,
	op string, call func(ctx context.Context) error) error {
	_, err := retry(ctx, logger, maxAttempts, backoff, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, call(ctx)
	})

	return err
}
