package session

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	httperrors "github.com/gokatarajesh/quiz-session/pkg/http/errors"
)

const (
	retryBase     = 200 * time.Millisecond
	retryAttempts = 2
)

// withRetry runs fn again on transient failures only.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(retryAttempts, retry.NewExponential(retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && httperrors.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
