package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/starlift/starlift/pkg/db"
	apperrors "github.com/starlift/starlift/pkg/errors"
	"github.com/starlift/starlift/pkg/logger"
	"github.com/starlift/starlift/pkg/metrics"
)

// Outcome classifies how a guarded operation ended.
type Outcome string

const (
	OutcomeSucceeded       Outcome = "succeeded"
	OutcomeFailedTransient Outcome = "failed_transient"
	OutcomeFailedPermanent Outcome = "failed_permanent"
)

// Controller wraps storage operations with exponential backoff and jitter.
// Transient failures are retried up to the attempt budget; permanent
// failures fail fast on the first attempt.
type Controller struct {
	maxAttempts int
	base        time.Duration
	cap         time.Duration
	logg        *logger.Logger
	metrics     *metrics.PipelineMetrics
}

// NewController builds a controller from the pipeline settings.
func NewController(maxAttempts int, base, cap time.Duration, logg *logger.Logger, m *metrics.PipelineMetrics) *Controller {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if cap < base {
		cap = base
	}
	return &Controller{
		maxAttempts: maxAttempts,
		base:        base,
		cap:         cap,
		logg:        logg,
		metrics:     m,
	}
}

// Do runs fn under the retry policy and reports the terminal outcome.
// The returned error is nil exactly when the outcome is OutcomeSucceeded.
func (c *Controller) Do(ctx context.Context, operation string, fn func(context.Context) error) (Outcome, error) {
	backoff := retry.WithJitter(c.base/2, retry.NewExponential(c.base))
	backoff = retry.WithCappedDuration(c.cap, backoff)
	backoff = retry.WithMaxRetries(uint64(c.maxAttempts-1), backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt < c.maxAttempts {
			c.metrics.IncRetry(operation)
			if c.logg != nil {
				c.logg.Warn(ctx, "retrying "+operation+" after transient failure: "+err.Error())
			}
		}
		return retry.RetryableError(err)
	})
	if err == nil {
		return OutcomeSucceeded, nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeFailedTransient,
			apperrors.Wrap(apperrors.CodeTransient, err, operation+" interrupted")
	}
	if isRetryable(err) {
		return OutcomeFailedTransient,
			apperrors.Wrap(apperrors.CodeTransient, err,
				fmt.Sprintf("%s failed after %d attempts", operation, attempt))
	}
	if typed := apperrors.As(err); typed != nil {
		return OutcomeFailedPermanent, err
	}
	return OutcomeFailedPermanent, apperrors.Wrap(apperrors.CodePermanent, err, operation+" failed")
}

// isRetryable checks the typed error metadata first, then falls back to
// sniffing the underlying storage error.
func isRetryable(err error) bool {
	if typed := apperrors.As(err); typed != nil {
		return apperrors.MetadataFor(typed.Code()).Retryable
	}
	return db.IsTransient(err)
}
