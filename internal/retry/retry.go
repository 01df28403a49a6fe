package retry

import (
	"context"
	"time"

	"github.com/Vastxiao/mongocheckd/internal/logger"
	"github.com/Vastxiao/mongocheckd/internal/util"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// FuncInfo describes the current attempt to the function being retried.
type FuncInfo struct {
	attemptNumber int
}

// GetAttemptNumber returns the current attempt number (0-indexed).
func (fi *FuncInfo) GetAttemptNumber() int {
	return fi.attemptNumber
}

// Run calls f until it succeeds, returns a non-transient error, or the
// policy's attempts are used up. In the last case the returned error is a
// RetryLimitExceededErr that wraps f's last error.
//
// Cancellation of ctx stops the loop between attempts; f itself receives
// ctx and should honor it.
func (r *Retryer) Run(
	ctx context.Context,
	logger *logger.Logger,
	f func(context.Context, *FuncInfo) error,
) error {
	startTime := time.Now()
	fi := &FuncInfo{}

	var lastErr error
	lastWasTransient := false

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(r.policy.Delay),
			uint64(r.policy.MaxAttempts-1),
		),
		ctx,
	)

	operation := func() error {
		lastErr = f(ctx, fi)
		if lastErr == nil {
			return nil
		}

		lastWasTransient = r.shouldRetry(logger, lastErr)
		if !lastWasTransient {
			return backoff.Permanent(lastErr)
		}

		return lastErr
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn().
			Err(err).
			Int("attemptNumber", fi.attemptNumber).
			Int("errorCode", util.GetErrorCode(err)).
			Str("context", r.description.OrElse("")).
			Stringer("wait", wait).
			Msg("Retrying after transient error.")

		fi.attemptNumber++
	}

	err := backoff.RetryNotify(operation, policy, notify)

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return errors.Wrapf(ctx.Err(), "canceled after %d attempt(s)", fi.attemptNumber+1)
	case lastWasTransient:
		err = RetryLimitExceededErr{
			lastErr:  lastErr,
			attempts: fi.attemptNumber + 1,
			duration: time.Since(startTime),
		}
	}

	if desc, has := r.description.Get(); has {
		return errors.Wrap(err, desc)
	}

	return err
}

func (r *Retryer) shouldRetry(logger *logger.Logger, err error) bool {
	if util.IsTransientError(err) {
		return true
	}

	logger.Debug().Err(err).Int("errorCode", util.GetErrorCode(err)).
		Msg("Not retrying on error because it is not transient.")

	return false
}
