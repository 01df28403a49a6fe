package retry

import (
	"fmt"
	"time"

	"github.com/Vastxiao/mongocheckd/internal/reportutils"
)

// RetryLimitExceededErr is returned when every allowed attempt failed with a
// transient error.
type RetryLimitExceededErr struct {
	lastErr  error
	attempts int
	duration time.Duration
}

func (rle RetryLimitExceededErr) Error() string {
	return fmt.Sprintf(
		"retryable function did not succeed after %d attempt(s) over %s; last error was: %v",
		rle.attempts,
		reportutils.DurationToHMS(rle.duration),
		rle.lastErr,
	)
}

func (rle RetryLimitExceededErr) Unwrap() error {
	return rle.lastErr
}

// Attempts returns how many times the function ran.
func (rle RetryLimitExceededErr) Attempts() int {
	return rle.attempts
}
