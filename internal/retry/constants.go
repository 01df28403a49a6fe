package retry

import "time"

const (
	// DefaultMaxAttempts is how many times a call runs, in total, before a
	// transient failure is given up on.
	DefaultMaxAttempts = 3

	// DefaultDelay is the pause between attempts.
	DefaultDelay = 500 * time.Millisecond
)
