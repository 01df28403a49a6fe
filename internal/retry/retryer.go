package retry

import (
	"fmt"
	"time"

	"github.com/samber/mo"
)

// Policy bounds how a Retryer retries: a fixed number of total attempts
// with a constant delay between them.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
	}
}

// Retryer handles retrying operations that fail because of network failures.
type Retryer struct {
	policy      Policy
	description mo.Option[string]
}

// New returns a new retryer.
func New(policy Policy) *Retryer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	return &Retryer{
		policy: policy,
	}
}

func (r *Retryer) WithDescription(msg string, args ...any) *Retryer {
	r2 := *r
	r2.description = mo.Some(fmt.Sprintf(msg, args...))

	return &r2
}
