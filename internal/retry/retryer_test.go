package retry

import (
	"context"
	"errors"
	"time"

	"github.com/Vastxiao/mongocheckd/internal/util"
	"go.mongodb.org/mongo-driver/mongo"
)

var someNetworkError = &mongo.CommandError{
	Labels: []string{"NetworkError"},
	Name:   "NetworkError",
}

var badError = errors.New("I am fatal!")

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Delay: time.Millisecond}
}

func (suite *UnitTestSuite) TestRetryer() {
	retryer := New(fastPolicy(5))
	logger := suite.Logger()

	suite.Run("with a function that immediately succeeds", func() {
		attemptNumber := -1
		f := func(_ context.Context, ri *FuncInfo) error {
			attemptNumber = ri.GetAttemptNumber()
			return nil
		}

		err := retryer.Run(suite.Context(), logger, f)
		suite.NoError(err)
		suite.Equal(0, attemptNumber)
	})

	suite.Run("with a function that succeeds after two attempts", func() {
		attemptNumber := -1
		f := func(_ context.Context, ri *FuncInfo) error {
			attemptNumber = ri.GetAttemptNumber()
			if attemptNumber < 2 {
				return someNetworkError
			}
			return nil
		}

		err := retryer.Run(suite.Context(), logger, f)
		suite.NoError(err)
		suite.Equal(2, attemptNumber)
	})

	suite.Run("with a non-transient error", func() {
		calls := 0
		f := func(_ context.Context, _ *FuncInfo) error {
			calls++
			return badError
		}

		err := retryer.Run(suite.Context(), logger, f)
		suite.ErrorIs(err, badError)
		suite.NotErrorAs(err, &RetryLimitExceededErr{})
		suite.Equal(1, calls)
	})
}

func (suite *UnitTestSuite) TestRetryerExhausted() {
	retryer := New(fastPolicy(3)).WithDescription("reading %s", "db.coll")

	calls := 0
	f := func(_ context.Context, _ *FuncInfo) error {
		calls++
		return someNetworkError
	}

	err := retryer.Run(suite.Context(), suite.Logger(), f)

	var rle RetryLimitExceededErr
	suite.Require().ErrorAs(err, &rle)
	suite.Assert().Equal(3, rle.Attempts())
	suite.Assert().ErrorIs(err, someNetworkError)
	suite.Assert().ErrorContains(err, "reading db.coll")
	suite.Assert().Equal(3, calls)
}

func (suite *UnitTestSuite) TestRetryerSingleAttempt() {
	retryer := New(Policy{MaxAttempts: 0})

	attemptNumber := -1
	f := func(_ context.Context, ri *FuncInfo) error {
		attemptNumber = ri.GetAttemptNumber()
		return someNetworkError
	}

	err := retryer.Run(suite.Context(), suite.Logger(), f)
	suite.Assert().ErrorAs(err, &RetryLimitExceededErr{})
	suite.Assert().Equal(0, attemptNumber)
}

func (suite *UnitTestSuite) TestCancelViaContext() {
	retryer := New(Policy{MaxAttempts: 10, Delay: time.Minute})

	ctx, cancel := context.WithCancel(suite.Context())

	counter := 0
	f := func(_ context.Context, _ *FuncInfo) error {
		counter++
		cancel()
		return someNetworkError
	}

	err := retryer.Run(ctx, suite.Logger(), f)
	suite.ErrorIs(err, context.Canceled)
	suite.Equal(1, counter)
}

func (suite *UnitTestSuite) TestRetryerNonTransientServerError() {
	retryer := New(fastPolicy(3))

	attempts := 0
	f := func(_ context.Context, _ *FuncInfo) error {
		attempts++
		return mongo.CommandError{Name: "Unauthorized", Code: util.Unauthorized}
	}

	err := retryer.Run(suite.Context(), suite.Logger(), f)
	suite.Equal(util.Unauthorized, util.GetErrorCode(err))
	suite.Equal(1, attempts)
}
