package cluster

import (
	"context"
	"time"

	"github.com/Vastxiao/mongocheckd/internal/logger"
	"github.com/Vastxiao/mongocheckd/internal/retry"
	"github.com/Vastxiao/mongocheckd/internal/util"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/time/rate"
)

var maxTimeExpired = mongo.CommandError{Name: "MaxTimeMSExpired", Code: util.MaxTimeMSExpired}

// offlineMongo is a Mongo with no client, enough to drive run().
func offlineMongo(attempts int) *Mongo {
	return &Mongo{
		name:        "source",
		retryer:     retry.New(retry.Policy{MaxAttempts: attempts, Delay: time.Millisecond}),
		limiter:     rate.NewLimiter(rate.Inf, 1),
		pageTimeout: 2 * time.Second,
		logger:      logger.NewDefaultLogger(),
	}
}

func (s *UnitTestSuite) TestRunTimeoutBecomesConnectionError() {
	m := offlineMongo(3)

	calls := 0
	err := m.run(context.Background(), "find _id page", func(context.Context) error {
		calls++
		return m.markTimeout("find _id page", maxTimeExpired)
	})

	s.Assert().Equal(3, calls)

	var connErr *ConnectionError
	s.Require().ErrorAs(err, &connErr)
	s.Assert().Equal("source", connErr.Cluster)

	var timeoutErr *TimeoutError
	s.Require().ErrorAs(err, &timeoutErr)
	s.Assert().Equal(2*time.Second, timeoutErr.Limit)

	var rle retry.RetryLimitExceededErr
	s.Require().ErrorAs(err, &rle)
	s.Assert().Equal(3, rle.Attempts())

	s.Assert().Equal(util.MaxTimeMSExpired, util.GetErrorCode(err))
	s.Assert().NotErrorAs(err, new(*OperationError))
}

func (s *UnitTestSuite) TestRunRecoversFromTransientError() {
	m := offlineMongo(3)

	calls := 0
	err := m.run(context.Background(), "find by _id", func(context.Context) error {
		calls++
		if calls == 1 {
			return m.markTimeout("find by _id", maxTimeExpired)
		}
		return nil
	})

	s.Assert().NoError(err)
	s.Assert().Equal(2, calls)
}

func (s *UnitTestSuite) TestRunPermanentErrorBecomesOperationError() {
	m := offlineMongo(3)
	bad := mongo.CommandError{Name: "Unauthorized", Code: util.Unauthorized}

	calls := 0
	err := m.run(context.Background(), "list databases", func(context.Context) error {
		calls++
		return bad
	})

	s.Assert().Equal(1, calls)

	var opErr *OperationError
	s.Require().ErrorAs(err, &opErr)
	s.Assert().Equal("list databases", opErr.Op)
	s.Assert().Equal(util.Unauthorized, util.GetErrorCode(err))
	s.Assert().NotErrorAs(err, new(*ConnectionError))
}

func (s *UnitTestSuite) TestRunUnsupportedIDIsNotRetried() {
	m := offlineMongo(3)

	doc, err := bson.Marshal(bson.D{{Key: "_id", Value: bson.D{{Key: "a", Value: 1}}}})
	s.Require().NoError(err)

	calls := 0
	err = m.run(context.Background(), "list _id values", func(context.Context) error {
		calls++
		return &UnsupportedIDError{
			Namespace: Namespace{DB: "shop", Coll: "orders"},
			Doc:       doc,
			cause:     errors.New("unsupported _id type: embedded document"),
		}
	})

	s.Assert().Equal(1, calls)
	s.Assert().ErrorAs(err, new(*OperationError))
	s.Assert().ErrorAs(err, new(*UnsupportedIDError))
}

func (s *UnitTestSuite) TestRunPassesThroughSentinels() {
	m := offlineMongo(3)

	err := m.run(context.Background(), "read last _id", func(context.Context) error {
		return ErrNotFound
	})
	s.Assert().ErrorIs(err, ErrNotFound)
	s.Assert().NotErrorAs(err, new(*OperationError))

	err = m.run(context.Background(), "list _id values", func(context.Context) error {
		return util.NewConfigError("limit", "too big")
	})
	s.Assert().ErrorAs(err, new(*util.ConfigError))
	s.Assert().NotErrorAs(err, new(*OperationError))
}

func (s *UnitTestSuite) TestRunCanceledContext() {
	m := offlineMongo(3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := m.run(ctx, "find by _id", func(context.Context) error {
		calls++
		return nil
	})

	s.Assert().ErrorIs(err, context.Canceled)
	s.Assert().Zero(calls)
	s.Assert().NotErrorAs(err, new(*OperationError))
	s.Assert().NotErrorAs(err, new(*ConnectionError))
}

func (s *UnitTestSuite) TestMarkTimeout() {
	m := offlineMongo(1)

	s.Assert().NoError(m.markTimeout("find", nil))

	other := errors.New("boom")
	s.Assert().Equal(other, m.markTimeout("find", other))

	err := m.markTimeout("find", errors.Wrap(maxTimeExpired, "reading page"))
	s.Assert().ErrorAs(err, new(*TimeoutError))
	s.Assert().ErrorContains(err, "find exceeded its 2s time limit")
}
