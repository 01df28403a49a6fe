package reconciler

import (
	"context"
	"os"
	"strings"
	"sync/atomic"

	"github.com/Vastxiao/mongocheckd/docid"
	"github.com/Vastxiao/mongocheckd/internal/checkpoint"
	"github.com/Vastxiao/mongocheckd/internal/cluster"
	"github.com/Vastxiao/mongocheckd/internal/testutil"
	"github.com/Vastxiao/mongocheckd/internal/util"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// seedOneToFive puts `_id` 1..5 on both sides, differing only at 3.
func (s *UnitTestSuite) seedOneToFive() {
	for i := 1; i <= 5; i++ {
		s.src.Insert(orders, bson.D{{Key: "_id", Value: i}, {Key: "v", Value: "x"}})

		if i == 3 {
			s.dst.Insert(orders, bson.D{{Key: "_id", Value: i}, {Key: "v", Value: "y"}})
		} else {
			s.dst.Insert(orders, bson.D{{Key: "_id", Value: i}, {Key: "v", Value: "x"}})
		}
	}
}

func (s *UnitTestSuite) TestEndToEnd() {
	s.seedOneToFive()

	scanner := s.scanner(s.scanOptions(2))
	s.Require().NoError(scanner.Run(s.Context(), orders))

	s.Assert().ElementsMatch(
		[]string{"1 int", "2 int", "4 int", "5 int"},
		s.successLines(orders),
	)

	failures := s.failureLines(orders)
	s.Require().Len(failures, 1)
	s.Assert().True(strings.HasPrefix(failures[0], "3 int {"), failures[0])
	s.Assert().Contains(failures[0], `"value_differs":{"v":{"source":"x","destination":"y"}}`)

	s.Assert().Equal("5\tint", s.checkpointText(orders))

	snap := scanner.tracker.Snapshots()[0]
	s.Assert().Equal(StateDone, snap.State)
	s.Assert().EqualValues(4, snap.Matched)
	s.Assert().EqualValues(1, snap.Mismatched)
	s.Assert().EqualValues(3, snap.Batches)
}

func (s *UnitTestSuite) TestResume() {
	s.seedOneToFive()

	s.Require().NoError(os.WriteFile(
		s.dir+"/shop.orders.check.success.txt",
		[]byte("1 int\n2 int\n"),
		0o644,
	))
	s.Require().NoError(s.store.Save(orders, checkpoint.Checkpoint{LastID: docid.Int(2)}))

	scanner := s.scanner(s.scanOptions(2))
	s.Require().NoError(scanner.Run(s.Context(), orders))

	lines := s.successLines(orders)
	s.Require().Len(lines, 4)
	s.Assert().Equal([]string{"1 int", "2 int"}, lines[:2], "existing lines are kept")
	s.Assert().ElementsMatch([]string{"4 int", "5 int"}, lines[2:])

	s.Assert().Len(s.failureLines(orders), 1)
	s.Assert().Equal(3, s.src.Calls(testutil.OpFindByID), "only 3, 4 and 5 are fetched")
	s.Assert().Equal("5\tint", s.checkpointText(orders))
	s.Assert().True(scanner.tracker.Snapshots()[0].Resumed)
}

func (s *UnitTestSuite) TestResumeAtCeiling() {
	s.seedOneToFive()
	s.Require().NoError(s.store.Save(orders, checkpoint.Checkpoint{LastID: docid.Int(5)}))

	s.Require().NoError(s.scanner(s.scanOptions(2)).Run(s.Context(), orders))

	s.Assert().Zero(s.src.Calls(testutil.OpFindByID))
	s.Assert().Equal("5\tint", s.checkpointText(orders))
}

func (s *UnitTestSuite) TestTerminationIgnoresLaterInserts() {
	for i := 1; i <= 5; i++ {
		s.insertBoth(orders, bson.D{{Key: "_id", Value: i}})
	}

	var inserted atomic.Bool
	s.src.SetHook(func(_ context.Context, op string, ns cluster.Namespace) error {
		if op == testutil.OpListIDs && inserted.CompareAndSwap(false, true) {
			for i := 6; i <= 9; i++ {
				s.insertBoth(ns, bson.D{{Key: "_id", Value: i}})
			}
		}

		return nil
	})

	s.Require().NoError(s.scanner(s.scanOptions(2)).Run(s.Context(), orders))

	s.Assert().Len(s.successLines(orders), 5)
	s.Assert().Equal("5\tint", s.checkpointText(orders))
}

func (s *UnitTestSuite) TestColdStartTruncates() {
	s.insertBoth(orders, bson.D{{Key: "_id", Value: "a"}}, bson.D{{Key: "_id", Value: "b"}})

	s.Require().NoError(os.WriteFile(s.dir+"/shop.orders.check.success.txt", []byte("stale str\n"), 0o644))
	s.Require().NoError(os.WriteFile(s.dir+"/shop.orders.check.failure.txt", []byte("stale str {}\n"), 0o644))

	s.Require().NoError(s.scanner(s.scanOptions(10)).Run(s.Context(), orders))

	s.Assert().ElementsMatch([]string{"a str", "b str"}, s.successLines(orders))
	s.Assert().Empty(s.failureLines(orders))
	s.Assert().Equal("b\tstr", s.checkpointText(orders))
}

func (s *UnitTestSuite) TestMalformedCheckpointStartsOver() {
	s.insertBoth(orders, bson.D{{Key: "_id", Value: 1}}, bson.D{{Key: "_id", Value: 2}})

	s.Require().NoError(os.WriteFile(s.store.Path(orders), []byte("2\tdecimal"), 0o644))
	s.Require().NoError(os.WriteFile(s.dir+"/shop.orders.check.success.txt", []byte("2 int\n"), 0o644))

	s.Require().NoError(s.scanner(s.scanOptions(10)).Run(s.Context(), orders))

	s.Assert().ElementsMatch([]string{"1 int", "2 int"}, s.successLines(orders))
	s.Assert().Equal("2\tint", s.checkpointText(orders))
}

func (s *UnitTestSuite) TestEmptyCollection() {
	s.src.CreateCollection(orders)

	scanner := s.scanner(s.scanOptions(10))
	s.Require().NoError(scanner.Run(s.Context(), orders))

	s.Assert().Zero(s.src.Calls(testutil.OpListIDs))
	s.Assert().NoFileExists(s.store.Path(orders))
	s.Assert().Empty(s.successLines(orders))
	s.Assert().Equal(StateDone, scanner.tracker.Snapshots()[0].State)
}

func (s *UnitTestSuite) TestMixedKinds() {
	s.insertBoth(
		orders,
		bson.D{{Key: "_id", Value: true}},
		bson.D{{Key: "_id", Value: "s"}},
		bson.D{{Key: "_id", Value: 2.5}},
		bson.D{{Key: "_id", Value: 1}},
	)

	s.Require().NoError(s.scanner(s.scanOptions(3)).Run(s.Context(), orders))

	s.Assert().ElementsMatch(
		[]string{"1 int", "2.5 float", "s str", "true bool"},
		s.successLines(orders),
	)
	s.Assert().Equal("true\tbool", s.checkpointText(orders))
}

func (s *UnitTestSuite) TestMissingDocuments() {
	s.src.Insert(orders, bson.D{{Key: "_id", Value: 1}}, bson.D{{Key: "_id", Value: 2}})
	s.dst.Insert(orders, bson.D{{Key: "_id", Value: 1}})

	s.Run("skipped by default", func() {
		scanner := s.scanner(s.scanOptions(10))
		s.Require().NoError(scanner.Run(s.Context(), orders))

		s.Assert().Equal([]string{"1 int"}, s.successLines(orders))
		s.Assert().Empty(s.failureLines(orders))
		s.Assert().EqualValues(1, scanner.tracker.Snapshots()[0].Skipped)
	})

	s.Run("reported on request", func() {
		s.Require().NoError(s.store.Delete(orders))

		opts := s.scanOptions(10)
		opts.ReportMissing = true

		s.Require().NoError(s.scanner(opts).Run(s.Context(), orders))

		s.Assert().Equal([]string{"1 int"}, s.successLines(orders))
		s.Assert().Equal(
			[]string{`2 int {"missing_on_destination":{"$":{}}}`},
			s.failureLines(orders),
		)
	})
}

func (s *UnitTestSuite) TestFatalErrorKeepsLastCompletedBatch() {
	for i := 1; i <= 6; i++ {
		s.insertBoth(orders, bson.D{{Key: "_id", Value: i}})
	}

	boom := errors.New("not authorized")

	var calls atomic.Int32
	s.dst.SetHook(func(_ context.Context, op string, _ cluster.Namespace) error {
		if op == testutil.OpFindByID && calls.Add(1) > 2 {
			return boom
		}

		return nil
	})

	scanner := s.scanner(s.scanOptions(2))
	err := scanner.Run(s.Context(), orders)
	s.Require().ErrorIs(err, boom)

	s.Assert().Equal("2\tint", s.checkpointText(orders))
	s.Assert().Equal(StateFailed, scanner.tracker.Snapshots()[0].State)
	s.Assert().NotNil(scanner.tracker.Snapshots()[0].Error)

	// Lines of the failed batch that did complete are still flushed.
	s.Assert().Subset(s.successLines(orders), []string{"1 int", "2 int"})
}

func (s *UnitTestSuite) TestBatchSizeCap() {
	s.insertBoth(orders, bson.D{{Key: "_id", Value: 1}})

	err := s.scanner(s.scanOptions(cluster.MaxPageSize+1)).Run(s.Context(), orders)
	s.Require().ErrorAs(err, new(*util.ConfigError))

	s.Assert().Zero(s.src.Calls(testutil.OpListIDs))
	s.Assert().Zero(s.src.Calls(testutil.OpLastID))
}

func (s *UnitTestSuite) TestCanceledContext() {
	s.insertBoth(orders, bson.D{{Key: "_id", Value: 1}})

	ctx, cancel := context.WithCancel(s.Context())
	cancel()

	err := s.scanner(s.scanOptions(10)).Run(ctx, orders)
	s.Require().ErrorIs(err, context.Canceled)

	// Result files were opened and closed cleanly.
	s.Assert().FileExists(s.dir + "/shop.orders.check.success.txt")
}
