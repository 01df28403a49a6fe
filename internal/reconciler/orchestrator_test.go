package reconciler

import (
	"bytes"
	"context"

	"github.com/Vastxiao/mongocheckd/docid"
	"github.com/Vastxiao/mongocheckd/internal/checkpoint"
	"github.com/Vastxiao/mongocheckd/internal/cluster"
	"github.com/Vastxiao/mongocheckd/internal/testutil"
	"github.com/Vastxiao/mongocheckd/internal/util"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	shopOrders = Target{DB: "shop", Coll: "orders"}
	shopUsers  = Target{DB: "shop", Coll: "users"}
	crmLeads   = Target{DB: "crm", Coll: "leads"}
)

func (s *UnitTestSuite) seedTargets() {
	for _, target := range []Target{shopOrders, shopUsers, crmLeads} {
		s.insertBoth(target, bson.D{{Key: "_id", Value: 1}}, bson.D{{Key: "_id", Value: 2}})
	}

	s.src.Insert(Target{DB: "admin", Coll: "users"}, bson.D{{Key: "_id", Value: 1}})
	s.src.Insert(Target{DB: "shop", Coll: "system.views"}, bson.D{{Key: "_id", Value: 1}})
}

func (s *UnitTestSuite) TestResolveTargets() {
	s.seedTargets()

	s.Run("explicit list, verbatim", func() {
		targets, err := ResolveTargets(
			s.Context(),
			s.src,
			[]string{"shop.users", " crm.leads", "shop.users", "other.thing"},
			[]string{"ignored"},
		)
		s.Require().NoError(err)
		s.Assert().Equal(
			[]Target{crmLeads, {DB: "other", Coll: "thing"}, shopUsers},
			targets,
		)
	})

	s.Run("malformed entry", func() {
		_, err := ResolveTargets(s.Context(), s.src, []string{"shop.users", "nodot"}, nil)
		s.Assert().ErrorAs(err, new(*util.ConfigError))
	})

	s.Run("database filter", func() {
		targets, err := ResolveTargets(s.Context(), s.src, nil, []string{"shop"})
		s.Require().NoError(err)
		s.Assert().Equal([]Target{shopOrders, shopUsers}, targets)
	})

	s.Run("everything", func() {
		targets, err := ResolveTargets(s.Context(), s.src, []string{""}, nil)
		s.Require().NoError(err)
		s.Assert().Equal([]Target{crmLeads, shopOrders, shopUsers}, targets)
	})
}

func (s *UnitTestSuite) orchestrator(policy CancelPolicy, concurrency int) *Orchestrator {
	return NewOrchestrator(
		s.src,
		s.dst,
		s.store,
		Options{
			CollectionConcurrency: concurrency,
			CancelPolicy:          policy,
			Scan:                  s.scanOptions(10),
		},
		s.logger,
	)
}

func (s *UnitTestSuite) TestOrchestratorRunsAll() {
	s.seedTargets()

	summary, err := s.orchestrator(FailFast, 2).Run(s.Context())
	s.Require().NoError(err)

	s.Require().Len(summary.Collections, 3)
	for _, c := range summary.Collections {
		s.Assert().Equal(StateDone, c.State, c.Namespace)
		s.Assert().EqualValues(2, c.Matched, c.Namespace)
	}
	s.Assert().Zero(summary.Failed())

	buf := &bytes.Buffer{}
	s.Require().NoError(summary.Render(buf))
	s.Assert().Contains(buf.String(), "crm.leads")
	s.Assert().Contains(buf.String(), "3 collection(s), 0 failed")
}

func (s *UnitTestSuite) TestOrchestratorClean() {
	s.insertBoth(shopOrders, bson.D{{Key: "_id", Value: 1}}, bson.D{{Key: "_id", Value: 2}})
	s.Require().NoError(s.store.Save(shopOrders, checkpoint.Checkpoint{LastID: docid.Int(2)}))

	o := NewOrchestrator(s.src, s.dst, s.store, Options{
		Collections:  []string{"shop.orders"},
		CancelPolicy: FailFast,
		Clean:        true,
		Scan:         s.scanOptions(10),
	}, s.logger)

	_, err := o.Run(s.Context())
	s.Require().NoError(err)

	s.Assert().Equal(2, s.src.Calls(testutil.OpFindByID), "the checkpoint was discarded")
}

func (s *UnitTestSuite) TestOrchestratorRejectsUnknownPolicy() {
	_, err := s.orchestrator("sometimes", 1).Run(s.Context())
	s.Assert().ErrorAs(err, new(*util.ConfigError))
}

// failOrdersBlockOthers fails every read of shop.orders and makes reads of
// other collections wait for cancellation when block is set.
func (s *UnitTestSuite) failOrdersBlockOthers(block bool) error {
	boom := errors.New("permission denied")

	s.dst.SetHook(func(ctx context.Context, op string, ns cluster.Namespace) error {
		if op != testutil.OpFindByID {
			return nil
		}

		if ns == shopOrders {
			return boom
		}

		if block {
			<-ctx.Done()
			return ctx.Err()
		}

		return nil
	})

	return boom
}

func (s *UnitTestSuite) TestFailFastCancelsSiblings() {
	s.seedTargets()
	boom := s.failOrdersBlockOthers(true)

	summary, err := s.orchestrator(FailFast, 3).Run(s.Context())
	s.Require().ErrorIs(err, boom)

	byNS := lo.KeyBy(summary.Collections, func(c ProgressSnapshot) string { return c.Namespace })
	s.Assert().Equal(StateFailed, byNS["shop.orders"].State)

	// Siblings either failed with the cancellation or never started.
	s.Assert().NotEqual(StateDone, byNS["shop.users"].State)
	s.Assert().NotEqual(StateDone, byNS["crm.leads"].State)
	s.Assert().Equal(3, summary.Failed())
}

func (s *UnitTestSuite) TestFinishOthersRunsEverything() {
	s.seedTargets()
	boom := s.failOrdersBlockOthers(false)

	summary, err := s.orchestrator(FinishOthers, 1).Run(s.Context())
	s.Require().ErrorIs(err, boom)
	s.Assert().ErrorContains(err, "shop.orders")

	byNS := lo.KeyBy(summary.Collections, func(c ProgressSnapshot) string { return c.Namespace })
	s.Assert().Equal(StateFailed, byNS["shop.orders"].State)
	s.Assert().Equal(StateDone, byNS["shop.users"].State)
	s.Assert().Equal(StateDone, byNS["crm.leads"].State)
	s.Assert().Equal(1, summary.Failed())
}
