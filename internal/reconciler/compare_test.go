package reconciler

import (
	"github.com/Vastxiao/mongocheckd/docid"
	"github.com/Vastxiao/mongocheckd/internal/docdiff"
	"go.mongodb.org/mongo-driver/bson"
)

func (s *UnitTestSuite) TestCompareFieldOrder() {
	s.src.Insert(orders, bson.D{{Key: "_id", Value: 1}, {Key: "a", Value: 1}, {Key: "b", Value: 2}})
	s.dst.Insert(orders, bson.D{{Key: "_id", Value: 1}, {Key: "b", Value: 2}, {Key: "a", Value: 1}})

	outcome, err := s.scanner(s.scanOptions(1)).compare(s.Context(), orders, docid.Int(1))
	s.Require().NoError(err)
	s.Assert().Equal(OutcomeMatch, outcome.Kind)

	opts := s.scanOptions(1)
	opts.IgnoreFieldOrder = false

	outcome, err = s.scanner(opts).compare(s.Context(), orders, docid.Int(1))
	s.Require().NoError(err)
	s.Require().Equal(OutcomeMismatch, outcome.Kind)
	s.Assert().Equal(docdiff.FieldOrderDiffers, outcome.Diff.Entries[0].Kind)
}

func (s *UnitTestSuite) TestCompareIDTypeDifference() {
	s.src.Insert(orders, bson.D{{Key: "_id", Value: 1}, {Key: "a", Value: 1}})
	s.dst.Insert(orders, bson.D{{Key: "_id", Value: 1.0}, {Key: "a", Value: 1}})

	outcome, err := s.scanner(s.scanOptions(1)).compare(s.Context(), orders, docid.Int(1))
	s.Require().NoError(err)
	s.Require().Equal(OutcomeMismatch, outcome.Kind)
	s.Assert().Equal("_id", outcome.Diff.Entries[0].Path)
	s.Assert().Equal(docdiff.TypeDiffers, outcome.Diff.Entries[0].Kind)
}
