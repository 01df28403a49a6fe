package cluster

import (
	"testing"

	"github.com/Vastxiao/mongocheckd/internal/util"
	"github.com/stretchr/testify/suite"
)

type UnitTestSuite struct {
	suite.Suite
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, &UnitTestSuite{})
}

func (s *UnitTestSuite) TestParseNamespace() {
	ns, err := ParseNamespace(" shop.orders.archive ")
	s.Require().NoError(err)
	s.Assert().Equal(Namespace{DB: "shop", Coll: "orders.archive"}, ns)
	s.Assert().Equal("shop.orders.archive", ns.String())

	for _, bad := range []string{"", "shop", ".orders", "shop."} {
		_, err := ParseNamespace(bad)
		s.Assert().ErrorAs(err, new(*util.ConfigError), "%#q", bad)
	}
}

func (s *UnitTestSuite) TestCheckPageBounds() {
	s.Assert().NoError(CheckPageBounds(0, 1))
	s.Assert().NoError(CheckPageBounds(MaxPageSize, MaxPageSize))

	for _, pair := range [][2]int{
		{MaxPageSize + 1, 10},
		{0, MaxPageSize + 1},
		{-1, 10},
		{0, 0},
	} {
		err := CheckPageBounds(pair[0], pair[1])
		s.Assert().ErrorAs(err, new(*util.ConfigError), "%v", pair)
	}
}

func (s *UnitTestSuite) TestExclusions() {
	for _, db := range []string{"admin", "config", "local", "__mdb_internal_canary", "mongosync_internal_1"} {
		s.Assert().False(IsUserDB(db), db)
	}
	s.Assert().True(IsUserDB("shop"))

	s.Assert().False(IsUserCollection("system.views"))
	s.Assert().True(IsUserCollection("orders"))
}

func (s *UnitTestSuite) TestParseURI() {
	opts, added, err := parseURI("srcURI", "mongodb://localhost:27017")
	s.Require().NoError(err)
	s.Assert().True(added)
	s.Assert().True(*opts.Direct)

	_, added, err = parseURI("srcURI", "mongodb://a:1,b:2/?replicaSet=rs0")
	s.Require().NoError(err)
	s.Assert().False(added)

	var cfgErr *util.ConfigError

	err = ValidateURI("srcURI", "")
	s.Require().ErrorAs(err, &cfgErr)
	s.Assert().Equal("srcURI", cfgErr.Field)

	err = ValidateURI("dstURI", "http://nope")
	s.Require().ErrorAs(err, &cfgErr)
	s.Assert().Equal("dstURI", cfgErr.Field)
}
