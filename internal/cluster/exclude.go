package cluster

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
)

const (
	// ExcludedSystemCollPrefix is the prefix of system collections,
	// which we ignore.
	ExcludedSystemCollPrefix = "system."

	// MongoDBInternalDBPrefix is the prefix for MongoDB-internal databases.
	// (e.g., Atlas’s availability canary)
	MongoDBInternalDBPrefix = "__mdb_internal"
)

var (
	// ExcludedSystemDBs are never listed as check targets.
	ExcludedSystemDBs = mapset.NewSet("admin", "config", "local")

	ExcludedDBPrefixes = []string{
		"mongosync_internal_",
		"mongosync_reserved_",
		MongoDBInternalDBPrefix,
	}
)

// IsUserDB reports whether a database should be discovered as a target.
func IsUserDB(name string) bool {
	if ExcludedSystemDBs.Contains(name) {
		return false
	}

	return !lo.SomeBy(
		ExcludedDBPrefixes,
		func(prefix string) bool { return strings.HasPrefix(name, prefix) },
	)
}

// IsUserCollection reports whether a collection should be discovered as a
// target.
func IsUserCollection(name string) bool {
	return !strings.HasPrefix(name, ExcludedSystemCollPrefix)
}
