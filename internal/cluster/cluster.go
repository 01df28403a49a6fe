// Package cluster is the checker's only door to the database clusters. It
// hides connection pooling, retries, and driver error translation behind the
// Cluster interface.
package cluster

import (
	"context"
	"strings"

	"github.com/Vastxiao/mongocheckd/docid"
	"github.com/Vastxiao/mongocheckd/internal/util"
	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
)

// Namespace identifies one collection.
type Namespace struct {
	DB   string `json:"db"`
	Coll string `json:"coll"`
}

func (ns Namespace) String() string {
	return ns.DB + "." + ns.Coll
}

// ParseNamespace splits a `db.collection` string. The collection part may
// itself contain dots.
func ParseNamespace(s string) (Namespace, error) {
	s = strings.TrimSpace(s)

	db, coll, found := strings.Cut(s, ".")
	if !found || db == "" || coll == "" {
		return Namespace{}, util.NewConfigError(
			"checkCollections",
			"%#q is not of the form `database.collection`",
			s,
		)
	}

	return Namespace{DB: db, Coll: coll}, nil
}

// Cluster is what the checker needs from a cluster. Implementations retry
// transient failures themselves and return only the error types in this
// package (plus context errors and *util.ConfigError).
type Cluster interface {
	// Name is "source" or "destination"; it appears in logs and errors.
	Name() string

	// LastID returns the greatest `_id` in the collection, or ErrNotFound
	// if the collection is empty.
	LastID(ctx context.Context, ns Namespace) (docid.ID, error)

	// ListIDs returns up to limit `_id` values strictly greater than after
	// (or from the start if after is absent), in ascending order. skip and
	// limit may not exceed MaxPageSize.
	ListIDs(ctx context.Context, ns Namespace, after mo.Option[docid.ID], skip, limit int) ([]docid.ID, error)

	// FindByID returns the document with the given `_id`, or None if it
	// does not exist.
	FindByID(ctx context.Context, ns Namespace, id docid.ID) (mo.Option[bson.Raw], error)

	// ListDatabases returns the names of all user databases.
	ListDatabases(ctx context.Context) ([]string, error)

	// ListCollections returns the names of all non-system collections in db.
	ListCollections(ctx context.Context, db string) ([]string, error)

	Close(ctx context.Context) error
}
