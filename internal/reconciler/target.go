package reconciler

import (
	"context"
	"slices"
	"strings"

	"github.com/Vastxiao/mongocheckd/internal/cluster"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Target is one collection to scan.
type Target = cluster.Namespace

// ResolveTargets decides what to scan, once, at startup:
//   - explicit `db.coll` entries, verbatim, if any are given;
//   - else every collection in the listed databases;
//   - else every collection in every user database.
//
// The result is deduplicated and sorted.
func ResolveTargets(
	ctx context.Context,
	src cluster.Cluster,
	collections []string,
	dbs []string,
) ([]Target, error) {
	collections = nonEmpty(collections)
	dbs = nonEmpty(dbs)

	var targets []Target

	switch {
	case len(collections) > 0:
		for _, entry := range collections {
			ns, err := cluster.ParseNamespace(entry)
			if err != nil {
				return nil, err
			}

			targets = append(targets, ns)
		}
	default:
		if len(dbs) == 0 {
			var err error
			dbs, err = src.ListDatabases(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "listing source databases")
			}
		}

		for _, db := range dbs {
			colls, err := src.ListCollections(ctx, db)
			if err != nil {
				return nil, errors.Wrapf(err, "listing collections in source database %#q", db)
			}

			for _, coll := range colls {
				targets = append(targets, Target{DB: db, Coll: coll})
			}
		}
	}

	targets = lo.Uniq(targets)
	slices.SortFunc(targets, func(a, b Target) int {
		return strings.Compare(a.String(), b.String())
	})

	return targets, nil
}

func nonEmpty(entries []string) []string {
	return lo.FilterMap(entries, func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	})
}
