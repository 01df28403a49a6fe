package cluster

import (
	"context"

	"github.com/Vastxiao/mongocheckd/docid"
	"github.com/Vastxiao/mongocheckd/internal/util"
	"github.com/samber/mo"
)

// MaxPageSize caps both the page size and the skip distance of any `_id`
// listing. Larger skips force the server into long linear scans.
const MaxPageSize = 10_000

// CheckPageBounds rejects listings that would exceed MaxPageSize. Cluster
// implementations call it before doing any I/O.
func CheckPageBounds(skip, limit int) error {
	if skip < 0 || skip > MaxPageSize {
		return util.NewConfigError("skip", "must be between 0 and %d (got %d)", MaxPageSize, skip)
	}

	if limit < 1 || limit > MaxPageSize {
		return util.NewConfigError("limit", "must be between 1 and %d (got %d)", MaxPageSize, limit)
	}

	return nil
}

// Pager lists a collection's `_id` values one bounded page at a time.
// It holds no cursor; each call starts from an explicit lower bound, so a
// scan can resume from any persisted position.
type Pager struct {
	cluster   Cluster
	ns        Namespace
	batchSize int
}

// NewPager returns a Pager, or a *util.ConfigError if batchSize is out of
// bounds.
func NewPager(c Cluster, ns Namespace, batchSize int) (*Pager, error) {
	if err := CheckPageBounds(0, batchSize); err != nil {
		return nil, err
	}

	return &Pager{
		cluster:   c,
		ns:        ns,
		batchSize: batchSize,
	}, nil
}

// Next returns the page of IDs that follow after. An empty page means there
// is nothing left past that bound.
func (p *Pager) Next(ctx context.Context, after mo.Option[docid.ID]) ([]docid.ID, error) {
	return p.cluster.ListIDs(ctx, p.ns, after, 0, p.batchSize)
}

// PageAfter applies skip and limit to ids read in index order from an
// inclusive lower bound. The bound itself is dropped if it is still
// present, so the page starts strictly after it.
func PageAfter(ids []docid.ID, bound docid.ID, skip, limit int) []docid.ID {
	if len(ids) > 0 && docid.CompareInStoreOrder(ids[0], bound) == 0 {
		ids = ids[1:]
	}

	ids = ids[min(skip, len(ids)):]

	return ids[:min(limit, len(ids))]
}
