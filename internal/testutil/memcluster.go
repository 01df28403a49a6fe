package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/Vastxiao/mongocheckd/docid"
	"github.com/Vastxiao/mongocheckd/internal/cluster"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
)

// Operation names passed to a MemCluster hook.
const (
	OpLastID          = "LastID"
	OpListIDs         = "ListIDs"
	OpFindByID        = "FindByID"
	OpListDatabases   = "ListDatabases"
	OpListCollections = "ListCollections"
)

// Hook runs before every MemCluster operation. A non-nil return is
// returned from the operation as-is.
type Hook func(ctx context.Context, op string, ns cluster.Namespace) error

type memDoc struct {
	id  docid.ID
	raw bson.Raw
}

// MemCluster is an in-memory cluster.Cluster. Collections keep their
// documents in server `_id` order.
type MemCluster struct {
	name string

	mu    sync.Mutex
	colls map[cluster.Namespace][]memDoc
	calls map[string]int
	hook  Hook
}

var _ cluster.Cluster = &MemCluster{}

func NewMemCluster(name string) *MemCluster {
	return &MemCluster{
		name:  name,
		colls: map[cluster.Namespace][]memDoc{},
		calls: map[string]int{},
	}
}

// SetHook installs h, replacing any earlier hook.
func (m *MemCluster) SetHook(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hook = h
}

// CreateCollection makes an empty collection visible to listings.
func (m *MemCluster) CreateCollection(ns cluster.Namespace) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.colls[ns]; !ok {
		m.colls[ns] = nil
	}
}

// Insert upserts documents by `_id`. It panics if a document lacks a
// supported `_id`.
func (m *MemCluster) Insert(ns cluster.Namespace, docs ...bson.D) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.colls[ns]

	for _, d := range docs {
		raw := MustMarshal(d)

		id, err := docid.FromRawValue(raw.Lookup("_id"))
		if err != nil {
			panic("document _id (error in test): " + err.Error())
		}

		idx, found := slices.BinarySearchFunc(coll, id, func(md memDoc, id docid.ID) int {
			return docid.CompareInStoreOrder(md.id, id)
		})

		if found {
			coll[idx].raw = raw
		} else {
			coll = slices.Insert(coll, idx, memDoc{id: id, raw: raw})
		}
	}

	m.colls[ns] = coll
}

// Remove deletes the document with the given `_id`, if any.
func (m *MemCluster) Remove(ns cluster.Namespace, id docid.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.colls[ns] = slices.DeleteFunc(m.colls[ns], func(md memDoc) bool {
		return docid.CompareInStoreOrder(md.id, id) == 0
	})
}

// Calls returns how many times op has been invoked.
func (m *MemCluster) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[op]
}

func (m *MemCluster) Name() string {
	return m.name
}

func (m *MemCluster) enter(ctx context.Context, op string, ns cluster.Namespace) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.calls[op]++
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		return hook(ctx, op, ns)
	}

	return nil
}

func (m *MemCluster) LastID(ctx context.Context, ns cluster.Namespace) (docid.ID, error) {
	if err := m.enter(ctx, OpLastID, ns); err != nil {
		return docid.ID{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.colls[ns]
	if len(coll) == 0 {
		return docid.ID{}, cluster.ErrNotFound
	}

	return coll[len(coll)-1].id, nil
}

func (m *MemCluster) ListIDs(
	ctx context.Context,
	ns cluster.Namespace,
	after mo.Option[docid.ID],
	skip, limit int,
) ([]docid.ID, error) {
	if err := cluster.CheckPageBounds(skip, limit); err != nil {
		return nil, err
	}

	if err := m.enter(ctx, OpListIDs, ns); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.colls[ns]
	ids := lo.Map(coll, func(md memDoc, _ int) docid.ID { return md.id })

	bound, has := after.Get()
	if !has {
		start := min(skip, len(ids))
		return slices.Clone(ids[start:min(start+limit, len(ids))]), nil
	}

	// Like the server's `min` bound: the first ID at or past bound.
	start, _ := slices.BinarySearchFunc(ids, bound, docid.CompareInStoreOrder)
	read := ids[start:min(start+skip+limit+1, len(ids))]

	return slices.Clone(cluster.PageAfter(read, bound, skip, limit)), nil
}

func (m *MemCluster) FindByID(ctx context.Context, ns cluster.Namespace, id docid.ID) (mo.Option[bson.Raw], error) {
	if err := m.enter(ctx, OpFindByID, ns); err != nil {
		return mo.None[bson.Raw](), err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	md, found := lo.Find(m.colls[ns], func(md memDoc) bool {
		return docid.CompareInStoreOrder(md.id, id) == 0
	})
	if !found {
		return mo.None[bson.Raw](), nil
	}

	return mo.Some(slices.Clone(md.raw)), nil
}

func (m *MemCluster) ListDatabases(ctx context.Context) ([]string, error) {
	if err := m.enter(ctx, OpListDatabases, cluster.Namespace{}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dbs := lo.Uniq(lo.Map(lo.Keys(m.colls), func(ns cluster.Namespace, _ int) string { return ns.DB }))

	return lo.Filter(dbs, func(db string, _ int) bool { return cluster.IsUserDB(db) }), nil
}

func (m *MemCluster) ListCollections(ctx context.Context, db string) ([]string, error) {
	if err := m.enter(ctx, OpListCollections, cluster.Namespace{DB: db}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	for ns := range m.colls {
		if ns.DB == db && cluster.IsUserCollection(ns.Coll) {
			names = append(names, ns.Coll)
		}
	}

	return names, nil
}

func (m *MemCluster) Close(_ context.Context) error {
	return nil
}
