package localdb

import (
	"github.com/Vastxiao/mongocheckd/docid"
	"github.com/Vastxiao/mongocheckd/internal/cluster"
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

const seenKeyPrefix = "seen\x00"

func nsPrefix(ns cluster.Namespace) []byte {
	return []byte(seenKeyPrefix + ns.String() + "\x00")
}

func seenKey(ns cluster.Namespace, id docid.ID) []byte {
	text, kind := docid.Encode(id)
	return append(nsPrefix(ns), []byte(string(kind)+"\x00"+text)...)
}

// Contains reports whether Record has stored id for ns.
func (ldb *LocalDB) Contains(ns cluster.Namespace, id docid.ID) (bool, error) {
	var found bool

	err := ldb.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(seenKey(ns, id))

		switch {
		case err == nil:
			found = true
		case errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}

		return nil
	})

	return found, errors.Wrapf(err, "looking up %s in %s", id, ns)
}

// Record stores ids for ns. Call it only after their result lines are
// durable.
func (ldb *LocalDB) Record(ns cluster.Namespace, ids []docid.ID) error {
	if len(ids) == 0 {
		return nil
	}

	wb := ldb.db.NewWriteBatch()
	defer wb.Cancel()

	for _, id := range ids {
		if err := wb.Set(seenKey(ns, id), []byte{}); err != nil {
			return errors.Wrapf(err, "recording %s in %s", id, ns)
		}
	}

	return errors.Wrapf(wb.Flush(), "recording %d ID(s) in %s", len(ids), ns)
}

// Forget drops every record for ns.
func (ldb *LocalDB) Forget(ns cluster.Namespace) error {
	ldb.log.Debug().
		Str("namespace", ns.String()).
		Msg("Dropping deduplication records.")

	return errors.Wrapf(ldb.db.DropPrefix(nsPrefix(ns)), "forgetting %s", ns)
}
