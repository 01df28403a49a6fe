package localdb

import (
	"bytes"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

const (
	schemaVersionKey = "meta\x00formatVersion"
	schemaVersion    = uint16(1)
)

func verifySchemaVersion(db *badger.DB) error {
	metadataVersionBytes := formatUint(schemaVersion)

	return db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaVersionKey))

		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set([]byte(schemaVersionKey), metadataVersionBytes)
		}
		if err != nil {
			return errors.Wrap(err, "reading format version")
		}

		versionBytes, err := item.ValueCopy(nil)
		if err != nil {
			return errors.Wrap(err, "reading format version")
		}

		if bytes.Equal(versionBytes, metadataVersionBytes) {
			return nil
		}

		foundVersion, err := parseUint(versionBytes)
		if err != nil {
			return err
		}

		return errors.Errorf("found format version %d, but %d is required; is this directory from another tool?", foundVersion, schemaVersion)
	})
}

func parseUint(buf []byte) (uint64, error) {
	val, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %#q as %T", string(buf), val)
	}

	return val, nil
}

func formatUint[T constraints.Unsigned](num T) []byte {
	return []byte(strconv.FormatUint(uint64(num), 10))
}
