// Package localdb keeps a local record of which `_id` values already have a
// result line, so that a resumed run does not log them twice.
package localdb

import (
	"github.com/Vastxiao/mongocheckd/internal/logger"
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// LocalDB is the dedup index behind --dedupDir. It implements
// resultlog.Dedup.
type LocalDB struct {
	log *logger.Logger
	db  *badger.DB
}

// New opens (or creates) the index in dir.
func New(l *logger.Logger, dir string) (*LocalDB, error) {
	// Records land once per flushed batch and must survive a crash that
	// follows the result-log fsync.
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(dedupStoreLogger{logger.NewSubLogger(l, "component", "dedup")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening dedup index in %#q", dir)
	}

	if err := verifySchemaVersion(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "checking dedup index in %#q", dir)
	}

	return &LocalDB{l, db}, nil
}

func (ldb *LocalDB) Close() error {
	return errors.Wrap(ldb.db.Close(), "closing dedup index")
}

// dedupStoreLogger routes badger's own messages into our log. Badger is
// chatty, so its levels are shifted down one notch.
type dedupStoreLogger struct {
	l *logger.Logger
}

var _ badger.Logger = dedupStoreLogger{}

func (dl dedupStoreLogger) Errorf(tmpl string, args ...any) {
	dl.l.WithLevel(zerolog.ErrorLevel).Msgf(tmpl, args...)
}

func (dl dedupStoreLogger) Warningf(tmpl string, args ...any) {
	dl.l.WithLevel(zerolog.DebugLevel).Msgf(tmpl, args...)
}

func (dl dedupStoreLogger) Infof(tmpl string, args ...any) {
	dl.l.WithLevel(zerolog.TraceLevel).Msgf(tmpl, args...)
}

func (dl dedupStoreLogger) Debugf(tmpl string, args ...any) {
	dl.l.WithLevel(zerolog.TraceLevel).Msgf(tmpl, args...)
}
