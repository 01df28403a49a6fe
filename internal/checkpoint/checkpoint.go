// Package checkpoint persists the highest `_id` whose batch finished, one
// file per collection.
package checkpoint

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Vastxiao/mongocheckd/docid"
	"github.com/Vastxiao/mongocheckd/internal/cluster"
	"github.com/Vastxiao/mongocheckd/internal/logger"
	"github.com/pkg/errors"
	"github.com/samber/mo"
)

const fileSuffix = ".skip.txt"

// Checkpoint means every `_id` up to and including LastID has been
// compared and its result is durable.
type Checkpoint struct {
	LastID docid.ID
}

// Store is what the scanner needs to resume.
type Store interface {
	Load(ns cluster.Namespace) (mo.Option[Checkpoint], error)
	Save(ns cluster.Namespace, cp Checkpoint) error
	Delete(ns cluster.Namespace) error
}

// FileStore keeps each checkpoint in `<dir>/<db>.<coll>.skip.txt` as
// `<id-text>\t<kind-tag>`.
type FileStore struct {
	dir    string
	logger *logger.Logger
}

var _ Store = &FileStore{}

func NewFileStore(dir string, l *logger.Logger) *FileStore {
	return &FileStore{dir: dir, logger: l}
}

// Path returns the checkpoint file for ns.
func (fs *FileStore) Path(ns cluster.Namespace) string {
	return filepath.Join(fs.dir, ns.String()+fileSuffix)
}

// Load returns the stored checkpoint. A missing file yields None. So does a
// file that cannot be parsed; that case is logged, and the scan starts over.
func (fs *FileStore) Load(ns cluster.Namespace) (mo.Option[Checkpoint], error) {
	path := fs.Path(ns)

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return mo.None[Checkpoint](), nil
	}
	if err != nil {
		return mo.None[Checkpoint](), errors.Wrapf(err, "reading checkpoint %#q", path)
	}

	id, err := parse(string(content))
	if err != nil {
		fs.logger.Warn().
			Err(err).
			Str("namespace", ns.String()).
			Str("path", path).
			Msg("Ignoring unreadable checkpoint. This collection will be checked from the start.")

		return mo.None[Checkpoint](), nil
	}

	return mo.Some(Checkpoint{LastID: id}), nil
}

func parse(content string) (docid.ID, error) {
	// The tag never contains a tab; a string `_id` might.
	sep := strings.LastIndexByte(content, '\t')
	if sep < 0 {
		return docid.ID{}, errors.Errorf("expected `<id>\\t<kind>`, found %#q", content)
	}

	return docid.Decode(content[:sep], strings.TrimSpace(content[sep+1:]))
}

// Save replaces the checkpoint atomically: readers see either the old or
// the new one, never a partial write.
func (fs *FileStore) Save(ns cluster.Namespace, cp Checkpoint) error {
	text, kind := docid.Encode(cp.LastID)
	path := fs.Path(ns)

	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating checkpoint directory %#q", fs.dir)
	}

	tmp, err := os.CreateTemp(fs.dir, "."+ns.String()+fileSuffix+".*")
	if err != nil {
		return errors.Wrapf(err, "creating temporary checkpoint for %s", ns)
	}

	// Harmless once the rename succeeds.
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text + "\t" + string(kind)); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing checkpoint for %s", ns)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "syncing checkpoint for %s", ns)
	}

	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing checkpoint for %s", ns)
	}

	return errors.Wrapf(os.Rename(tmp.Name(), path), "replacing checkpoint %#q", path)
}

// Delete removes the checkpoint, if any.
func (fs *FileStore) Delete(ns cluster.Namespace) error {
	err := os.Remove(fs.Path(ns))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return errors.Wrapf(err, "removing checkpoint for %s", ns)
}
