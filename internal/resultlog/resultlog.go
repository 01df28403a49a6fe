// Package resultlog appends per-document outcomes to a collection's success
// and failure files.
package resultlog

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/Vastxiao/mongocheckd/docid"
	"github.com/Vastxiao/mongocheckd/internal/cluster"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	successSuffix = ".check.success.txt"
	failureSuffix = ".check.failure.txt"
)

// Dedup remembers which IDs already have a durable result line.
type Dedup interface {
	Contains(ns cluster.Namespace, id docid.ID) (bool, error)
	Record(ns cluster.Namespace, ids []docid.ID) error
	Forget(ns cluster.Namespace) error
}

// Logs holds one collection's two result files. It is safe for concurrent
// use.
type Logs struct {
	ns    cluster.Namespace
	dedup Dedup

	mu         sync.Mutex
	closed     bool
	success    *os.File
	failure    *os.File
	successBuf *bufio.Writer
	failureBuf *bufio.Writer
	pending    []docid.ID
}

// SuccessPath returns the success log path for ns under dir.
func SuccessPath(dir string, ns cluster.Namespace) string {
	return filepath.Join(dir, ns.String()+successSuffix)
}

// FailurePath returns the failure log path for ns under dir.
func FailurePath(dir string, ns cluster.Namespace) string {
	return filepath.Join(dir, ns.String()+failureSuffix)
}

// Open opens both files for appending. If truncate is set, both files
// (and any dedup records for ns) are emptied first. dedup may be nil.
func Open(dir string, ns cluster.Namespace, truncate bool, dedup Dedup) (*Logs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating result directory %#q", dir)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags |= os.O_TRUNC

		if dedup != nil {
			if err := dedup.Forget(ns); err != nil {
				return nil, err
			}
		}
	}

	success, err := os.OpenFile(SuccessPath(dir, ns), flags, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening success log for %s", ns)
	}

	failure, err := os.OpenFile(FailurePath(dir, ns), flags, 0o644)
	if err != nil {
		success.Close()
		return nil, errors.Wrapf(err, "opening failure log for %s", ns)
	}

	return &Logs{
		ns:         ns,
		dedup:      dedup,
		success:    success,
		failure:    failure,
		successBuf: bufio.NewWriter(success),
		failureBuf: bufio.NewWriter(failure),
	}, nil
}

// Success records that id matched on both sides, as "<id> <kind>".
//
// The id field is the docid text. An empty text, one with whitespace or
// non-printable characters, or one starting with a double quote is written
// as a Go-quoted string instead, so the first field always ends at the
// first space.
func (l *Logs) Success(id docid.ID) error {
	return l.write(id, true, idField(id)+"\n")
}

// Failure records that id differs, as "<id> <kind> <diff>". The id field
// follows the same quoting as Success. diffText must be a single line.
func (l *Logs) Failure(id docid.ID, diffText string) error {
	return l.write(id, false, idField(id)+" "+diffText+"\n")
}

func idField(id docid.ID) string {
	text, kind := docid.Encode(id)

	needsQuote := text == "" || strings.HasPrefix(text, `"`) ||
		strings.ContainsFunc(text, func(r rune) bool {
			return unicode.IsSpace(r) || !unicode.IsPrint(r)
		})

	if needsQuote {
		text = strconv.Quote(text)
	}

	return text + " " + string(kind)
}

func (l *Logs) write(id docid.ID, success bool, line string) error {
	if l.dedup != nil {
		seen, err := l.dedup.Contains(l.ns, id)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.Errorf("result logs for %s are closed", l.ns)
	}

	w := l.failureBuf
	if success {
		w = l.successBuf
	}

	if _, err := w.WriteString(line); err != nil {
		return errors.Wrapf(err, "writing result for %s in %s", id, l.ns)
	}

	if l.dedup != nil {
		l.pending = append(l.pending, id)
	}

	return nil
}

// Flush makes every line written so far durable.
func (l *Logs) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	return l.flushLocked()
}

func (l *Logs) flushLocked() error {
	for _, pair := range []struct {
		buf  *bufio.Writer
		file *os.File
	}{
		{l.successBuf, l.success},
		{l.failureBuf, l.failure},
	} {
		if err := pair.buf.Flush(); err != nil {
			return errors.Wrapf(err, "flushing %#q", pair.file.Name())
		}

		if err := pair.file.Sync(); err != nil {
			return errors.Wrapf(err, "syncing %#q", pair.file.Name())
		}
	}

	if l.dedup != nil && len(l.pending) > 0 {
		if err := l.dedup.Record(l.ns, l.pending); err != nil {
			return err
		}

		l.pending = l.pending[:0]
	}

	return nil
}

// Close flushes and closes both files. Later calls do nothing.
func (l *Logs) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true

	return multierr.Combine(
		l.flushLocked(),
		l.success.Close(),
		l.failure.Close(),
	)
}
