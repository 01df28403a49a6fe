// Package reconciler walks collections' `_id` values in batches, compares
// each document across the two clusters, and records the outcome.
package reconciler

import (
	"context"
	"slices"
	"time"

	"github.com/Vastxiao/mongocheckd/docid"
	"github.com/Vastxiao/mongocheckd/internal/checkpoint"
	"github.com/Vastxiao/mongocheckd/internal/cluster"
	"github.com/Vastxiao/mongocheckd/internal/logger"
	"github.com/Vastxiao/mongocheckd/internal/reportutils"
	"github.com/Vastxiao/mongocheckd/internal/resultlog"
	"github.com/pkg/errors"
	"github.com/samber/mo"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize = 50

	progressLogInterval = 10 * time.Second
)

// ScanOptions configures a Scanner.
type ScanOptions struct {
	// ResultDir receives checkpoint files and result logs.
	ResultDir string

	// BatchSize is both the page size and the number of comparisons in
	// flight per collection.
	BatchSize int

	// IgnoreFieldOrder makes documents equal regardless of field order.
	IgnoreFieldOrder bool

	// ReportMissing writes a failure line when a document exists on one
	// side only. Otherwise such IDs are skipped.
	ReportMissing bool

	// Dedup, if set, suppresses result lines already written by an earlier
	// run.
	Dedup resultlog.Dedup
}

// Scanner checks one collection at a time from its checkpoint up to the
// highest `_id` present when the scan began.
type Scanner struct {
	src     cluster.Cluster
	dst     cluster.Cluster
	store   checkpoint.Store
	opts    ScanOptions
	tracker *Tracker
	logger  *logger.Logger
}

// NewScanner returns a Scanner. tracker may be nil.
func NewScanner(
	src, dst cluster.Cluster,
	store checkpoint.Store,
	opts ScanOptions,
	tracker *Tracker,
	l *logger.Logger,
) *Scanner {
	if tracker == nil {
		tracker = NewTracker()
	}

	return &Scanner{
		src:     src,
		dst:     dst,
		store:   store,
		opts:    opts,
		tracker: tracker,
		logger:  l,
	}
}

// Run scans target to completion. On return (error or not) the result logs
// are flushed and closed. The checkpoint names the last batch that fully
// completed, so a later Run resumes after it.
func (s *Scanner) Run(ctx context.Context, target Target) (err error) {
	prog := s.tracker.Register(target)
	prog.setState(StateInit)

	defer func() { prog.finish(err) }()

	log := logger.NewSubLogger(s.logger, "namespace", target.String())

	pager, err := cluster.NewPager(s.src, target, s.opts.BatchSize)
	if err != nil {
		return err
	}

	cp, err := s.store.Load(target)
	if err != nil {
		return errors.Wrapf(err, "loading checkpoint for %s", target)
	}

	// Without a checkpoint, earlier results are stale.
	logs, err := resultlog.Open(s.opts.ResultDir, target, cp.IsAbsent(), s.opts.Dedup)
	if err != nil {
		return errors.Wrapf(err, "opening result logs for %s", target)
	}
	defer func() {
		err = multierr.Append(err, errors.Wrapf(logs.Close(), "closing result logs for %s", target))
	}()

	ceiling, err := s.src.LastID(ctx, target)
	if errors.Is(err, cluster.ErrNotFound) {
		log.Info().Msg("Source collection is empty. Nothing to check.")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading %s’s highest _id on the source", target)
	}

	after := mo.None[docid.ID]()
	if c, ok := cp.Get(); ok {
		after = mo.Some(c.LastID)

		log.Info().
			Stringer("checkpoint", c.LastID).
			Stringer("ceiling", ceiling).
			Msg("Resuming from checkpoint.")
	} else {
		log.Info().
			Stringer("ceiling", ceiling).
			Msg("Starting from the beginning.")
	}

	prog.startScanning(ceiling, after)

	startTime := time.Now()
	lastLogged := startTime

	for {
		page, err := pager.Next(ctx, after)
		if err != nil {
			return errors.Wrapf(err, "listing _id values after %s", describeBound(after))
		}

		// Documents inserted past the ceiling belong to a later run.
		batch := page[:clipIndex(page, ceiling)]
		if len(batch) == 0 {
			break
		}

		if err := s.runBatch(ctx, target, batch, logs, prog); err != nil {
			return err
		}

		last := docid.Max(batch...)

		if err := logs.Flush(); err != nil {
			return errors.Wrapf(err, "flushing result logs for %s", target)
		}

		if err := s.store.Save(target, checkpoint.Checkpoint{LastID: last}); err != nil {
			return errors.Wrapf(err, "saving checkpoint %s for %s", last, target)
		}

		after = mo.Some(last)
		prog.batchDone(last)

		if time.Since(lastLogged) >= progressLogInterval {
			lastLogged = time.Now()
			logProgress(log, prog, startTime)
		}

		if docid.CompareInStoreOrder(last, ceiling) >= 0 {
			break
		}
	}

	log.Info().
		Str("matched", reportutils.FmtCount(prog.matched.Load())).
		Str("mismatched", reportutils.FmtCount(prog.mismatched.Load())).
		Str("skipped", reportutils.FmtCount(prog.skipped.Load())).
		Str("elapsed", reportutils.DurationToHMS(time.Since(startTime))).
		Msg("Finished collection.")

	return nil
}

// runBatch compares every ID in the batch concurrently and waits for all
// of them. The first failure cancels the rest.
func (s *Scanner) runBatch(
	ctx context.Context,
	target Target,
	batch []docid.ID,
	logs *resultlog.Logs,
	prog *Progress,
) error {
	eg, egCtx := errgroup.WithContext(ctx)

	for _, id := range batch {
		eg.Go(func() error {
			outcome, err := s.compare(egCtx, target, id)
			if err != nil {
				return errors.Wrapf(err, "comparing _id %s in %s", id, target)
			}

			return s.record(target, id, outcome, logs, prog)
		})
	}

	return eg.Wait()
}

// clipIndex returns how many leading IDs of an ascending page are at or
// below the ceiling.
func clipIndex(page []docid.ID, ceiling docid.ID) int {
	idx := slices.IndexFunc(page, func(id docid.ID) bool {
		return docid.CompareInStoreOrder(id, ceiling) > 0
	})

	if idx < 0 {
		return len(page)
	}

	return idx
}

func describeBound(after mo.Option[docid.ID]) string {
	if id, ok := after.Get(); ok {
		return id.String()
	}

	return "the start"
}

func logProgress(log *logger.Logger, prog *Progress, startTime time.Time) {
	checked := prog.Checked()
	elapsed := time.Since(startTime)

	log.Info().
		Str("checked", reportutils.FmtCount(checked)).
		Str("mismatched", reportutils.FmtCount(prog.mismatched.Load())).
		Str("perSecond", reportutils.FmtRate(checked, elapsed)).
		Str("elapsed", reportutils.DurationToHMS(elapsed)).
		Msg("Scan progress.")
}
