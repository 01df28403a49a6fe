package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/Vastxiao/mongocheckd/internal/checkpoint"
	"github.com/Vastxiao/mongocheckd/internal/cluster"
	"github.com/Vastxiao/mongocheckd/internal/logger"
	"github.com/Vastxiao/mongocheckd/internal/util"
	clone "github.com/huandu/go-clone/generic"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// CancelPolicy decides what happens to other collections when one fails.
type CancelPolicy string

const (
	// FailFast cancels every other scan on the first failure.
	FailFast CancelPolicy = "failFast"

	// FinishOthers lets the other scans run to completion, then reports
	// every failure.
	FinishOthers CancelPolicy = "finishOthers"
)

// CancelPolicies lists the valid policies.
var CancelPolicies = []CancelPolicy{FailFast, FinishOthers}

// Options configures an Orchestrator.
type Options struct {
	// Collections lists explicit `db.coll` targets.
	Collections []string

	// DBs restricts discovery to these databases when Collections is empty.
	DBs []string

	// CollectionConcurrency bounds how many collections scan at once.
	CollectionConcurrency int

	CancelPolicy CancelPolicy

	// Clean discards checkpoints before scanning, forcing a cold start.
	Clean bool

	Scan ScanOptions
}

// Orchestrator runs one Scanner per target collection.
type Orchestrator struct {
	src     cluster.Cluster
	dst     cluster.Cluster
	store   checkpoint.Store
	opts    Options
	tracker *Tracker
	logger  *logger.Logger
}

func NewOrchestrator(
	src, dst cluster.Cluster,
	store checkpoint.Store,
	opts Options,
	l *logger.Logger,
) *Orchestrator {
	// The caller keeps its slices.
	opts.Collections = clone.Clone(opts.Collections)
	opts.DBs = clone.Clone(opts.DBs)

	return &Orchestrator{
		src:     src,
		dst:     dst,
		store:   store,
		opts:    opts,
		tracker: NewTracker(),
		logger:  l,
	}
}

// Tracker exposes live progress, e.g. to the status server.
func (o *Orchestrator) Tracker() *Tracker {
	return o.tracker
}

// Run resolves targets and scans them. The returned Summary is non-nil
// whenever targets were resolved, even if scans failed.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	startTime := time.Now()

	if !lo.Contains(CancelPolicies, o.opts.CancelPolicy) {
		return nil, util.NewConfigError("cancelPolicy", "must be one of %v (got %#q)", CancelPolicies, o.opts.CancelPolicy)
	}

	targets, err := ResolveTargets(ctx, o.src, o.opts.Collections, o.opts.DBs)
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Int("count", len(targets)).
		Strs("collections", lo.Map(targets, func(t Target, _ int) string { return t.String() })).
		Msg("Resolved collections to check.")

	for _, target := range targets {
		o.tracker.Register(target)

		if o.opts.Clean {
			if err := o.store.Delete(target); err != nil {
				return nil, err
			}
		}
	}

	scanner := NewScanner(o.src, o.dst, o.store, o.opts.Scan, o.tracker, o.logger)

	switch o.opts.CancelPolicy {
	case FinishOthers:
		err = o.runFinishOthers(ctx, scanner, targets)
	default:
		err = o.runFailFast(ctx, scanner, targets)
	}

	return &Summary{
		StartTime:   startTime,
		Elapsed:     time.Since(startTime),
		Collections: o.tracker.Snapshots(),
	}, err
}

func (o *Orchestrator) concurrency() int {
	return max(1, o.opts.CollectionConcurrency)
}

func (o *Orchestrator) runFailFast(ctx context.Context, scanner *Scanner, targets []Target) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.concurrency())

	for _, target := range targets {
		eg.Go(func() error {
			// A sibling may already have failed.
			if err := egCtx.Err(); err != nil {
				return err
			}

			return errors.Wrapf(scanner.Run(egCtx, target), "checking %s", target)
		})
	}

	return eg.Wait()
}

func (o *Orchestrator) runFinishOthers(ctx context.Context, scanner *Scanner, targets []Target) error {
	var (
		eg   errgroup.Group
		mu   sync.Mutex
		errs error
	)

	eg.SetLimit(o.concurrency())

	for _, target := range targets {
		eg.Go(func() error {
			if err := scanner.Run(ctx, target); err != nil {
				o.logger.Error().
					Err(err).
					Str("namespace", target.String()).
					Msg("Collection check failed. Continuing with the others.")

				mu.Lock()
				errs = multierr.Append(errs, errors.Wrapf(err, "checking %s", target))
				mu.Unlock()
			}

			return nil
		})
	}

	_ = eg.Wait()

	return errs
}
