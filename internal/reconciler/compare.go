package reconciler

import (
	"context"

	"github.com/Vastxiao/mongocheckd/docid"
	"github.com/Vastxiao/mongocheckd/internal/docdiff"
	"github.com/Vastxiao/mongocheckd/internal/resultlog"
	"github.com/pkg/errors"
	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
)

// OutcomeKind classifies one comparison.
type OutcomeKind string

const (
	OutcomeMatch    OutcomeKind = "match"
	OutcomeMismatch OutcomeKind = "mismatch"
	OutcomeSkipped  OutcomeKind = "skipped"
)

// Outcome is the result of comparing one `_id` across both clusters. Diff
// is set only for mismatches.
type Outcome struct {
	Kind OutcomeKind
	Diff *docdiff.Diff
}

// compare fetches id from both clusters at once and compares the documents.
// Either fetch failing fails the comparison.
func (s *Scanner) compare(ctx context.Context, target Target, id docid.ID) (Outcome, error) {
	var srcDoc, dstDoc mo.Option[bson.Raw]

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		var err error
		srcDoc, err = s.src.FindByID(egCtx, target, id)
		return errors.Wrap(err, "reading source document")
	})

	eg.Go(func() error {
		var err error
		dstDoc, err = s.dst.FindByID(egCtx, target, id)
		return errors.Wrap(err, "reading destination document")
	})

	if err := eg.Wait(); err != nil {
		return Outcome{}, err
	}

	src, hasSrc := srcDoc.Get()
	dst, hasDst := dstDoc.Get()

	switch {
	case hasSrc && hasDst:
	case !s.opts.ReportMissing, !hasSrc && !hasDst:
		return Outcome{Kind: OutcomeSkipped}, nil
	case !hasSrc:
		return Outcome{Kind: OutcomeMismatch, Diff: docdiff.DocumentMissing(docdiff.MissingOnSource)}, nil
	default:
		return Outcome{Kind: OutcomeMismatch, Diff: docdiff.DocumentMissing(docdiff.MissingOnDestination)}, nil
	}

	diff, err := docdiff.Compare(src, dst, s.opts.IgnoreFieldOrder)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "diffing documents")
	}

	if diff == nil {
		return Outcome{Kind: OutcomeMatch}, nil
	}

	return Outcome{Kind: OutcomeMismatch, Diff: diff}, nil
}

func (s *Scanner) record(
	target Target,
	id docid.ID,
	outcome Outcome,
	logs *resultlog.Logs,
	prog *Progress,
) error {
	switch outcome.Kind {
	case OutcomeMatch:
		prog.matched.Add(1)
		return logs.Success(id)
	case OutcomeMismatch:
		prog.mismatched.Add(1)

		diffText := outcome.Diff.String()

		s.logger.Debug().
			Str("namespace", target.String()).
			Stringer("_id", id).
			Str("diff", diffText).
			Msg("Documents differ.")

		return logs.Failure(id, diffText)
	default:
		prog.skipped.Add(1)

		s.logger.Debug().
			Str("namespace", target.String()).
			Stringer("_id", id).
			Msg("Document is absent on one side. Skipping.")

		return nil
	}
}
