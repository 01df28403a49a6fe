package reconciler

import (
	"fmt"
	"io"
	"time"

	"github.com/Vastxiao/mongocheckd/internal/reportutils"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// Summary is the end-of-run report.
type Summary struct {
	StartTime   time.Time
	Elapsed     time.Duration
	Collections []ProgressSnapshot
}

// Mismatched returns the total count of mismatched documents.
func (s *Summary) Mismatched() int64 {
	return lo.SumBy(s.Collections, func(c ProgressSnapshot) int64 { return c.Mismatched })
}

// Failed returns how many collections did not finish.
func (s *Summary) Failed() int {
	return lo.CountBy(s.Collections, func(c ProgressSnapshot) bool { return c.State != StateDone })
}

// Render writes a table of per-collection results followed by totals.
func (s *Summary) Render(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Namespace", "State", "Matched", "Mismatched", "Skipped", "Checkpoint", "Elapsed"})
	table.SetAutoWrapText(false)

	for _, c := range s.Collections {
		table.Append([]string{
			c.Namespace,
			string(c.State),
			reportutils.FmtCount(c.Matched),
			reportutils.FmtCount(c.Mismatched),
			reportutils.FmtCount(c.Skipped),
			lo.FromPtrOr(c.Checkpoint, "-"),
			reportutils.DurationToHMS(c.Elapsed),
		})
	}

	table.Render()

	matched := lo.SumBy(s.Collections, func(c ProgressSnapshot) int64 { return c.Matched })
	checked := matched + s.Mismatched()

	_, err := fmt.Fprintf(
		w,
		"\n%d collection(s), %d failed. %s document(s) compared, %s mismatched (%s%%). Elapsed: %s\n",
		len(s.Collections),
		s.Failed(),
		reportutils.FmtCount(checked),
		reportutils.FmtCount(s.Mismatched()),
		reportutils.FmtPercent(s.Mismatched(), checked),
		reportutils.DurationToHMS(s.Elapsed),
	)

	return err
}
