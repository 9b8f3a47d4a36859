package pipeline

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// MaxListedMissing bounds how many missing identifiers the summary prints
// individually.
const MaxListedMissing = 500

// Report is the result of a run. It is populated even when the run aborts.
type Report struct {
	RunID     string
	OutputDir string
	Requested []string
	// Processed counts records fully fetched, downloaded, and packaged or
	// left as directories.
	Processed int
	// Missing lists requested identifiers that were not completed, in
	// request order.
	Missing  []string
	Outcomes []Outcome
	// Interrupted is set when the run stopped because its context was
	// cancelled.
	Interrupted bool
}

// Skipped returns the identifiers skipped under the missing-record policy.
func (r Report) Skipped() []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.State == StateSkipped {
			out = append(out, o.Identifier)
		}
	}
	return out
}

// WriteSummary prints the completion summary: the processed count and,
// when records are missing, either their identifiers or a truncated notice.
func (r Report) WriteSummary(w io.Writer) error {
	noun := "records"
	if r.Processed == 1 {
		noun = "record"
	}
	if r.Interrupted {
		if _, err := fmt.Fprintln(w, "Interrupted."); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "Wrote %s EPrints %s to %s.\n", humanize.Comma(int64(r.Processed)), noun, r.OutputDir); err != nil {
		return err
	}
	switch n := len(r.Missing); {
	case n == 0:
		return nil
	case n > MaxListedMissing:
		_, err := fmt.Fprintf(w, "%s requested records were not obtained (too many to list).\n", humanize.Comma(int64(n)))
		return err
	default:
		_, err := fmt.Fprintf(w, "The following records were not obtained: %s.\n", strings.Join(r.Missing, ", "))
		return err
	}
}
