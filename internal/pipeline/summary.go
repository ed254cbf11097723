package pipeline

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// WriteSummary renders the human-readable run report: one row per stage,
// followed by the published references and build metadata. On failure the
// failing stage is named.
func (o *Outcome) WriteSummary(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header("Stage", "Kind", "Status", "Duration", "Detail")

	for _, r := range o.Results {
		detail := ""
		if r.Err != nil {
			detail = r.Err.Error()
		}
		duration := ""
		if r.Status != StatusSkipped {
			duration = r.Duration.Round(time.Millisecond).String()
		}
		if err := table.Append([]string{r.Stage, r.Kind.String(), r.Status.String(), duration, detail}); err != nil {
			return err
		}
	}

	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nBuild:  #%d\nCommit: %s\nBranch: %s\nImage:  %s\n",
		o.Context.BuildNumber, o.Context.CommitHash, o.Context.Branch, o.Context.ImageRef())

	if len(o.Published) > 0 {
		fmt.Fprintf(w, "Published: %s\n", strings.Join(o.Published, ", "))
	}

	if findings := o.Findings(); len(findings) > 0 {
		fmt.Fprintf(w, "\nAdvisory findings (did not block the run):\n")
		for _, f := range findings {
			fmt.Fprintf(w, "  - %s: %v\n", f.Stage, f.Err)
		}
	}

	if failed, ok := o.FailedStage(); ok {
		fmt.Fprintf(w, "\nResult: FAILED at stage %q\n", failed)
	} else {
		fmt.Fprintf(w, "\nResult: SUCCEEDED\n")
	}

	return nil
}
