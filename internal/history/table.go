package history

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// WriteTable renders runs as a table, newest first.
func WriteTable(w io.Writer, runs []Run) error {
	table := tablewriter.NewWriter(w)
	table.Header("Build", "Commit", "Branch", "Image", "Status", "When")

	for _, run := range runs {
		status := run.Status
		if run.FailedStage != "" {
			status = fmt.Sprintf("%s (%s)", run.Status, run.FailedStage)
		}
		if err := table.Append([]string{
			fmt.Sprintf("#%d", run.BuildNumber),
			run.CommitHash,
			run.Branch,
			run.ImageRef,
			status,
			run.CreatedAt.Format("2006-01-02 15:04"),
		}); err != nil {
			return err
		}
	}

	return table.Render()
}
