package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/featden/featd/internal/model"
)

// TablePrinter prints feature session information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintSessionList prints feature sessions in a table format.
func (t *TablePrinter) PrintSessionList(sessions []model.FeatureSession) error {
	if len(sessions) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header
	fmt.Fprintln(tw, "NAME\tREPOSITORY\tSTATUS\tCREATED")

	// Print rows
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.RepoFullName, s.Status, TimeAgo(s.CreatedAt))
	}

	return nil
}

// PrintSession prints detailed feature session information.
func (t *TablePrinter) PrintSession(session model.FeatureSession) error {
	fmt.Fprintf(t.writer, "Name:       %s\n", session.Name)
	fmt.Fprintf(t.writer, "ID:         %s\n", session.ID)
	fmt.Fprintf(t.writer, "Repository: %s\n", session.RepoFullName)
	fmt.Fprintf(t.writer, "Branch:     %s\n", session.BranchName)
	fmt.Fprintf(t.writer, "Status:     %s\n", session.Status)

	if session.SandboxID != nil {
		fmt.Fprintf(t.writer, "Sandbox:    %s\n", *session.SandboxID)
	}
	if session.AgentSessionID != nil {
		fmt.Fprintf(t.writer, "Agent:      %s\n", *session.AgentSessionID)
	}

	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(session.CreatedAt))
	fmt.Fprintf(t.writer, "Updated:    %s\n", FormatTimestamp(session.UpdatedAt))

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
