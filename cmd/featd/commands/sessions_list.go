package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/featden/featd/internal/model"
	"github.com/featden/featd/internal/printer"
	"github.com/featden/featd/internal/storage/sqlite"
)

type SessionsListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	orgID        string
	statusFilter string
	format       string
}

// NewSessionsListCommand returns the sessions list command.
func NewSessionsListCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *SessionsListCommand {
	c := &SessionsListCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("list", "List feature sessions of an organization.")
	c.Cmd.Flag("org", "Organization the sessions belong to.").Required().StringVar(&c.orgID)
	c.Cmd.Flag("status", "Filter by status (idle, planning, plan_review, building, ready, reviewing, error).").StringVar(&c.statusFilter)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c SessionsListCommand) Name() string { return c.Cmd.FullCommand() }

func (c SessionsListCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Parse status filter if provided.
	var statusFilter *model.SessionStatus
	if c.statusFilter != "" {
		status := model.SessionStatus(strings.ToLower(c.statusFilter))
		switch status {
		case model.SessionStatusIdle, model.SessionStatusPlanning, model.SessionStatusPlanReview,
			model.SessionStatusBuilding, model.SessionStatusReady, model.SessionStatusReviewing,
			model.SessionStatusError:
			statusFilter = &status
		default:
			return fmt.Errorf("invalid status filter: %s", c.statusFilter)
		}
	}

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}

	sessions, err := repo.ListSessionsByOrganization(ctx, c.orgID)
	if err != nil {
		return fmt.Errorf("could not list sessions: %w", err)
	}

	if statusFilter != nil {
		filtered := sessions[:0]
		for _, s := range sessions {
			if s.Status == *statusFilter {
				filtered = append(filtered, s)
			}
		}
		sessions = filtered
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintSessionList(sessions); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}
