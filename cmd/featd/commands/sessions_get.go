package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/featden/featd/internal/printer"
	"github.com/featden/featd/internal/storage/sqlite"
)

type SessionsGetCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	sessionID string
	format    string
}

// NewSessionsGetCommand returns the sessions get command.
func NewSessionsGetCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *SessionsGetCommand {
	c := &SessionsGetCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("get", "Show a feature session.")
	c.Cmd.Arg("session-id", "ID of the session.").Required().StringVar(&c.sessionID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c SessionsGetCommand) Name() string { return c.Cmd.FullCommand() }

func (c SessionsGetCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}

	session, err := repo.GetSession(ctx, c.sessionID)
	if err != nil {
		return fmt.Errorf("could not get session: %w", err)
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintSession(*session); err != nil {
		return fmt.Errorf("could not print session: %w", err)
	}

	return nil
}
