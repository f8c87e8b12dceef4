package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/cartpool/internal/api"
	"github.com/slok/cartpool/internal/model"
)

type SessionsCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	apiAddress string
	taskID     string
	format     string
}

// NewSessionsCommand returns the sessions command.
func NewSessionsCommand(rootCmd *RootCommand, app *kingpin.Application) *SessionsCommand {
	c := &SessionsCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("sessions", "List the active browser sessions of a running orchestrator.")
	c.Cmd.Flag("api-address", "Orchestrator API address.").Default(defaultAPIAddress).StringVar(&c.apiAddress)
	c.Cmd.Flag("task", "Only show the session of this task.").StringVar(&c.taskID)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c SessionsCommand) Name() string { return c.Cmd.FullCommand() }

func (c SessionsCommand) Run(ctx context.Context) error {
	cli, err := api.NewClient(api.ClientConfig{Address: c.apiAddress})
	if err != nil {
		return fmt.Errorf("could not create API client: %w", err)
	}

	var sessions []model.ActiveSession
	if c.taskID != "" {
		s, err := cli.GetSession(ctx, c.taskID)
		if err != nil {
			return fmt.Errorf("could not get session: %w", err)
		}
		sessions = []model.ActiveSession{*s}
	} else {
		sessions, err = cli.ListSessions(ctx)
		if err != nil {
			return fmt.Errorf("could not list sessions: %w", err)
		}
	}

	if err := c.rootCmd.newPrinter(c.format).PrintSessions(sessions); err != nil {
		return fmt.Errorf("could not print sessions: %w", err)
	}

	return nil
}
