package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/cartpool/internal/app/list"
)

// NewTaskCommand returns the task parent command.
func NewTaskCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("task", "Manage checkout tasks.")
}

type TaskListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	site   string
	format string
}

// NewTaskListCommand returns the task list command.
func NewTaskListCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskListCommand {
	c := &TaskListCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("list", "List the checkout tasks.")
	c.Cmd.Flag("site", "Only show the tasks of this site.").StringVar(&c.site)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c TaskListCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskListCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := list.NewService(list.ServiceConfig{
		Repository: repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	tasks, err := svc.ListTasks(ctx, list.TasksRequest{SiteFilter: c.site})
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	if err := c.rootCmd.newPrinter(c.format).PrintTasks(tasks); err != nil {
		return fmt.Errorf("could not print tasks: %w", err)
	}

	return nil
}
