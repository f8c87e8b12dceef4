package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/cartpool/internal/api"
)

const defaultAPIAddress = "127.0.0.1:8080"

type EnqueueCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	apiAddress       string
	cardFriendlyName string
	taskIDs          []string
}

// NewEnqueueCommand returns the enqueue command.
func NewEnqueueCommand(rootCmd *RootCommand, app *kingpin.Application) *EnqueueCommand {
	c := &EnqueueCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("enqueue", "Enqueue task runs on a running orchestrator.")
	c.Cmd.Flag("api-address", "Orchestrator API address.").Default(defaultAPIAddress).StringVar(&c.apiAddress)
	c.Cmd.Flag("card-friendly-name", "Friendly name of the card used on the checkout.").StringVar(&c.cardFriendlyName)
	c.Cmd.Arg("task-id", "Task IDs to run.").Required().StringsVar(&c.taskIDs)

	return c
}

func (c EnqueueCommand) Name() string { return c.Cmd.FullCommand() }

func (c EnqueueCommand) Run(ctx context.Context) error {
	cli, err := api.NewClient(api.ClientConfig{Address: c.apiAddress})
	if err != nil {
		return fmt.Errorf("could not create API client: %w", err)
	}

	for _, id := range c.taskIDs {
		if err := cli.RunTask(ctx, id, c.cardFriendlyName); err != nil {
			return fmt.Errorf("could not enqueue task %s: %w", id, err)
		}
		fmt.Fprintf(c.rootCmd.Stdout, "Task %s queued\n", id)
	}

	return nil
}
