package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/cartpool/internal/app/load"
	storageio "github.com/slok/cartpool/internal/storage/io"
)

type LoadCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	file           string
	ignoreExisting bool
}

// NewLoadCommand returns the load command.
func NewLoadCommand(rootCmd *RootCommand, app *kingpin.Application) *LoadCommand {
	c := &LoadCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("load", "Load tasks, addresses and proxies from a YAML inventory file.")
	c.Cmd.Arg("file", "Inventory YAML file.").Required().StringVar(&c.file)
	c.Cmd.Flag("ignore-existing", "Skip the entities that already exist.").BoolVar(&c.ignoreExisting)

	return c
}

func (c LoadCommand) Name() string { return c.Cmd.FullCommand() }

func (c LoadCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	absPath, err := filepath.Abs(c.file)
	if err != nil {
		return fmt.Errorf("could not resolve inventory path: %w", err)
	}
	inventoryRepo := storageio.NewInventoryYAMLRepository(os.DirFS(filepath.Dir(absPath)))
	inventory, err := inventoryRepo.GetInventory(ctx, filepath.Base(absPath))
	if err != nil {
		return fmt.Errorf("could not read inventory: %w", err)
	}

	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := load.NewService(load.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	resp, err := svc.Run(ctx, load.Request{
		Inventory:      inventory,
		IgnoreExisting: c.ignoreExisting,
	})
	if err != nil {
		return fmt.Errorf("could not load inventory: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Loaded inventory: %d created, %d skipped\n", resp.Created, resp.Skipped)
	return nil
}
