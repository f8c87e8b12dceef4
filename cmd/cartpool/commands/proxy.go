package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/cartpool/internal/app/list"
)

const (
	proxyUsedAll    = "all"
	proxyUsedUsed   = "used"
	proxyUsedUnused = "unused"
)

// NewProxyCommand returns the proxy parent command.
func NewProxyCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("proxy", "Manage proxies.")
}

type ProxyListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	used   string
	format string
}

// NewProxyListCommand returns the proxy list command.
func NewProxyListCommand(rootCmd *RootCommand, proxyCmd *kingpin.CmdClause) *ProxyListCommand {
	c := &ProxyListCommand{rootCmd: rootCmd}

	c.Cmd = proxyCmd.Command("list", "List the proxies.")
	c.Cmd.Flag("used", "Filter by used flag (all, used, unused).").Default(proxyUsedAll).EnumVar(&c.used, proxyUsedAll, proxyUsedUsed, proxyUsedUnused)
	c.Cmd.Flag("format", "Output format (table, json).").Default(formatTable).EnumVar(&c.format, formatTable, formatJSON)

	return c
}

func (c ProxyListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProxyListCommand) Run(ctx context.Context) error {
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

	proxies, err := svc.ListProxies(ctx, list.ProxiesRequest{UsedFilter: usedFilter(c.used)})
	if err != nil {
		return fmt.Errorf("could not list proxies: %w", err)
	}

	if err := c.rootCmd.newPrinter(c.format).PrintProxies(proxies); err != nil {
		return fmt.Errorf("could not print proxies: %w", err)
	}

	return nil
}

func usedFilter(used string) *bool {
	switch used {
	case proxyUsedUsed:
		v := true
		return &v
	case proxyUsedUnused:
		v := false
		return &v
	default:
		return nil
	}
}
