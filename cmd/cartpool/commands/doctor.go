package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/cartpool/internal/model"
)

type DoctorCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	browser    string
	chromePath string
	image      string
}

// NewDoctorCommand returns the doctor command.
func NewDoctorCommand(rootCmd *RootCommand, app *kingpin.Application) *DoctorCommand {
	c := &DoctorCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("doctor", "Run preflight checks for the browser backends.")
	c.Cmd.Flag("browser", "Browser backend to check (exec, docker, all).").Default("all").EnumVar(&c.browser, browserExec, browserDocker, "all")
	c.Cmd.Flag("chrome-path", "Chrome binary path for the exec backend.").StringVar(&c.chromePath)
	c.Cmd.Flag("docker-image", "Browser image for the docker backend.").StringVar(&c.image)

	return c
}

func (c DoctorCommand) Name() string { return c.Cmd.FullCommand() }

func (c DoctorCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	var allResults []backendCheckResults

	if c.browser == browserExec || c.browser == "all" {
		l, err := newChromeLauncher(c.chromePath, true, logger)
		if err != nil {
			return fmt.Errorf("could not create browser launcher: %w", err)
		}
		allResults = append(allResults, backendCheckResults{name: browserExec, results: l.Check(ctx)})
	}

	if c.browser == browserDocker || c.browser == "all" {
		l, err := newDockerLauncher(c.image, false, nil, logger)
		if err != nil {
			return fmt.Errorf("could not create docker browser launcher: %w", err)
		}
		allResults = append(allResults, backendCheckResults{name: browserDocker, results: l.Check(ctx)})
	}

	return printCheckResults(c.rootCmd, allResults)
}

type backendCheckResults struct {
	name    string
	results []model.CheckResult
}

func printCheckResults(root *RootCommand, allResults []backendCheckResults) error {
	out := root.Stdout
	totalErrors := 0
	totalWarnings := 0

	for _, br := range allResults {
		fmt.Fprintf(out, "\nChecking %s browser backend...\n", br.name)
		for _, r := range br.results {
			fmt.Fprintf(out, "  %s %-20s %s\n", getStatusIcon(r.Status), r.ID, r.Message)
		}
		_, warnings, errors := model.CountByStatus(br.results)
		totalWarnings += warnings
		totalErrors += errors
	}

	fmt.Fprintln(out)
	if totalErrors == 0 && totalWarnings == 0 {
		fmt.Fprintln(out, "All checks passed!")
	} else {
		var summary []string
		if totalErrors > 0 {
			summary = append(summary, fmt.Sprintf("%d error(s)", totalErrors))
		}
		if totalWarnings > 0 {
			summary = append(summary, fmt.Sprintf("%d warning(s)", totalWarnings))
		}
		fmt.Fprintln(out, strings.Join(summary, ", "))
	}

	if totalErrors > 0 {
		return fmt.Errorf("preflight checks failed with %d error(s)", totalErrors)
	}

	return nil
}

func getStatusIcon(status model.CheckStatus) string {
	switch status {
	case model.CheckStatusOK:
		return "OK"
	case model.CheckStatusWarning:
		return "!!"
	case model.CheckStatusError:
		return "XX"
	default:
		return "??"
	}
}
