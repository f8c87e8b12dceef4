package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/cartpool/internal/conventions"
	"github.com/slok/cartpool/internal/log"
	"github.com/slok/cartpool/internal/printer"
	"github.com/slok/cartpool/internal/storage/sqlite"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DataDir    string
	DBPath     string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDataDir := filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir)
	app.Flag("data-dir", "Directory for the database and the task logs.").Envar("CARTPOOL_DATA_DIR").Default(defaultDataDir).StringVar(&c.DataDir)
	app.Flag("db-path", "Path to the SQLite database file, defaults to the data directory one.").Envar("CARTPOOL_DB_PATH").StringVar(&c.DBPath)

	return c
}

// DatabasePath returns the SQLite database path.
func (r RootCommand) DatabasePath() string {
	if r.DBPath != "" {
		return r.DBPath
	}
	return conventions.DBPath(r.DataDir)
}

func (r RootCommand) newRepository(ctx context.Context) (*sqlite.Repository, error) {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: r.DatabasePath(),
		Logger: r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}
	return repo, nil
}

func (r RootCommand) newPrinter(format string) printer.Printer {
	if format == formatJSON {
		return printer.NewJSONPrinter(r.Stdout)
	}
	return printer.NewTablePrinter(r.Stdout)
}
