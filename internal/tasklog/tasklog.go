package tasklog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/slok/cartpool/internal/conventions"
	"github.com/slok/cartpool/internal/log"
	loglogrus "github.com/slok/cartpool/internal/log/logrus"
)

// Logger is a logger bound to a single task run.
type Logger interface {
	log.Logger
	Close() error
}

// Factory creates task loggers.
type Factory interface {
	NewTaskLogger(taskID string) (Logger, error)
}

// FactoryFunc is a helper to implement Factory with functions.
type FactoryFunc func(taskID string) (Logger, error)

func (f FactoryFunc) NewTaskLogger(taskID string) (Logger, error) { return f(taskID) }

// NewStdFactory returns a factory whose task loggers only write on the base logger.
func NewStdFactory(logger log.Logger) Factory {
	if logger == nil {
		logger = log.Noop
	}
	return FactoryFunc(func(taskID string) (Logger, error) {
		return nopCloser{Logger: logger.WithValues(log.Kv{"task-id": taskID})}, nil
	})
}

// FileFactoryConfig is the configuration for the file task logger factory.
type FileFactoryConfig struct {
	// Dir is where the task log files are written.
	Dir string
	// Level is the level of the task log files.
	Level     logrus.Level
	Formatter logrus.Formatter
	// Logger is the base logger, task loggers write on it too.
	Logger log.Logger
}

func (c *FileFactoryConfig) defaults() error {
	if c.Dir == "" {
		return fmt.Errorf("logs directory is required")
	}
	if c.Level == 0 {
		c.Level = logrus.InfoLevel
	}
	if c.Formatter == nil {
		c.Formatter = &logrus.TextFormatter{DisableColors: true, FullTimestamp: true}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	return nil
}

// FileFactory creates task loggers that write on the base logger and on
// a log file per task.
type FileFactory struct {
	dir       string
	level     logrus.Level
	formatter logrus.Formatter
	logger    log.Logger
}

// NewFileFactory returns a new file task logger factory.
func NewFileFactory(cfg FileFactoryConfig) (*FileFactory, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &FileFactory{
		dir:       cfg.Dir,
		level:     cfg.Level,
		formatter: cfg.Formatter,
		logger:    cfg.Logger,
	}, nil
}

func (f *FileFactory) NewTaskLogger(taskID string) (Logger, error) {
	if taskID == "" || filepath.Base(taskID) != taskID || taskID == "." || taskID == ".." {
		return nil, fmt.Errorf("invalid task id for a log file: %q", taskID)
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create logs directory: %w", err)
	}

	path := conventions.TaskLogPath(f.dir, taskID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open task log file: %w", err)
	}

	fileLogrus := logrus.New()
	fileLogrus.Out = file
	fileLogrus.SetLevel(f.level)
	fileLogrus.SetFormatter(f.formatter)

	kv := log.Kv{"task-id": taskID}
	return &teeLogger{
		loggers: []log.Logger{
			f.logger.WithValues(kv),
			loglogrus.NewLogrus(logrus.NewEntry(fileLogrus)).WithValues(kv),
		},
		close: file.Close,
	}, nil
}

type nopCloser struct{ log.Logger }

func (nopCloser) Close() error { return nil }

// teeLogger writes every entry on all its loggers.
type teeLogger struct {
	loggers []log.Logger
	close   func() error
}

func (t *teeLogger) Infof(format string, args ...any) {
	for _, l := range t.loggers {
		l.Infof(format, args...)
	}
}

func (t *teeLogger) Warningf(format string, args ...any) {
	for _, l := range t.loggers {
		l.Warningf(format, args...)
	}
}

func (t *teeLogger) Errorf(format string, args ...any) {
	for _, l := range t.loggers {
		l.Errorf(format, args...)
	}
}

func (t *teeLogger) Debugf(format string, args ...any) {
	for _, l := range t.loggers {
		l.Debugf(format, args...)
	}
}

func (t *teeLogger) WithValues(values map[string]any) log.Logger {
	loggers := make([]log.Logger, 0, len(t.loggers))
	for _, l := range t.loggers {
		loggers = append(loggers, l.WithValues(values))
	}
	return &teeLogger{loggers: loggers}
}

func (t *teeLogger) WithCtxValues(ctx context.Context) log.Logger {
	return t.WithValues(log.ValuesFromCtx(ctx))
}

func (t *teeLogger) SetValuesOnCtx(parent context.Context, values map[string]any) context.Context {
	return log.CtxWithValues(parent, values)
}

// Close closes the task log file, derived loggers share it.
func (t *teeLogger) Close() error {
	if t.close == nil {
		return nil
	}
	return t.close()
}
