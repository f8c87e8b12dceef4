package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default cartpool data directory name (relative to home).
	DefaultDataDir = ".cartpool"
	// DBFile is the SQLite database filename inside the data directory.
	DBFile = "cartpool.db"
	// LogsDir is the subdirectory for the per-task log files.
	LogsDir = "logs"
	// TaskLogExt is the extension of the per-task log files.
	TaskLogExt = ".log"

	// Browser sessions.

	// ChromeDockerExecPath is where chrome lives in the docker environment images.
	ChromeDockerExecPath = "/usr/bin/google-chrome-stable"
	// DevToolsPort is the remote debugging port of the headless browser containers.
	DevToolsPort = 9222
	// SessionContainerPrefix is the name prefix of the browser session containers.
	SessionContainerPrefix = "cartpool-"
	// SessionIDLabel is the container label holding the browser session ID.
	SessionIDLabel = "cartpool.session-id"

	// ManualHoldMinutes is the default time an incomplete checkout session is kept open.
	ManualHoldMinutes = 5
)

// DBPath returns the SQLite database path inside a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// TaskLogsDir returns the directory of the per-task log files.
func TaskLogsDir(dataDir string) string {
	return filepath.Join(dataDir, LogsDir)
}

// TaskLogPath returns the log file path of a task.
func TaskLogPath(logsDir, taskID string) string {
	return filepath.Join(logsDir, taskID+TaskLogExt)
}
