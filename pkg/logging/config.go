package logging

const (
	BaseDataDir = "data"
	LogsDir     = "logs"
	TimeFormat  = "2006-01-02 15:04:05"

	// DataDirEnv overrides BaseDataDir when set.
	DataDirEnv = "LABELMARKET_DATA_DIR"
)

const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorWhite   = "\033[37m"
)

// ProcessName type to ensure valid process names
type ProcessName string

const (
	ServerProcess ProcessName = "server"
	CLIProcess    ProcessName = "cli"
	TestProcess   ProcessName = "test"
)

type LoggerConfig struct {
	ProcessName   ProcessName
	IsDevelopment bool
	// DisableFile keeps output on stdout only (used by the CLI and tests).
	DisableFile bool
}
