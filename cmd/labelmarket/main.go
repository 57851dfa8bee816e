package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/trigg3rX/labelmarket-backend/internal/config"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

const version = "v0.3.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "labelmarket",
		Usage:   "Data-labeling marketplace backend",
		Version: version,
		Commands: []*cli.Command{
			ServeCommand(),
			TasksCommand(),
			ProfileCommand(),
			ReviewCommand(),
		},
	}
}

// setup loads the config and builds the logger and runtime for one command.
func setup(c *cli.Context, process logging.ProcessName) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.NewZapLogger(logging.LoggerConfig{
		ProcessName:   process,
		IsDevelopment: cfg.DevMode,
		DisableFile:   process != logging.ServerProcess,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return newRuntime(c.Context, cfg, logger)
}
