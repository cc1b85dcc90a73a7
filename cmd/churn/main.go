// cmd/churn/main.go

// Command churn prepares the telco dataset, trains and tunes the churn model
// and serves predictions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"github.com/David-Botos/churn-pipeline/pkg/logging"
)

func main() {
	// A missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&prepareCmd{}, "pipeline")
	subcommands.Register(&trainCmd{}, "pipeline")
	subcommands.Register(&tuneCmd{}, "pipeline")
	subcommands.Register(&serveCmd{}, "serving")

	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	logFormat := flag.String("log-format", "", "log format (json or console); overrides LOG_FORMAT")
	flag.Parse()

	logger, err := logging.Setup(firstNonEmpty(*logLevel, os.Getenv("LOG_LEVEL"), "info"),
		firstNonEmpty(*logFormat, os.Getenv("LOG_FORMAT"), logging.FormatJSON))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(subcommands.ExitUsageError))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := subcommands.Execute(ctx, logger)
	stop()
	logger.Sync()
	os.Exit(int(status))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
