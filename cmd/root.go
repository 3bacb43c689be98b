// Package cmd implements the fleet-monitor command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/config"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// logLevel overrides logging.level when set.
	logLevel string
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "fleet-monitor",
		Short:         "Monitor and operate a fleet of scrapers",
		Long:          `Watch scraper sources and jobs live, and run, cancel, toggle or reschedule them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $CONFIG_PATH or ./"+bootstrap.DefaultConfigPath+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(),
		newSourcesCommand(),
		newJobsCommand(),
		newHistoryCommand(),
		newExecuteCommand(),
		newCancelCommand(),
		newToggleCommand(),
		newScheduleCommand(),
		newWatchCommand(),
	)
	return root
}

// Execute runs the root command until it returns or a signal arrives.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand().ExecuteContext(ctx)
}

// commandDeps holds the dependencies shared by every command.
type commandDeps struct {
	Config *config.Config
	Logger infralogger.Logger
}

// newCommandDeps loads configuration and creates the logger. CLI diagnostics
// go to stderr so tables on stdout stay clean.
func newCommandDeps(outputs ...string) (*commandDeps, error) {
	cfg, err := bootstrap.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	log, err := bootstrap.CreateLogger(cfg, logLevel, outputs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return &commandDeps{Config: cfg, Logger: log}, nil
}

func (d *commandDeps) close() {
	_ = d.Logger.Sync()
}
