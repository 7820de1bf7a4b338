package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smartlab/internal/app"
	"smartlab/internal/attendance"
	"smartlab/internal/badge"
	"smartlab/internal/config"
	"smartlab/internal/logging"
)

// App holds what the commands share.
type App struct {
	cfg      config.App
	logger   *zap.Logger
	backends *app.Backends
	resolver *attendance.Resolver
	badges   *badge.Directory
	clock    attendance.Clock
}

var cli = &App{}

func main() {
	rootCmd := &cobra.Command{
		Use:           "labctl",
		Short:         "Smart Lab attendance admin CLI",
		Long:          `Administrative commands for the Smart Lab RFID attendance service: absences, badges, history, tokens, readers and schema.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cli.backends != nil {
				cli.backends.Close()
			}
			if cli.logger != nil {
				_ = cli.logger.Sync()
			}
		},
	}

	rootCmd.AddCommand(absencesCmd(cli))
	rootCmd.AddCommand(badgesCmd(cli))
	rootCmd.AddCommand(historyCmd(cli))
	rootCmd.AddCommand(tokenCmd(cli))
	rootCmd.AddCommand(devicesCmd(cli))
	rootCmd.AddCommand(migrateCmd(cli))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates configuration and builds the logger.
func (a *App) loadConfig() error {
	if a.logger != nil {
		return nil
	}
	a.cfg = config.Load()
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(a.cfg.LogLevel, "console")
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// open connects the configured backends and builds the services.
func (a *App) open(ctx context.Context) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	backends, err := app.Open(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.backends = backends

	loc, _ := a.cfg.Location()
	policy, _ := attendance.ParsePolicy(a.cfg.AttendancePolicy)
	a.clock = attendance.NewSystemClock(loc)
	a.resolver = attendance.NewResolver(backends.Attendance, backends.People, policy, a.logger.Named("attendance"))
	a.badges = badge.NewDirectory(backends.People, backends.Attendance, a.logger.Named("badge"))
	return nil
}
