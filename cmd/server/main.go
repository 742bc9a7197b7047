// Package main implements the taskquota server, which hands out daily task
// quotas to members and settles their rewards, plus operator commands for
// migrations and one-off distribution runs.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/taskquota/internal/config"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// deps is what every subcommand needs before doing its work.
type deps struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
}

// bootstrap loads configuration, sets up structured logging and connects to
// the database. Logs go to logOut so that commands printing results to
// stdout can keep them apart.
func bootstrap(ctx context.Context, logOut io.Writer) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.SetupWithWriter(cfg.Server, logOut)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"timezone", cfg.Distribution.Timezone)

	db, err := setupAppDatabase(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	return &deps{cfg: cfg, logger: log, db: db}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskquota",
		Short:         "Daily task assignment and reward settlement service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newDistributeCmd(), newSweepCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the job runner and the daily scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx, os.Stdout)
			if err != nil {
				return err
			}
			if migrate {
				if err := postgres.Migrate(ctx, rt.db, "up", rt.logger); err != nil {
					_ = rt.db.Close()
					return err
				}
			}

			app, err := newApplication(rt.cfg, rt.logger, rt.db)
			if err != nil {
				_ = rt.db.Close()
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return app.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|status|version|redo|reset] [args...]",
		Short: "Run database migrations",
		Long: `Runs a goose migration command against the configured database.
Without arguments it applies every pending migration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) > 0 {
				command, args = args[0], args[1:]
			}

			rt, err := bootstrap(cmd.Context(), os.Stdout)
			if err != nil {
				return err
			}
			defer func() { _ = rt.db.Close() }()

			rt.logger.Info("Executing migrations", "command", command)
			return postgres.Migrate(cmd.Context(), rt.db, command, rt.logger, args...)
		},
	}
}

func newDistributeCmd() *cobra.Command {
	var sweepFirst bool
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Assign today's tasks to every member once and print the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, func(ctx context.Context, app *application) (any, error) {
				if sweepFirst {
					if _, err := app.sweeper.ResetDailyState(ctx); err != nil {
						return nil, err
					}
				}
				return app.engine.AssignDailyTasks(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&sweepFirst, "sweep", false, "run the day-boundary sweep before distributing")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale assignments and reset daily counters once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd, func(ctx context.Context, app *application) (any, error) {
				return app.sweeper.ResetDailyState(ctx)
			})
		},
	}
}

// runOneShot builds the application without starting background work, runs
// fn and prints its result as JSON on stdout. Logs go to stderr.
func runOneShot(cmd *cobra.Command, fn func(context.Context, *application) (any, error)) error {
	ctx := cmd.Context()
	rt, err := bootstrap(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = rt.db.Close() }()

	app, err := newApplication(rt.cfg, rt.logger, rt.db)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	result, err := fn(ctx, app)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
