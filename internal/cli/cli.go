package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/pledgesync/internal/config"
	"github.com/smallbiznis/pledgesync/internal/importer"
	"github.com/smallbiznis/pledgesync/internal/migration"
	"github.com/smallbiznis/pledgesync/internal/observability/push"
	"github.com/smallbiznis/pledgesync/internal/scheduler"
	"github.com/smallbiznis/pledgesync/internal/server"
	"github.com/smallbiznis/pledgesync/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Environment provides an abstraction around the execution environment.
type Environment struct {
	Stderr io.Writer
	Stdout io.Writer
	Stdin  io.Reader
}

type ServeCmd struct {
	NoScheduler bool `help:"Do not run the periodic abandoned-checkout sweep in this process."`
}

func (cmd *ServeCmd) Run(env *Environment) error {
	opts := []fx.Option{
		infrastructure(),
		services(),
		migration.Module,
		server.Module,
	}
	if !cmd.NoScheduler {
		opts = append(opts, scheduler.Loop)
	}
	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

type ImportCmd struct {
	ProcessorID string `required:"" help:"Payment processor id to import subscriptions from."`
	Since       string `help:"Only subscriptions created on or after this date (YYYY-MM-DD or RFC 3339)."`
	Limit       int    `help:"Stop after this many subscriptions. Zero means all."`
	Confirm     bool   `help:"Ask before creating a recurring contribution for an unknown subscription."`
}

func (cmd *ImportCmd) Run(env *Environment) error {
	processorID, err := snowflake.ParseString(strings.TrimSpace(cmd.ProcessorID))
	if err != nil {
		return fmt.Errorf("invalid processor id %q: %w", cmd.ProcessorID, err)
	}
	since, err := parseSince(cmd.Since)
	if err != nil {
		return err
	}

	var confirmer importer.Confirmer
	if cmd.Confirm {
		confirmer = NewPromptConfirmer(env.Stdin, env.Stdout)
	}

	return withScheduler(func(ctx context.Context, sched *scheduler.Scheduler) error {
		stats, err := sched.RunImport(ctx, importer.Options{
			ProcessorID:         processorID,
			Since:               since,
			ConfirmBeforeCreate: cmd.Confirm,
			Limit:               cmd.Limit,
		}, confirmer)
		if stats != nil {
			printImportStats(env.Stdout, stats)
		}
		return err
	})
}

type SweepCmd struct {
	TimeoutHours float64 `help:"Fail Pending checkouts untouched for longer than this many hours. Defaults to SWEEP_TIMEOUT_HOURS."`
}

func (cmd *SweepCmd) Run(env *Environment) error {
	return withScheduler(func(ctx context.Context, sched *scheduler.Scheduler) error {
		result, err := sched.RunAbandonedSweep(ctx, cmd.TimeoutHours)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "cutoff %s, %d recurring contribution(s) failed\n",
			result.Cutoff.UTC().Format(time.RFC3339), len(result.AffectedIDs))
		for _, id := range result.AffectedIDs {
			fmt.Fprintln(env.Stdout, id.String())
		}
		return nil
	})
}

type MigrateCmd struct {
	Down bool `help:"Roll every migration back instead of applying them."`
}

func (cmd *MigrateCmd) Run(env *Environment) error {
	cfg := config.Load()
	if cfg.DBType == "postgres" {
		if err := migration.RunDSN(db.PostgresDSN(cfg), cmd.Down); err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, "migrations applied")
		return nil
	}
	if cmd.Down {
		return fmt.Errorf("down migrations are only supported on postgres, not %s", cfg.DBType)
	}

	app := fx.New(infrastructure(), migration.Module, fx.NopLogger)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout, "schema up to date")
	return app.Stop(ctx)
}

type CLI struct {
	Serve   ServeCmd   `cmd:"" default:"1" help:"Serve the webhook receiver and the checkout API."`
	Import  ImportCmd  `cmd:"" help:"Import every GoCardless subscription of a processor into the ledger."`
	Sweep   SweepCmd   `cmd:"" help:"Fail abandoned GoCardless checkouts once."`
	Migrate MigrateCmd `cmd:"" help:"Apply database migrations."`
}

func Run(env Environment) int {
	app := CLI{}

	cntx := kong.Parse(&app,
		kong.Name("pledgesync"),
		kong.Description("GoCardless recurring contribution sync"),
		kong.UsageOnError(),
		kong.Writers(env.Stdout, env.Stderr),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	err := cntx.Run(&env)
	cntx.FatalIfErrorf(err)

	return 0
}

// withScheduler starts the service graph without the HTTP server, hands
// the scheduler to fn and stops everything afterwards. SIGINT and SIGTERM
// cancel fn's context. Job metrics are pushed before exit when a push
// exporter is configured.
func withScheduler(fn func(ctx context.Context, sched *scheduler.Scheduler) error) error {
	var (
		sched  *scheduler.Scheduler
		pusher push.Pusher
		log    *zap.Logger
	)
	app := fx.New(
		infrastructure(),
		services(),
		push.Module,
		fx.NopLogger,
		fx.Populate(&sched, &pusher, &log),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runErr := fn(ctx, sched)

	if pusher != nil {
		pushCtx, cancelPush := context.WithTimeout(context.Background(), 10*time.Second)
		if err := pusher.Push(pushCtx, prometheus.DefaultGatherer); err != nil {
			log.Warn("metrics push failed", zap.Error(err))
		}
		cancelPush()
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	return errors.Join(runErr, app.Stop(stopCtx))
}

func parseSince(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --since %q: want YYYY-MM-DD or RFC 3339", value)
	}
	t = t.UTC()
	return &t, nil
}

func printImportStats(w io.Writer, stats *importer.Stats) {
	fmt.Fprintf(w, "run %s\n", stats.RunID)
	fmt.Fprintf(w, "subscriptions: %d found, %d created, %d matched, %d skipped, %d failed\n",
		stats.Subscriptions.Found,
		stats.Subscriptions.Created,
		stats.Subscriptions.Matched,
		stats.Subscriptions.Skipped,
		stats.Subscriptions.Failed,
	)
	fmt.Fprintf(w, "payments: %d found, %d added, %d skipped\n",
		stats.Payments.Found,
		stats.Payments.Added,
		stats.Payments.Skipped,
	)
	fmt.Fprintf(w, "amount imported: %s\n", formatMinor(stats.AmountImported))
	if stats.Interrupted {
		fmt.Fprintln(w, "run was interrupted")
	}
	if stats.SummaryPath != "" {
		fmt.Fprintf(w, "summary written to %s\n", stats.SummaryPath)
	}
	if stats.ArchiveKey != "" {
		fmt.Fprintf(w, "summary archived as %s\n", stats.ArchiveKey)
	}
}
