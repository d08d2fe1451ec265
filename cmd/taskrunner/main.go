package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ivybound/taskrunner/internal/alertengine"
	"github.com/ivybound/taskrunner/internal/calendar"
	"github.com/ivybound/taskrunner/internal/catalogue"
	"github.com/ivybound/taskrunner/internal/config"
	"github.com/ivybound/taskrunner/internal/logrotate"
	"github.com/ivybound/taskrunner/internal/metricswriter"
	"github.com/ivybound/taskrunner/internal/obsmetrics"
	"github.com/ivybound/taskrunner/internal/scheduler"
	"github.com/ivybound/taskrunner/internal/store"
	"github.com/ivybound/taskrunner/internal/store/postgres"
	"github.com/ivybound/taskrunner/internal/store/sqlite"
	"github.com/ivybound/taskrunner/internal/supervisor"
	"github.com/ivybound/taskrunner/internal/worker"
	"github.com/ivybound/taskrunner/server"
)

var rootCmd = &cobra.Command{
	Use:   "taskrunner",
	Short: "A single-node job orchestrator that runs shell jobs on timed triggers.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, worker pool and status surface until terminated.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe()
	},
}

var catalogueCmd = &cobra.Command{
	Use:   "catalogue",
	Short: "Inspect the job catalogue.",
}

var catalogueValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse the configured JOBS_FILE and print any diagnostic without starting the daemon.",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg := config.FromEnv()
		cat := catalogue.New()
		err := cat.Reload(cfg.JobsFile)
		if diag := cat.Diagnostic(); diag != "" {
			fmt.Println("diagnostic:", diag)
		}
		if err != nil {
			return err
		}
		fmt.Println("catalogue OK")
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Operator actions that act on a running daemon's store directly.",
}

var runTriggerCmd = &cobra.Command{
	Use:   "trigger [task-name]",
	Short: "Enqueue one PENDING run for the named task immediately, outside its normal triggers.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg := config.FromEnv()
		if err := cfg.Validate(); err != nil {
			return err
		}
		drv, err := openStore(cfg.DBURL)
		if err != nil {
			return err
		}
		defer drv.Close()

		ctx := context.Background()
		st := store.New(drv)
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		task, err := st.GetTaskByName(ctx, args[0])
		if err != nil {
			return fmt.Errorf("looking up task %q: %w", args[0], err)
		}
		run, err := st.EnqueueRun(ctx, task.ID, nil, time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Printf("enqueued run %d for task %q\n", run.ID, task.Name)
		return nil
	},
}

func init() {
	viper.SetEnvPrefix("taskrunner")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	catalogueCmd.AddCommand(catalogueValidateCmd)
	runCmd.AddCommand(runTriggerCmd)
	rootCmd.AddCommand(serveCmd, catalogueCmd, runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// isRunningAsSystemdService reports whether systemd is managing this
// process, so a local .env file is only consulted for direct binary
// execution.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// openStore dispatches on DB_URL's scheme: "sqlite://" (or a bare
// filesystem path) opens the pure-Go SQLite driver; "postgres://" or
// "postgresql://" opens the PostgreSQL driver.
func openStore(dbURL string) (store.Driver, error) {
	switch {
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		return postgres.Open(dbURL)
	case strings.HasPrefix(dbURL, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dbURL, "sqlite://"))
	default:
		return sqlite.Open(dbURL)
	}
}

func runServe() error {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	logHandler := slog.NewJSONHandler(io.MultiWriter(os.Stdout, logAppWriter(cfg)), &slog.HandlerOptions{Level: cfg.LogLevel})
	slog.SetDefault(slog.New(logHandler))

	drv, err := openStore(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer drv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.New(drv)
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating store: %w", err)
	}

	cat := catalogue.New()
	if err := cat.Reload(cfg.JobsFile); err != nil {
		slog.Warn("initial job catalogue load failed, starting with an empty catalogue", "error", err)
	}

	clock := calendar.NewRealClock(cfg.Timezone)
	oracle := calendar.NewOverrideOracle(calendar.WeekendOracle{}, cfg.HolidayOverridesFile)

	rotator := logrotate.New(cfg.LogDir, cfg.LogBackupDays, clock.Location())
	metrics := metricswriter.New(cfg.MetricsDir, cfg.MetricsRetentionDays, clock.Location())
	obs := obsmetrics.New()
	obs.SetWorkerPoolSize(cfg.MaxWorkers)

	alerts := alertengine.New(st, int(cfg.AlertSuppress.Seconds()), alertengine.PushConfig{
		Script: cfg.AlertPushScript,
		Title:  cfg.AlertPushTitle,
		Group:  cfg.AlertPushGroup,
		Level:  cfg.AlertPushLevel,
	}).WithObs(obs)

	engine := &worker.Engine{
		Store:          st,
		Catalogue:      cat,
		Rotator:        rotator,
		Metrics:        metrics,
		Alerts:         alerts,
		Obs:            obs,
		DefaultTimeout: cfg.DefaultTimeoutSec,
		TermGrace:      supervisor.DefaultTermGrace,
		ZombieAfter:    cfg.RunZombieSec,
	}
	pool := worker.NewPool(engine, cfg.MaxWorkers)

	sched := scheduler.New(st, clock, oracle)

	base := fmt.Sprintf("http://%s:%d%s", cfg.Host, cfg.Port, cfg.RootPath)
	srv := server.New(st, obs, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), cfg.RootPath, base)

	pool.Start()
	sched.Start()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, terminationSignals...)

	slog.Info("taskrunner started", "host", cfg.Host, "port", cfg.Port, "max_workers", cfg.MaxWorkers, "db", redactedDSN(cfg.DBURL))

	select {
	case <-sigCh:
		slog.Info("shutdown signal received")
	case err := <-serverErrCh:
		if err != nil {
			slog.Error("status server failed", "error", err)
		}
	}

	sched.Stop()
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("status server shutdown error", "error", err)
	}

	slog.Info("taskrunner stopped")
	return nil
}

func redactedDSN(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***" + dsn[i:]
		}
	}
	return dsn
}

func logAppWriter(cfg *config.Config) *logrotate.AppLogWriter {
	path := cfg.LogDir + "/" + cfg.AppLogName
	return logrotate.NewAppLogWriter(path, cfg.LogMaxBytes, cfg.LogBackupDays)
}
