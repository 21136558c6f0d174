package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	smartpark "github.com/ishaan2-svg/parkingawssystem"
	"github.com/ishaan2-svg/parkingawssystem/internal/correlation"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("SMARTPARK_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "smartparkd")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "smartparkd",
		Short:         "smartparkd runs the parking reservation engine: leased spots, background expiry, and durable layout documents",
		SilenceErrors: true,
		Example: `
  # Run the daemon against ./data, expiring overdue bookings every minute
  smartparkd serve

  # Replicate layout backups to AWS S3 (expects AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY)
  SMARTPARK_REMOTE=aws://my-bucket/smartpark SMARTPARK_AWS_REGION=ap-south-1 smartparkd serve

  # MinIO replication over plain HTTP
  smartparkd serve --remote 's3://localhost:9000/smartpark?insecure=true'

  # Initialise a fresh grid with the demo accounts, then find a spot
  smartparkd init --seed-demo-users
  smartparkd closest
`,
	}
	bindRootFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newServeCommand(baseLogger),
		newInitCommand(baseLogger),
		newBookCommand(baseLogger),
		newReleaseCommand(baseLogger),
		newClosestCommand(baseLogger),
		newSpotCommand(baseLogger),
		newBookingsCommand(baseLogger),
		newRegisterCommand(baseLogger),
		newLoginCommand(baseLogger),
		newStatsCommand(baseLogger),
		newVersionCommand(),
	)
	return cmd
}

func bindRootFlags(flags *pflag.FlagSet) {
	flags.String("data-dir", smartpark.DefaultDataDir, "directory holding the layout and user documents")
	flags.String("remote", "", "remote backup replication URL (aws://, s3://, azure://)")
	flags.String("timezone", smartpark.DefaultTimezone, "IANA timezone bookings are stamped in")
	flags.Int("floors", smartpark.DefaultFloors, "floors in a freshly generated layout")
	flags.Int("divisions", smartpark.DefaultDivisionsPerFloor, "divisions per floor in a fresh layout")
	flags.Int("spots", smartpark.DefaultSpotsPerDivision, "spots per division in a fresh layout")
	flags.Duration("sweep-interval", smartpark.DefaultSweepInterval, "how often expired bookings are collected")
	flags.Duration("backup-retention", smartpark.DefaultBackupRetention, "how long layout backups are kept")
	flags.String("metrics-listen", smartpark.DefaultMetricsListen, "Prometheus scrape address (empty disables)")
	flags.String("log-level", "info", "minimum log level (trace|debug|info|warn|error)")
	for _, name := range []string{
		"data-dir", "remote", "timezone", "floors", "divisions", "spots",
		"sweep-interval", "backup-retention", "metrics-listen", "log-level",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("SMARTPARK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func bindConfig(logger pslog.Logger) smartpark.Config {
	cfg := smartpark.Config{
		DataDir:           viper.GetString("data-dir"),
		RemoteURL:         viper.GetString("remote"),
		Timezone:          viper.GetString("timezone"),
		Floors:            viper.GetInt("floors"),
		DivisionsPerFloor: viper.GetInt("divisions"),
		SpotsPerDivision:  viper.GetInt("spots"),
		SweepInterval:     viper.GetDuration("sweep-interval"),
		BackupRetention:   viper.GetDuration("backup-retention"),
		MetricsListen:     viper.GetString("metrics-listen"),
		Logger:            logger,
	}
	cfg.Normalize()
	return cfg
}

func commandLogger(baseLogger pslog.Logger) pslog.Logger {
	logger := baseLogger
	if level, ok := pslog.ParseLevel(strings.TrimSpace(viper.GetString("log-level"))); ok {
		logger = logger.LogLevel(level)
	}
	return logger
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}

func newServeCommand(baseLogger pslog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with the background expiry sweeper until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			logger := commandLogger(baseLogger)
			cfg := bindConfig(logger)
			logger.Info("smartparkd starting", "pid", os.Getpid(), "data_dir", cfg.DataDir)

			engine, err := smartpark.NewEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = engine.Close(shutdownCtx)
			}()
			if err := engine.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			logger.Info("smartparkd shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return engine.Close(shutdownCtx)
		},
	}
}

// withEngine runs a one-shot command against a passive engine: no background
// sweeper, no metrics listener.
func withEngine(cmd *cobra.Command, baseLogger pslog.Logger, fn func(ctx context.Context, engine *smartpark.Engine) error) error {
	cmd.SilenceUsage = true
	ctx := correlation.Set(cmd.Context(), correlation.Generate())
	logger := commandLogger(baseLogger)
	cfg := bindConfig(logger)
	cfg.SweepInterval = -1
	cfg.MetricsListen = ""
	engine, err := smartpark.NewEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = engine.Close(closeCtx)
	}()
	return fn(ctx, engine)
}
