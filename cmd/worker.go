package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/A1-lex/habit-veritas-android-backend/config"
	"github.com/A1-lex/habit-veritas-android-backend/internal/metrics"
	"github.com/A1-lex/habit-veritas-android-backend/internal/repositories"
	"github.com/A1-lex/habit-veritas-android-backend/internal/services"
	"github.com/A1-lex/habit-veritas-android-backend/internal/tracing"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that periodically reconciles daily aggregates against the event log`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Disabled()
	}

	metricsCollector := metrics.NewMetrics()

	eventRepo := repositories.NewEventRepository(db, readOnlyDB)
	aggRepo := repositories.NewAggRepository(db, readOnlyDB)

	reconciler := services.NewReconciler(eventRepo, aggRepo, metricsCollector, tracer, cfg.Reconcile)

	g.Go(func() error {
		log.Info().Dur("interval", cfg.Reconcile.Interval).Bool("repair", cfg.Reconcile.Repair).
			Msg("Starting aggregate reconciliation job")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Reconcile.Interval),
			gocron.NewTask(func() {
				if _, err := reconciler.Run(ctx); err != nil {
					log.Error().Err(err).Msg("Reconciliation pass failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
