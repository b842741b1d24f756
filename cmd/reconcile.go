package cmd

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/A1-lex/habit-veritas-android-backend/config"
	"github.com/A1-lex/habit-veritas-android-backend/internal/metrics"
	"github.com/A1-lex/habit-veritas-android-backend/internal/repositories"
	"github.com/A1-lex/habit-veritas-android-backend/internal/services"
	"github.com/A1-lex/habit-veritas-android-backend/internal/tracing"
)

var reconcileRepair bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run a single reconciliation pass and exit",
	Long:  `Recompute daily aggregates from the event log, report divergence and optionally repair it`,
	RunE:  runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileRepair, "repair", false, "overwrite divergent buckets with counts recomputed from the log")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// The flag wins over the configured repair mode
	if reconcileRepair {
		cfg.Reconcile.Repair = true
	}

	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Disabled()
	}

	eventRepo := repositories.NewEventRepository(db, readOnlyDB)
	aggRepo := repositories.NewAggRepository(db, readOnlyDB)

	reconciler := services.NewReconciler(eventRepo, aggRepo, metrics.NewMetrics(), tracer, cfg.Reconcile)

	violations, err := reconciler.Run(context.Background())
	if err != nil {
		return err
	}

	log.Info().Int("violations", violations).Msg("Reconciliation pass complete")
	return nil
}
