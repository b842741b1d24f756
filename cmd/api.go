package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/A1-lex/habit-veritas-android-backend/config"
	"github.com/A1-lex/habit-veritas-android-backend/internal/api"
	"github.com/A1-lex/habit-veritas-android-backend/internal/cache"
	"github.com/A1-lex/habit-veritas-android-backend/internal/database"
	"github.com/A1-lex/habit-veritas-android-backend/internal/metrics"
	"github.com/A1-lex/habit-veritas-android-backend/internal/models"
	"github.com/A1-lex/habit-veritas-android-backend/internal/repositories"
	"github.com/A1-lex/habit-veritas-android-backend/internal/search"
	"github.com/A1-lex/habit-veritas-android-backend/internal/services"
	"github.com/A1-lex/habit-veritas-android-backend/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server for recording habit events and serving analytics`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
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

	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Disabled()
	}

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	metricsCollector := metrics.NewMetrics()
	metricsCollector.SetHealth("database", true)

	eventRepo := repositories.NewEventRepository(db, readOnlyDB)
	aggRepo := repositories.NewAggRepository(db, readOnlyDB)
	habitRepo := repositories.NewHabitRepository(db, readOnlyDB)

	trackerService := services.NewTrackerService(eventRepo, habitRepo, redisCache, elasticClient, metricsCollector, tracer, cfg.Undo)
	habitService := services.NewHabitService(habitRepo)
	analyticsService := services.NewAnalyticsService(eventRepo, aggRepo, habitRepo, redisCache, metricsCollector, tracer)

	server := api.NewServer(cfg, trackerService, habitService, analyticsService, metricsCollector, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis connection")
		}
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, nil, err
	}

	// Auto-migrate only the write database
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	return db, readOnlyDB, nil
}
