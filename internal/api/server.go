package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/A1-lex/habit-veritas-android-backend/config"
	"github.com/A1-lex/habit-veritas-android-backend/internal/api/handlers"
	"github.com/A1-lex/habit-veritas-android-backend/internal/metrics"
	"github.com/A1-lex/habit-veritas-android-backend/internal/services"
	"github.com/A1-lex/habit-veritas-android-backend/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config           config.Config
	router           *gin.Engine
	httpServer       *http.Server
	trackerService   *services.TrackerService
	habitService     *services.HabitService
	analyticsService *services.AnalyticsService
	metrics          *metrics.Metrics
	tracer           tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	trackerService *services.TrackerService,
	habitService *services.HabitService,
	analyticsService *services.AnalyticsService,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:           cfg,
		trackerService:   trackerService,
		habitService:     habitService,
		analyticsService: analyticsService,
		metrics:          metricsCollector,
		tracer:           tracer,
	}

	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:        cfg.ServerAddress,
		Handler:     server.router,
		ReadTimeout: cfg.ServerTimeout,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware())
	if s.config.CorsEnabled {
		router.Use(CORSMiddleware())
	}

	eventsHandler := handlers.NewEventsHandler(s.trackerService, s.tracer)
	eventsHandler.RegisterRoutes(router)

	habitsHandler := handlers.NewHabitsHandler(s.habitService, s.tracer)
	habitsHandler.RegisterRoutes(router)

	analyticsHandler := handlers.NewAnalyticsHandler(s.analyticsService, s.tracer)
	analyticsHandler.RegisterRoutes(router)

	metricsHandler := handlers.NewMetricsHandler(s.metrics, s.tracer)
	metricsHandler.RegisterRoutes(router)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
