package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/A1-lex/habit-veritas-android-backend/internal/services"
	"github.com/A1-lex/habit-veritas-android-backend/internal/tracing"
)

// AnalyticsHandler handles analytics HTTP requests
type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
	tracer           tracing.Tracer
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(analyticsService *services.AnalyticsService, tracer tracing.Tracer) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		tracer:           tracer,
	}
}

// HandleSummary returns the analytics report for the current day
func (h *AnalyticsHandler) HandleSummary(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-analytics-summary")
	defer h.tracer.EndTransaction(txn)

	report, err := h.analyticsService.Summarize(c, time.Now().UTC())
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   report,
	})
}

// HandleHabitStreaks returns one habit's current and longest streak
func (h *AnalyticsHandler) HandleHabitStreaks(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current, longest, err := h.analyticsService.HabitStreaks(c, id, time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"habit_id":       id,
		"current_streak": current,
		"longest_streak": longest,
	})
}

// RegisterRoutes registers the handler's routes
func (h *AnalyticsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/analytics", h.HandleSummary)
	router.GET("/analytics/summary", h.HandleSummary)
	router.GET("/habits/:id/streaks", h.HandleHabitStreaks)
}
