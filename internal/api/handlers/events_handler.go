package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/A1-lex/habit-veritas-android-backend/internal/repositories"
	"github.com/A1-lex/habit-veritas-android-backend/internal/services"
	"github.com/A1-lex/habit-veritas-android-backend/internal/tracing"
)

// EventsHandler handles event recording, undo and status HTTP requests
type EventsHandler struct {
	trackerService *services.TrackerService
	tracer         tracing.Tracer
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(trackerService *services.TrackerService, tracer tracing.Tracer) *EventsHandler {
	return &EventsHandler{
		trackerService: trackerService,
		tracer:         tracer,
	}
}

// RecordEventRequest represents an incoming event
type RecordEventRequest struct {
	HabitID   uint   `json:"habit_id" binding:"required"`
	EventType string `json:"event_type" binding:"required"`
	Source    string `json:"source"`
	UserUUID  string `json:"user_uuid"`
}

// UndoEventRequest asks to reverse a habit's most recent event. A zero
// window falls back to the configured default.
type UndoEventRequest struct {
	HabitID       uint `json:"habit_id" binding:"required"`
	WindowSeconds int  `json:"window_seconds"`
}

// HandleRecordEvent appends an event and updates the daily aggregate
func (h *EventsHandler) HandleRecordEvent(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-record-event")
	defer h.tracer.EndTransaction(txn)

	var req RecordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.tracer.AddAttribute(txn, "habit_id", int64(req.HabitID))
	h.tracer.AddAttribute(txn, "event_type", req.EventType)

	event, err := h.trackerService.RecordEvent(c, req.HabitID, req.EventType, req.Source, req.UserUUID)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "event_logged",
		"event":  event,
	})
}

// HandleUndoEvent reverses the most recent event inside the undo window.
// An empty window is reported as 404 with a distinct status, not an error.
func (h *EventsHandler) HandleUndoEvent(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-undo-event")
	defer h.tracer.EndTransaction(txn)

	var req UndoEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.tracer.AddAttribute(txn, "habit_id", int64(req.HabitID))

	window := time.Duration(req.WindowSeconds) * time.Second
	event, err := h.trackerService.UndoLastEvent(c, req.HabitID, window)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondServiceError(c, err)
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "no_recent_event"})
		return
	}

	// Only the envelope goes over the wire; the reversed event stays a
	// service-level detail
	c.JSON(http.StatusOK, gin.H{"status": "undone"})
}

// HandleStatusToday returns the habit's latest status for the current day
func (h *EventsHandler) HandleStatusToday(c *gin.Context) {
	habitID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.trackerService.StatusToday(c, habitID, time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"habit_id": habitID,
		"status":   status,
	})
}

// HandleSearchEvents queries the search index for recent events. Optional
// habit_id and event_type query parameters narrow the result; limit caps
// it. Deployments without the index answer 503.
func (h *EventsHandler) HandleSearchEvents(c *gin.Context) {
	var habitID uint
	if raw := c.Query("habit_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": services.ErrInvalidHabitID.Error()})
			return
		}
		habitID = uint(id)
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	events, err := h.trackerService.SearchEvents(c, habitID, c.Query("event_type"), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// HandleTodayStatusAll returns the latest status for every habit today
func (h *EventsHandler) HandleTodayStatusAll(c *gin.Context) {
	statuses, err := h.trackerService.StatusTodayAll(c, time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"statuses": statuses})
}

// RegisterRoutes registers the handler's routes
func (h *EventsHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/events", h.HandleRecordEvent)
	router.POST("/events/undo", h.HandleUndoEvent)
	router.GET("/events/search", h.HandleSearchEvents)
	router.GET("/habit_status_today/:id", h.HandleStatusToday)
	router.GET("/today_status_all", h.HandleTodayStatusAll)
}

// parseID extracts the :id path parameter as a habit id
func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, services.ErrInvalidHabitID
	}
	return uint(id), nil
}

// respondServiceError maps service errors onto HTTP statuses. Validation
// errors are the caller's fault, exhausted retries ask the client to try
// again, everything else is a plain 500.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidHabitID),
		errors.Is(err, services.ErrMissingEventType),
		errors.Is(err, services.ErrNameRequired),
		errors.Is(err, services.ErrNoUpdatableFields):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrSearchUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case repositories.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, please retry"})
	default:
		log.Error().Err(err).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
