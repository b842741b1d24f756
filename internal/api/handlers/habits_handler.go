package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/A1-lex/habit-veritas-android-backend/internal/services"
	"github.com/A1-lex/habit-veritas-android-backend/internal/tracing"
)

// HabitsHandler handles habit CRUD HTTP requests
type HabitsHandler struct {
	habitService *services.HabitService
	tracer       tracing.Tracer
}

// NewHabitsHandler creates a new habits handler
func NewHabitsHandler(habitService *services.HabitService, tracer tracing.Tracer) *HabitsHandler {
	return &HabitsHandler{
		habitService: habitService,
		tracer:       tracer,
	}
}

// CreateHabitRequest represents a habit creation request
type CreateHabitRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// UpdateHabitRequest is a partial habit update; absent fields are left
// untouched
type UpdateHabitRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

// HandleCreateHabit creates a habit. A name collision returns 409 with the
// existing habit's id so clients can link to it.
func (h *HabitsHandler) HandleCreateHabit(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-habit")
	defer h.tracer.EndTransaction(txn)

	var req CreateHabitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	habit, err := h.habitService.CreateHabit(c, req.Name, req.Description)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateName) {
			resp := gin.H{"error": err.Error()}
			if habit != nil {
				resp["existing_id"] = habit.ID
			}
			c.JSON(http.StatusConflict, resp)
			return
		}
		h.tracer.RecordError(txn, err)
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, habit)
}

// HandleGetHabit returns a single habit by id
func (h *HabitsHandler) HandleGetHabit(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	habit, err := h.habitService.GetHabit(c, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, habit)
}

// HandleListHabits returns all habits, newest first
func (h *HabitsHandler) HandleListHabits(c *gin.Context) {
	habits, err := h.habitService.ListHabits(c)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, habits)
}

// HandleListArchivedHabits returns archived habits, most recent first
func (h *HabitsHandler) HandleListArchivedHabits(c *gin.Context) {
	habits, err := h.habitService.ListArchivedHabits(c)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, habits)
}

// HandleUpdateHabit applies a partial update to a habit
func (h *HabitsHandler) HandleUpdateHabit(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-update-habit")
	defer h.tracer.EndTransaction(txn)

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req UpdateHabitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	habit, err := h.habitService.UpdateHabit(c, id, services.HabitUpdate{
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active,
	})
	if err != nil {
		if errors.Is(err, services.ErrDuplicateName) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.tracer.RecordError(txn, err)
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, habit)
}

// HandleArchiveHabit deactivates a habit
func (h *HabitsHandler) HandleArchiveHabit(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	habit, err := h.habitService.ArchiveHabit(c, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "archived", "habit": habit})
}

// HandleUnarchiveHabit reactivates a habit
func (h *HabitsHandler) HandleUnarchiveHabit(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	habit, err := h.habitService.UnarchiveHabit(c, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "unarchived", "habit": habit})
}

// HandleDeleteHabit removes a habit
func (h *HabitsHandler) HandleDeleteHabit(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.habitService.DeleteHabit(c, id); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// RegisterRoutes registers the handler's routes
func (h *HabitsHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/habits", h.HandleCreateHabit)
	router.GET("/habits", h.HandleListHabits)
	router.GET("/habits/archived", h.HandleListArchivedHabits)
	router.GET("/habits/:id", h.HandleGetHabit)
	router.PUT("/habits/:id", h.HandleUpdateHabit)
	router.DELETE("/habits/:id", h.HandleDeleteHabit)
	router.POST("/habits/:id/archive", h.HandleArchiveHabit)
	router.POST("/habits/:id/unarchive", h.HandleUnarchiveHabit)
}
