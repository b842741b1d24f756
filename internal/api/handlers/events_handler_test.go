package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/A1-lex/habit-veritas-android-backend/config"
	"github.com/A1-lex/habit-veritas-android-backend/internal/metrics"
	"github.com/A1-lex/habit-veritas-android-backend/internal/models"
	"github.com/A1-lex/habit-veritas-android-backend/internal/repositories"
	"github.com/A1-lex/habit-veritas-android-backend/internal/services"
	"github.com/A1-lex/habit-veritas-android-backend/internal/tracing"
)

// stubEventRepo cans the undo result; the embedded interface panics on
// anything else, so a test only passes through the path it scripts.
type stubEventRepo struct {
	repositories.EventRepository
	undoResult *repositories.UndoResult
	undoErr    error
}

func (s *stubEventRepo) UndoLatest(ctx context.Context, habitID uint, cutoff time.Time) (*repositories.UndoResult, error) {
	return s.undoResult, s.undoErr
}

func newTestRouter(eventRepo repositories.EventRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)

	trackerService := services.NewTrackerService(
		eventRepo, nil, nil, nil,
		metrics.NewMetrics(), tracing.Disabled(),
		config.UndoConfig{DefaultWindow: time.Minute},
	)

	router := gin.New()
	NewEventsHandler(trackerService, tracing.Disabled()).RegisterRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleUndoEventReturnsBareEnvelope(t *testing.T) {
	repo := &stubEventRepo{
		undoResult: &repositories.UndoResult{
			Event: &models.HabitLog{
				ID:        42,
				HabitID:   7,
				EventType: models.EventComplete,
				Timestamp: time.Now().UTC(),
			},
		},
	}
	router := newTestRouter(repo)

	w := doRequest(router, http.MethodPost, "/events/undo", `{"habit_id":7}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, map[string]interface{}{"status": "undone"}, body)
}

func TestHandleUndoEventNoRecentEvent(t *testing.T) {
	router := newTestRouter(&stubEventRepo{undoErr: repositories.ErrNotFound})

	w := doRequest(router, http.MethodPost, "/events/undo", `{"habit_id":7}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, map[string]interface{}{"status": "no_recent_event"}, body)
}

func TestHandleSearchEventsUnavailable(t *testing.T) {
	router := newTestRouter(&stubEventRepo{})

	w := doRequest(router, http.MethodGet, "/events/search?habit_id=7", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleSearchEventsRejectsBadHabitID(t *testing.T) {
	router := newTestRouter(&stubEventRepo{})

	w := doRequest(router, http.MethodGet, "/events/search?habit_id=abc", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}
