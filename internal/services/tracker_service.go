package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/A1-lex/habit-veritas-android-backend/config"
	"github.com/A1-lex/habit-veritas-android-backend/internal/cache"
	"github.com/A1-lex/habit-veritas-android-backend/internal/metrics"
	"github.com/A1-lex/habit-veritas-android-backend/internal/models"
	"github.com/A1-lex/habit-veritas-android-backend/internal/repositories"
	"github.com/A1-lex/habit-veritas-android-backend/internal/search"
	"github.com/A1-lex/habit-veritas-android-backend/internal/tracing"
)

const (
	defaultSearchResults = 20
	maxSearchResults     = 100
)

// HabitStatus is a habit's latest status for a day
type HabitStatus struct {
	Status   string     `json:"status"`
	LastTime *time.Time `json:"last_time"`
	CanEdit  bool       `json:"can_edit"`
}

// TrackerService owns the event log and its daily rollup: recording,
// undo, and status queries. The two tables are only ever changed through
// this service, which keeps them consistent.
type TrackerService struct {
	eventRepo  repositories.EventRepository
	habitRepo  repositories.HabitRepository
	cache      *cache.RedisCache
	elastic    *search.ElasticClient
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
	undoWindow time.Duration
}

// NewTrackerService creates a new tracker service
func NewTrackerService(
	eventRepo repositories.EventRepository,
	habitRepo repositories.HabitRepository,
	redisCache *cache.RedisCache,
	elasticClient *search.ElasticClient,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
	undoCfg config.UndoConfig,
) *TrackerService {
	return &TrackerService{
		eventRepo:  eventRepo,
		habitRepo:  habitRepo,
		cache:      redisCache,
		elastic:    elasticClient,
		metrics:    metricsCollector,
		tracer:     tracer,
		undoWindow: undoCfg.DefaultWindow,
	}
}

// RecordEvent appends an event for a habit and bumps its daily bucket in
// one atomic unit. No habit existence check is applied: recording against
// an unknown habit simply orphans the event. Only complete and skip affect
// the counters; any other event type is stored without touching them.
func (s *TrackerService) RecordEvent(ctx context.Context, habitID uint, eventType, source, userUUID string) (*models.HabitLog, error) {
	txn := s.tracer.StartTransaction("record-event")
	defer s.tracer.EndTransaction(txn)

	if habitID == 0 {
		return nil, ErrInvalidHabitID
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, ErrMissingEventType
	}
	if source == "" {
		source = "unknown"
	}
	if userUUID == "" {
		userUUID = uuid.New().String()
	}

	event := &models.HabitLog{
		UserUUID:  userUUID,
		HabitID:   habitID,
		EventType: eventType,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Source:    source,
	}

	s.tracer.AddAttribute(txn, "habit_id", int64(habitID))
	s.tracer.AddAttribute(txn, "event_type", eventType)

	err := repositories.WithRetry(ctx, "record", func() error {
		return s.eventRepo.Record(ctx, event)
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		if repositories.IsTransient(err) {
			s.metrics.IncrementCounter(metrics.WriteRetriesExhausted)
		}
		return nil, err
	}

	s.metrics.IncrementCounter(metrics.EventsRecorded)
	log.Info().
		Uint("event_id", event.ID).
		Uint("habit_id", habitID).
		Str("event_type", eventType).
		Str("source", source).
		Msg("Event recorded")

	s.afterWrite(ctx, event.Timestamp)

	// Mirror to the search index, best-effort: Postgres remains the
	// source of truth and a failed index never fails the write
	if err := s.elastic.IndexEvent(ctx, event); err != nil {
		log.Warn().Err(err).Uint("event_id", event.ID).Msg("Failed to index event")
	}

	return event, nil
}

// UndoLastEvent reverses the habit's most recent event inside the window,
// deleting the log row and decrementing the matching counter atomically.
// Returns (nil, nil) when no event falls inside the window; that is a
// normal empty result, not a failure. Each call re-checks the window
// against current time, so repeated undos stop once the next older event
// has aged out.
func (s *TrackerService) UndoLastEvent(ctx context.Context, habitID uint, window time.Duration) (*models.HabitLog, error) {
	txn := s.tracer.StartTransaction("undo-event")
	defer s.tracer.EndTransaction(txn)

	if habitID == 0 {
		return nil, ErrInvalidHabitID
	}
	if window <= 0 {
		window = s.undoWindow
	}
	cutoff := time.Now().UTC().Add(-window)

	var result *repositories.UndoResult
	err := repositories.WithRetry(ctx, "undo", func() error {
		var err error
		result, err = s.eventRepo.UndoLatest(ctx, habitID, cutoff)
		return err
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.metrics.IncrementCounter(metrics.UndoNoRecentEvent)
			log.Info().Uint("habit_id", habitID).Dur("window", window).Msg("No recent event to undo")
			return nil, nil
		}
		s.tracer.RecordError(txn, err)
		if repositories.IsTransient(err) {
			s.metrics.IncrementCounter(metrics.WriteRetriesExhausted)
		}
		return nil, err
	}

	event := result.Event
	if result.Clamped {
		// The counter was already zero: the log row and its bucket had
		// drifted apart, most likely an earlier double-undo
		s.metrics.IncrementCounter(metrics.ClampedDecrements)
		log.Warn().
			Uint("habit_id", habitID).
			Str("day", models.DayKey(event.Timestamp)).
			Str("event_type", event.EventType).
			Msg("Undo decrement clamped at zero")
	}

	s.metrics.IncrementCounter(metrics.EventsUndone)
	log.Info().
		Uint("event_id", event.ID).
		Uint("habit_id", habitID).
		Str("event_type", event.EventType).
		Msg("Event undone")

	s.afterWrite(ctx, event.Timestamp)

	if err := s.elastic.DeleteEvent(ctx, event.ID); err != nil {
		log.Warn().Err(err).Uint("event_id", event.ID).Msg("Failed to remove event from index")
	}

	return event, nil
}

// StatusToday returns the habit's latest event type on the given day, or
// "none" when nothing was logged. Equal timestamps resolve to the most
// recently inserted event.
func (s *TrackerService) StatusToday(ctx context.Context, habitID uint, day time.Time) (string, error) {
	if habitID == 0 {
		return "", ErrInvalidHabitID
	}

	event, err := s.eventRepo.LatestStatus(ctx, habitID, day)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.StatusNone, nil
		}
		return "", err
	}
	return event.EventType, nil
}

// StatusTodayAll reports the latest status on the day for every known
// habit, with the "none" sentinel and nil last-time for habits without a
// log. Logs for deleted habits are excluded by the habit join.
func (s *TrackerService) StatusTodayAll(ctx context.Context, day time.Time) (map[uint]HabitStatus, error) {
	habits, err := s.habitRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	latest, err := s.eventRepo.LatestPerHabit(ctx, day)
	if err != nil {
		return nil, err
	}

	byHabit := make(map[uint]models.HabitLog, len(latest))
	for _, event := range latest {
		byHabit[event.HabitID] = event
	}

	statuses := make(map[uint]HabitStatus, len(habits))
	for _, habit := range habits {
		status := HabitStatus{Status: models.StatusNone, CanEdit: true}
		if event, ok := byHabit[habit.ID]; ok {
			ts := event.Timestamp
			status.Status = event.EventType
			status.LastTime = &ts
		}
		statuses[habit.ID] = status
	}
	return statuses, nil
}

// SearchEvents queries the search index for recent events, newest first,
// optionally narrowed by habit and event type. Only available when the
// Elasticsearch mirror is enabled; the index trails the log by whatever
// indexing lag exists, so results are advisory, not authoritative.
func (s *TrackerService) SearchEvents(ctx context.Context, habitID uint, eventType string, limit int) ([]map[string]interface{}, error) {
	if s.elastic == nil {
		return nil, ErrSearchUnavailable
	}
	if limit <= 0 || limit > maxSearchResults {
		limit = defaultSearchResults
	}

	must := make([]map[string]interface{}, 0, 2)
	if habitID > 0 {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"habit_id": habitID},
		})
	}
	if eventType != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"event_type": eventType},
		})
	}

	query := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
		"sort": []map[string]interface{}{
			{"timestamp": map[string]interface{}{"order": "desc"}},
		},
	}

	return s.elastic.SearchEvents(ctx, query)
}

// afterWrite invalidates the cached analytics report for the affected day
// and for today, which both may have changed.
func (s *TrackerService) afterWrite(ctx context.Context, eventTime time.Time) {
	keys := []string{cache.ReportCacheKey(models.DayKey(eventTime))}
	if today := models.DayKey(time.Now()); today != models.DayKey(eventTime) {
		keys = append(keys, cache.ReportCacheKey(today))
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate analytics cache")
	}
}
