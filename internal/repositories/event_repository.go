package repositories

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/A1-lex/habit-veritas-android-backend/internal/models"
)

// DayCount is a per-day completion count for the daily breakdown
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"completions"`
}

// HabitCompletions ranks a habit by its completion count over a window
type HabitCompletions struct {
	HabitID     uint   `json:"id"`
	Name        string `json:"name"`
	Completions int    `json:"completions"`
}

// LogDayCounts is the per-habit-per-day truth recomputed from the raw log,
// used by the reconciliation pass to validate daily_agg.
type LogDayCounts struct {
	HabitID     uint
	Day         string
	Completions int
	Skips       int
}

// UndoResult carries the reversed event and whether the aggregate
// decrement was clamped at zero (a sign of prior double-undo or drift).
type UndoResult struct {
	Event   *models.HabitLog
	Clamped bool
}

// EventRepository is the append-only event store. Record and UndoLatest
// keep habit_logs and daily_agg consistent by applying both sides of each
// change inside a single database transaction.
type EventRepository interface {
	Record(ctx context.Context, event *models.HabitLog) error
	UndoLatest(ctx context.Context, habitID uint, cutoff time.Time) (*UndoResult, error)
	LatestStatus(ctx context.Context, habitID uint, day time.Time) (*models.HabitLog, error)
	LatestPerHabit(ctx context.Context, day time.Time) ([]models.HabitLog, error)

	CountCompletions(ctx context.Context, from, to time.Time) (int64, error)
	CompleteSkipCounts(ctx context.Context, from, to time.Time) (int64, int64, error)
	DailyCompletions(ctx context.Context, from, to time.Time) ([]DayCount, error)
	TopHabitsByCompletions(ctx context.Context, from, to time.Time, limit int) ([]HabitCompletions, error)

	RecountFromLog(ctx context.Context) ([]LogDayCounts, error)
}

type eventRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewEventRepository creates a new event store repository
func NewEventRepository(db, readOnlyDB *gorm.DB) EventRepository {
	return &eventRepository{db: db, readOnlyDB: readOnlyDB}
}

// Record appends the event and applies the matching +1 to its daily bucket
// as one atomic unit. The bucket is created with zero counts first when
// absent.
func (r *eventRepository) Record(ctx context.Context, event *models.HabitLog) error {
	day := models.DayKey(event.Timestamp)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := limitLockWait(tx); err != nil {
			return err
		}
		if err := tx.Create(event).Error; err != nil {
			return errors.Wrap(err, "failed to append event")
		}
		if err := ensureBucket(tx, event.HabitID, day); err != nil {
			return err
		}
		_, err := bumpBucket(tx, event.HabitID, day, event.EventType, +1)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "record failed for habit %d day %s", event.HabitID, day)
	}
	return nil
}

// UndoLatest deletes the habit's most recent event at or after cutoff and
// decrements the matching counter, atomically. Returns ErrNotFound when no
// event falls inside the window; the caller treats that as a normal empty
// result rather than a failure.
func (r *eventRepository) UndoLatest(ctx context.Context, habitID uint, cutoff time.Time) (*UndoResult, error) {
	result := &UndoResult{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := limitLockWait(tx); err != nil {
			return err
		}
		var event models.HabitLog
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("habit_id = ? AND timestamp >= ?", habitID, cutoff).
			Order("timestamp DESC, id DESC").
			First(&event).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return errors.Wrap(err, "failed to find event to undo")
		}

		if err := tx.Delete(&models.HabitLog{}, event.ID).Error; err != nil {
			return errors.Wrap(err, "failed to delete event")
		}

		day := models.DayKey(event.Timestamp)
		clamped, err := bumpBucket(tx, habitID, day, event.EventType, -1)
		if err != nil {
			return err
		}

		result.Event = &event
		result.Clamped = clamped
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "undo failed for habit %d", habitID)
	}
	return result, nil
}

// LatestStatus returns the most recent event for the habit on the given
// UTC day. Equal timestamps are broken by the larger id, i.e. the most
// recently inserted event wins.
func (r *eventRepository) LatestStatus(ctx context.Context, habitID uint, day time.Time) (*models.HabitLog, error) {
	start, end := models.DayRange(day)

	var event models.HabitLog
	err := r.readOnlyDB.WithContext(ctx).
		Where("habit_id = ? AND timestamp >= ? AND timestamp < ?", habitID, start, end).
		Order("timestamp DESC, id DESC").
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to query latest status")
	}
	return &event, nil
}

// LatestPerHabit returns the latest event of the day for every habit that
// has one, with the same tie-break as LatestStatus.
func (r *eventRepository) LatestPerHabit(ctx context.Context, day time.Time) ([]models.HabitLog, error) {
	start, end := models.DayRange(day)

	var events []models.HabitLog
	err := r.readOnlyDB.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (habit_id) id, user_uuid, habit_id, event_type, timestamp, source
		FROM habit_logs
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY habit_id, timestamp DESC, id DESC`,
		start, end).Scan(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to query per-habit statuses")
	}
	return events, nil
}

func (r *eventRepository) CountCompletions(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.HabitLog{}).
		Where("event_type = ? AND timestamp >= ? AND timestamp < ?", models.EventComplete, from, to).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count completions")
	}
	return count, nil
}

func (r *eventRepository) CompleteSkipCounts(ctx context.Context, from, to time.Time) (int64, int64, error) {
	var counts struct {
		Completes int64
		Skips     int64
	}
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.HabitLog{}).
		Select(
			"COUNT(*) FILTER (WHERE event_type = ?) AS completes, COUNT(*) FILTER (WHERE event_type = ?) AS skips",
			models.EventComplete, models.EventSkip,
		).
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Scan(&counts).Error
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to count completes and skips")
	}
	return counts.Completes, counts.Skips, nil
}

func (r *eventRepository) DailyCompletions(ctx context.Context, from, to time.Time) ([]DayCount, error) {
	var rows []DayCount
	err := r.readOnlyDB.WithContext(ctx).Raw(`
		SELECT to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*) AS count
		FROM habit_logs
		WHERE event_type = ? AND timestamp >= ? AND timestamp < ?
		GROUP BY day
		ORDER BY day ASC`,
		models.EventComplete, from, to).Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to query daily completions")
	}
	return rows, nil
}

// TopHabitsByCompletions ranks active habits by completion count over the
// window. Ties are broken by habit id ascending so the ranking is
// deterministic.
func (r *eventRepository) TopHabitsByCompletions(ctx context.Context, from, to time.Time, limit int) ([]HabitCompletions, error) {
	var rows []HabitCompletions
	err := r.readOnlyDB.WithContext(ctx).Raw(`
		SELECT h.id AS habit_id, h.name, COUNT(l.id) AS completions
		FROM habits h
		LEFT JOIN habit_logs l
			ON l.habit_id = h.id
			AND l.event_type = ?
			AND l.timestamp >= ? AND l.timestamp < ?
		WHERE h.active = true
		GROUP BY h.id, h.name
		ORDER BY completions DESC, h.id ASC
		LIMIT ?`,
		models.EventComplete, from, to, limit).Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to query top habits")
	}
	return rows, nil
}

// RecountFromLog recomputes per-habit-per-day counters from the raw log.
// The result is the ground truth the reconciler compares daily_agg against.
func (r *eventRepository) RecountFromLog(ctx context.Context) ([]LogDayCounts, error) {
	var rows []LogDayCounts
	err := r.readOnlyDB.WithContext(ctx).Raw(`
		SELECT habit_id,
			to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COUNT(*) FILTER (WHERE event_type = ?) AS completions,
			COUNT(*) FILTER (WHERE event_type = ?) AS skips
		FROM habit_logs
		GROUP BY habit_id, day
		ORDER BY habit_id ASC, day ASC`,
		models.EventComplete, models.EventSkip).Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to recount log by day")
	}
	return rows, nil
}
