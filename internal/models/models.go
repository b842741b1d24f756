package models

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Event types that affect the daily aggregates. Any other value is stored
// in the log but contributes to neither counter.
const (
	EventComplete = "complete"
	EventSkip     = "skip"
)

// StatusNone is the sentinel status for a habit with no event on a day.
const StatusNone = "none"

// Habit represents a tracked habit
type Habit struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"not null;uniqueIndex" json:"name"`
	Description string     `gorm:"default:''" json:"description"`
	Active      bool       `gorm:"not null;default:true" json:"active"`
	ArchivedAt  *time.Time `json:"archived_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// HabitLog is a single raw event in the append-only log. Rows are immutable
// once written; the only mutation ever applied is deletion by undo.
type HabitLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserUUID  string    `gorm:"column:user_uuid" json:"user_uuid"`
	HabitID   uint      `gorm:"not null;index:idx_habit_logs_habit_ts" json:"habit_id"`
	EventType string    `gorm:"not null" json:"event_type"`
	Timestamp time.Time `gorm:"not null;index:idx_habit_logs_habit_ts" json:"timestamp"`
	Source    string    `json:"source"`
}

// TableName keeps the table name compatible with existing deployments
func (HabitLog) TableName() string {
	return "habit_logs"
}

// DailyAgg is the derived per-habit-per-day rollup. Invariant: completions
// and skips equal the counts of non-deleted complete/skip logs whose
// timestamp falls on that UTC day. Rows are created lazily and never
// deleted; zero counts are valid.
type DailyAgg struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	HabitID     uint   `gorm:"not null;uniqueIndex:idx_daily_agg_habit_day" json:"habit_id"`
	Day         string `gorm:"not null;uniqueIndex:idx_daily_agg_habit_day" json:"day"`
	Completions int    `gorm:"not null;default:0" json:"completions"`
	Skips       int    `gorm:"not null;default:0" json:"skips"`
}

// TableName keeps the table name compatible with existing deployments
func (DailyAgg) TableName() string {
	return "daily_agg"
}

// DayKey formats a UTC timestamp as the YYYY-MM-DD bucket key.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DayRange returns the [start, end) UTC bounds of the calendar day the
// given time falls on. Bucketing always compares against this range rather
// than matching timestamp string prefixes.
func DayRange(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Habit{},
		&HabitLog{},
		&DailyAgg{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
