package repositories

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/A1-lex/habit-veritas-android-backend/internal/models"
)

// AggRepository maintains the daily_agg rollup. Counters are only ever
// adjusted through bumpBucket, inside the same transaction as the log
// write, so the zero-floor clamp applies everywhere.
type AggRepository interface {
	// BucketsForHabit returns the habit's buckets ascending by day
	BucketsForHabit(ctx context.Context, habitID uint) ([]models.DailyAgg, error)

	// DaysWithCompletions maps each habit to its days with completions > 0,
	// ascending by day. Habits with no completed day are absent.
	DaysWithCompletions(ctx context.Context) (map[uint][]string, error)

	// All returns every bucket, used by the reconciliation pass
	All(ctx context.Context) ([]models.DailyAgg, error)

	// Replace force-sets a bucket's counters, used only for repair
	Replace(ctx context.Context, habitID uint, day string, completions, skips int) error
}

type aggRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewAggRepository creates a new daily aggregate repository
func NewAggRepository(db, readOnlyDB *gorm.DB) AggRepository {
	return &aggRepository{db: db, readOnlyDB: readOnlyDB}
}

// ensureBucket lazily creates the zero-count bucket for a habit/day. Safe
// under concurrent writers: conflicting inserts on (habit_id, day) are
// ignored.
func ensureBucket(tx *gorm.DB, habitID uint, day string) error {
	bucket := models.DailyAgg{HabitID: habitID, Day: day}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "habit_id"}, {Name: "day"}},
		DoNothing: true,
	}).Create(&bucket).Error
	if err != nil {
		return errors.Wrap(err, "failed to ensure daily bucket")
	}
	return nil
}

// bumpBucket applies a +1/-1 to the counter matching eventType. Event types
// other than complete/skip are a no-op. Decrements never take a counter
// below zero: an update guarded by counter > 0 that matches no row means
// the decrement was clamped (or the bucket is missing). Returns whether a
// decrement clamped.
func bumpBucket(tx *gorm.DB, habitID uint, day, eventType string, delta int) (bool, error) {
	var column string
	switch eventType {
	case models.EventComplete:
		column = "completions"
	case models.EventSkip:
		column = "skips"
	default:
		return false, nil
	}

	if delta >= 0 {
		err := tx.Model(&models.DailyAgg{}).
			Where("habit_id = ? AND day = ?", habitID, day).
			UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error
		if err != nil {
			return false, errors.Wrapf(err, "failed to increment %s", column)
		}
		return false, nil
	}

	res := tx.Model(&models.DailyAgg{}).
		Where("habit_id = ? AND day = ? AND "+column+" > 0", habitID, day).
		UpdateColumn(column, gorm.Expr(column+" - 1"))
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "failed to decrement %s", column)
	}
	return res.RowsAffected == 0, nil
}

func (r *aggRepository) BucketsForHabit(ctx context.Context, habitID uint) ([]models.DailyAgg, error) {
	var buckets []models.DailyAgg
	err := r.readOnlyDB.WithContext(ctx).
		Where("habit_id = ?", habitID).
		Order("day ASC").
		Find(&buckets).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load buckets for habit")
	}
	return buckets, nil
}

func (r *aggRepository) DaysWithCompletions(ctx context.Context) (map[uint][]string, error) {
	var buckets []models.DailyAgg
	err := r.readOnlyDB.WithContext(ctx).
		Where("completions > 0").
		Order("habit_id ASC, day ASC").
		Find(&buckets).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load completion days")
	}

	days := make(map[uint][]string)
	for _, b := range buckets {
		days[b.HabitID] = append(days[b.HabitID], b.Day)
	}
	return days, nil
}

func (r *aggRepository) All(ctx context.Context) ([]models.DailyAgg, error) {
	var buckets []models.DailyAgg
	err := r.readOnlyDB.WithContext(ctx).
		Order("habit_id ASC, day ASC").
		Find(&buckets).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load daily aggregates")
	}
	return buckets, nil
}

func (r *aggRepository) Replace(ctx context.Context, habitID uint, day string, completions, skips int) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureBucket(tx, habitID, day); err != nil {
			return err
		}
		return tx.Model(&models.DailyAgg{}).
			Where("habit_id = ? AND day = ?", habitID, day).
			UpdateColumns(map[string]interface{}{
				"completions": completions,
				"skips":       skips,
			}).Error
	})
	if err != nil {
		return errors.Wrap(err, "failed to replace bucket counters")
	}
	return nil
}
