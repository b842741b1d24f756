package repositories

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/A1-lex/habit-veritas-android-backend/internal/models"
)

// HabitRepository provides access to the habits table. The core treats it
// as the habit existence/identity collaborator; the CRUD surface on top of
// it is thin field mapping.
type HabitRepository interface {
	Create(ctx context.Context, habit *models.Habit) error
	GetByID(ctx context.Context, id uint) (*models.Habit, error)
	FindByNameFold(ctx context.Context, name string) (*models.Habit, error)
	List(ctx context.Context) ([]models.Habit, error)
	ListArchived(ctx context.Context) ([]models.Habit, error)
	Update(ctx context.Context, habit *models.Habit) error
	Delete(ctx context.Context, id uint) error
	CountByActive(ctx context.Context, active bool) (int64, error)
}

type habitRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewHabitRepository creates a new habit repository
func NewHabitRepository(db, readOnlyDB *gorm.DB) HabitRepository {
	return &habitRepository{db: db, readOnlyDB: readOnlyDB}
}

func (r *habitRepository) Create(ctx context.Context, habit *models.Habit) error {
	if err := r.db.WithContext(ctx).Create(habit).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return errors.Wrap(err, "failed to create habit")
	}
	return nil
}

func (r *habitRepository) GetByID(ctx context.Context, id uint) (*models.Habit, error) {
	var habit models.Habit
	err := r.readOnlyDB.WithContext(ctx).First(&habit, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get habit")
	}
	return &habit, nil
}

// FindByNameFold looks a habit up by name, case-insensitively. Returns
// ErrNotFound when no habit carries the name.
func (r *habitRepository) FindByNameFold(ctx context.Context, name string) (*models.Habit, error) {
	var habit models.Habit
	err := r.readOnlyDB.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(name)).
		First(&habit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to look up habit by name")
	}
	return &habit, nil
}

func (r *habitRepository) List(ctx context.Context) ([]models.Habit, error) {
	var habits []models.Habit
	err := r.readOnlyDB.WithContext(ctx).
		Order("created_at DESC").
		Find(&habits).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list habits")
	}
	return habits, nil
}

func (r *habitRepository) ListArchived(ctx context.Context) ([]models.Habit, error) {
	var habits []models.Habit
	err := r.readOnlyDB.WithContext(ctx).
		Where("active = ?", false).
		Order("archived_at DESC").
		Find(&habits).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list archived habits")
	}
	return habits, nil
}

func (r *habitRepository) Update(ctx context.Context, habit *models.Habit) error {
	// Save with Select so cleared pointer fields (archived_at) are written
	err := r.db.WithContext(ctx).
		Model(habit).
		Select("name", "description", "active", "archived_at").
		Updates(habit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return errors.Wrap(err, "failed to update habit")
	}
	return nil
}

func (r *habitRepository) Delete(ctx context.Context, id uint) error {
	// No cascade: logs for a deleted habit are orphaned and tolerated;
	// reports exclude them via the habit join.
	res := r.db.WithContext(ctx).Delete(&models.Habit{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to delete habit")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *habitRepository) CountByActive(ctx context.Context, active bool) (int64, error) {
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Habit{}).
		Where("active = ?", active).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count habits")
	}
	return count, nil
}
