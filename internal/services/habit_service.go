package services

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/A1-lex/habit-veritas-android-backend/internal/models"
	"github.com/A1-lex/habit-veritas-android-backend/internal/repositories"
)

// HabitUpdate is a partial update over a habit. Nil fields are left
// untouched; presence is carried by the pointer, never by sentinel values
// or dynamically assembled SQL.
type HabitUpdate struct {
	Name        *string
	Description *string
	Active      *bool
}

// HabitService owns habit CRUD. It is glue around the habits table; the
// event log and aggregates never change through it.
type HabitService struct {
	habitRepo repositories.HabitRepository
}

// NewHabitService creates a new habit service
func NewHabitService(habitRepo repositories.HabitRepository) *HabitService {
	return &HabitService{habitRepo: habitRepo}
}

// CreateHabit creates a habit with a case-insensitively unique name.
// Returns ErrDuplicateName wrapped around the existing habit's id.
func (s *HabitService) CreateHabit(ctx context.Context, name, description string) (*models.Habit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	if existing, err := s.habitRepo.FindByNameFold(ctx, name); err == nil {
		return existing, ErrDuplicateName
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	habit := &models.Habit{
		Name:        name,
		Description: strings.TrimSpace(description),
		Active:      true,
	}
	if err := s.habitRepo.Create(ctx, habit); err != nil {
		// The unique index backstops a race between the check and insert
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, ErrDuplicateName
		}
		return nil, err
	}

	log.Info().Uint("habit_id", habit.ID).Str("name", habit.Name).Msg("Habit created")
	return habit, nil
}

// GetHabit returns a habit by id
func (s *HabitService) GetHabit(ctx context.Context, id uint) (*models.Habit, error) {
	return s.habitRepo.GetByID(ctx, id)
}

// ListHabits returns all habits, newest first; the client filters by the
// active flag
func (s *HabitService) ListHabits(ctx context.Context) ([]models.Habit, error) {
	return s.habitRepo.List(ctx)
}

// ListArchivedHabits returns inactive habits, most recently archived first
func (s *HabitService) ListArchivedHabits(ctx context.Context) ([]models.Habit, error) {
	return s.habitRepo.ListArchived(ctx)
}

// UpdateHabit applies the provided fields to a habit. Flipping the active
// flag stamps or clears archived_at.
func (s *HabitService) UpdateHabit(ctx context.Context, id uint, update HabitUpdate) (*models.Habit, error) {
	if update.Name == nil && update.Description == nil && update.Active == nil {
		return nil, ErrNoUpdatableFields
	}

	habit, err := s.habitRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		habit.Name = name
	}
	if update.Description != nil {
		habit.Description = strings.TrimSpace(*update.Description)
	}
	if update.Active != nil {
		s.setActive(habit, *update.Active)
	}

	if err := s.habitRepo.Update(ctx, habit); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, ErrDuplicateName
		}
		return nil, err
	}
	return habit, nil
}

// ArchiveHabit deactivates a habit and stamps archived_at
func (s *HabitService) ArchiveHabit(ctx context.Context, id uint) (*models.Habit, error) {
	habit, err := s.habitRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.setActive(habit, false)
	if err := s.habitRepo.Update(ctx, habit); err != nil {
		return nil, err
	}

	log.Info().Uint("habit_id", id).Msg("Habit archived")
	return habit, nil
}

// UnarchiveHabit reactivates a habit and clears archived_at
func (s *HabitService) UnarchiveHabit(ctx context.Context, id uint) (*models.Habit, error) {
	habit, err := s.habitRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.setActive(habit, true)
	if err := s.habitRepo.Update(ctx, habit); err != nil {
		return nil, err
	}

	log.Info().Uint("habit_id", id).Msg("Habit unarchived")
	return habit, nil
}

// DeleteHabit removes the habit row. Its events are left orphaned in the
// log and excluded from reports by the habit join.
func (s *HabitService) DeleteHabit(ctx context.Context, id uint) error {
	if err := s.habitRepo.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Uint("habit_id", id).Msg("Habit deleted")
	return nil
}

func (s *HabitService) setActive(habit *models.Habit, active bool) {
	habit.Active = active
	if active {
		habit.ArchivedAt = nil
	} else {
		at := time.Now().UTC()
		habit.ArchivedAt = &at
	}
}
