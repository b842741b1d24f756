package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/A1-lex/habit-veritas-android-backend/internal/models"
	"github.com/A1-lex/habit-veritas-android-backend/internal/repositories"
)

func TestCreateHabit(t *testing.T) {
	mockHabits := new(MockHabitRepository)
	mockHabits.On("FindByNameFold", mock.Anything, "Read").Return(nil, repositories.ErrNotFound)
	mockHabits.On("Create", mock.Anything, mock.AnythingOfType("*models.Habit")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Habit).ID = 3
		}).
		Return(nil)

	service := NewHabitService(mockHabits)

	habit, err := service.CreateHabit(context.Background(), "  Read  ", " nightly ")
	require.NoError(t, err)
	require.Equal(t, uint(3), habit.ID)
	require.Equal(t, "Read", habit.Name)
	require.Equal(t, "nightly", habit.Description)
	require.True(t, habit.Active)
	mockHabits.AssertExpectations(t)
}

func TestCreateHabitEmptyName(t *testing.T) {
	service := NewHabitService(new(MockHabitRepository))

	_, err := service.CreateHabit(context.Background(), "   ", "")
	require.ErrorIs(t, err, ErrNameRequired)
}

func TestCreateHabitDuplicateName(t *testing.T) {
	existing := &models.Habit{ID: 5, Name: "read", Active: true}

	mockHabits := new(MockHabitRepository)
	mockHabits.On("FindByNameFold", mock.Anything, "Read").Return(existing, nil)

	service := NewHabitService(mockHabits)

	habit, err := service.CreateHabit(context.Background(), "Read", "")
	require.ErrorIs(t, err, ErrDuplicateName)
	// The existing habit rides along so the caller can point at it
	require.Equal(t, existing, habit)
	mockHabits.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUpdateHabitNoFields(t *testing.T) {
	service := NewHabitService(new(MockHabitRepository))

	_, err := service.UpdateHabit(context.Background(), 3, HabitUpdate{})
	require.ErrorIs(t, err, ErrNoUpdatableFields)
}

func TestUpdateHabitPartial(t *testing.T) {
	mockHabits := new(MockHabitRepository)
	mockHabits.On("GetByID", mock.Anything, uint(3)).
		Return(&models.Habit{ID: 3, Name: "Read", Description: "nightly", Active: true}, nil)
	mockHabits.On("Update", mock.Anything, mock.AnythingOfType("*models.Habit")).Return(nil)

	service := NewHabitService(mockHabits)

	desc := "before bed"
	habit, err := service.UpdateHabit(context.Background(), 3, HabitUpdate{Description: &desc})
	require.NoError(t, err)
	require.Equal(t, "Read", habit.Name)
	require.Equal(t, "before bed", habit.Description)
	mockHabits.AssertExpectations(t)
}

func TestArchiveHabit(t *testing.T) {
	mockHabits := new(MockHabitRepository)
	mockHabits.On("GetByID", mock.Anything, uint(3)).
		Return(&models.Habit{ID: 3, Name: "Read", Active: true}, nil)
	mockHabits.On("Update", mock.Anything, mock.AnythingOfType("*models.Habit")).Return(nil)

	service := NewHabitService(mockHabits)

	habit, err := service.ArchiveHabit(context.Background(), 3)
	require.NoError(t, err)
	require.False(t, habit.Active)
	require.NotNil(t, habit.ArchivedAt)
	mockHabits.AssertExpectations(t)
}

func TestUnarchiveHabit(t *testing.T) {
	archived := &models.Habit{ID: 3, Name: "Read", Active: false}
	at := archived.CreatedAt
	archived.ArchivedAt = &at

	mockHabits := new(MockHabitRepository)
	mockHabits.On("GetByID", mock.Anything, uint(3)).Return(archived, nil)
	mockHabits.On("Update", mock.Anything, mock.AnythingOfType("*models.Habit")).Return(nil)

	service := NewHabitService(mockHabits)

	habit, err := service.UnarchiveHabit(context.Background(), 3)
	require.NoError(t, err)
	require.True(t, habit.Active)
	require.Nil(t, habit.ArchivedAt)
	mockHabits.AssertExpectations(t)
}

func TestDeleteHabitNotFound(t *testing.T) {
	mockHabits := new(MockHabitRepository)
	mockHabits.On("Delete", mock.Anything, uint(9)).Return(repositories.ErrNotFound)

	service := NewHabitService(mockHabits)

	err := service.DeleteHabit(context.Background(), 9)
	require.ErrorIs(t, err, repositories.ErrNotFound)
}
