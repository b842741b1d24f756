package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/A1-lex/habit-veritas-android-backend/internal/metrics"
	"github.com/A1-lex/habit-veritas-android-backend/internal/models"
	"github.com/A1-lex/habit-veritas-android-backend/internal/repositories"
	"github.com/A1-lex/habit-veritas-android-backend/internal/tracing"
)

func newTestReconciler(eventRepo repositories.EventRepository, aggRepo repositories.AggRepository, repair bool) (*Reconciler, *metrics.Metrics) {
	collector := metrics.NewMetrics()
	reconciler := &Reconciler{
		eventRepo: eventRepo,
		aggRepo:   aggRepo,
		metrics:   collector,
		tracer:    tracing.Disabled(),
		repair:    repair,
	}
	return reconciler, collector
}

func TestReconcileClean(t *testing.T) {
	mockEvents := new(MockEventRepository)
	mockEvents.On("RecountFromLog", mock.Anything).Return([]repositories.LogDayCounts{
		{HabitID: 1, Day: "2024-01-05", Completions: 2, Skips: 1},
	}, nil)

	mockAggs := new(MockAggRepository)
	mockAggs.On("All", mock.Anything).Return([]models.DailyAgg{
		{HabitID: 1, Day: "2024-01-05", Completions: 2, Skips: 1},
		// A bucket decremented back to zero with no remaining log rows is
		// consistent, not a violation
		{HabitID: 1, Day: "2024-01-04", Completions: 0, Skips: 0},
	}, nil)

	reconciler, collector := newTestReconciler(mockEvents, mockAggs, false)

	violations, err := reconciler.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, violations)
	require.Zero(t, collector.GetCounters()[metrics.ConsistencyViolations])
	mockAggs.AssertNotCalled(t, "Replace", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileDetectsDrift(t *testing.T) {
	mockEvents := new(MockEventRepository)
	mockEvents.On("RecountFromLog", mock.Anything).Return([]repositories.LogDayCounts{
		{HabitID: 1, Day: "2024-01-05", Completions: 3, Skips: 0},
		{HabitID: 2, Day: "2024-01-05", Completions: 1, Skips: 0},
	}, nil)

	mockAggs := new(MockAggRepository)
	mockAggs.On("All", mock.Anything).Return([]models.DailyAgg{
		// Stored count lags the log by one
		{HabitID: 1, Day: "2024-01-05", Completions: 2, Skips: 0},
		// Habit 2's bucket is missing entirely
	}, nil)

	reconciler, collector := newTestReconciler(mockEvents, mockAggs, false)

	violations, err := reconciler.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, violations)
	require.Equal(t, int64(2), collector.GetCounters()[metrics.ConsistencyViolations])
}

func TestReconcileRepairs(t *testing.T) {
	mockEvents := new(MockEventRepository)
	mockEvents.On("RecountFromLog", mock.Anything).Return([]repositories.LogDayCounts{
		{HabitID: 1, Day: "2024-01-05", Completions: 3, Skips: 2},
	}, nil)

	mockAggs := new(MockAggRepository)
	mockAggs.On("All", mock.Anything).Return([]models.DailyAgg{
		{HabitID: 1, Day: "2024-01-05", Completions: 1, Skips: 2},
	}, nil)
	mockAggs.On("Replace", mock.Anything, uint(1), "2024-01-05", 3, 2).Return(nil)

	reconciler, _ := newTestReconciler(mockEvents, mockAggs, true)

	violations, err := reconciler.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, violations)
	mockAggs.AssertExpectations(t)
}
