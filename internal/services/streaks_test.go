package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCurrentStreakEndsAtToday(t *testing.T) {
	days := daySet([]string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-05"})

	// Only the 5th counts: the 4th is missing, so the run through the 3rd
	// is history, not the current streak
	require.Equal(t, 1, CurrentStreak(days, day("2024-01-05")))

	// Seen from the 3rd, the three-day run is current
	require.Equal(t, 3, CurrentStreak(days, day("2024-01-03")))
}

func TestCurrentStreakZeroWithoutToday(t *testing.T) {
	days := daySet([]string{"2024-01-01", "2024-01-02"})
	require.Equal(t, 0, CurrentStreak(days, day("2024-01-04")))
	require.Equal(t, 0, CurrentStreak(map[string]bool{}, day("2024-01-04")))
}

func TestLongestStreak(t *testing.T) {
	require.Equal(t, 3, LongestStreak([]string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-05"}))
	require.Equal(t, 1, LongestStreak([]string{"2024-01-01", "2024-01-03", "2024-01-05"}))
	require.Equal(t, 0, LongestStreak(nil))
}

func TestLongestStreakAcrossMonthBoundary(t *testing.T) {
	require.Equal(t, 4, LongestStreak([]string{"2024-01-30", "2024-01-31", "2024-02-01", "2024-02-02"}))
}

func TestComputeStreakStats(t *testing.T) {
	today := day("2024-01-05")
	daysByHabit := map[uint][]string{
		1: {"2024-01-03", "2024-01-04", "2024-01-05"}, // current 3, longest 3
		2: {"2024-01-01", "2024-01-02"},               // current 0, longest 2
	}

	stats := ComputeStreakStats(daysByHabit, today)
	require.Equal(t, 1.5, stats.AvgCurrentStreak)
	require.Equal(t, 2, stats.AvgLongestStreak) // (3+2)/2 truncated
	require.Equal(t, 3, stats.MaxCurrentStreak)
}

func TestComputeStreakStatsEmpty(t *testing.T) {
	stats := ComputeStreakStats(nil, day("2024-01-05"))
	require.Equal(t, 0.0, stats.AvgCurrentStreak)
	require.Equal(t, 0, stats.AvgLongestStreak)
	require.Equal(t, 0, stats.MaxCurrentStreak)
}

func TestCompletionRate(t *testing.T) {
	require.Equal(t, 70.0, CompletionRate(7, 3))
	require.Equal(t, 0.0, CompletionRate(0, 0))
	require.Equal(t, 100.0, CompletionRate(5, 0))
	// 1/3 rounds to one decimal
	require.Equal(t, 33.3, CompletionRate(1, 2))
}
