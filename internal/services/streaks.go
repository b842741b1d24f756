package services

import (
	"time"

	"github.com/A1-lex/habit-veritas-android-backend/internal/models"
)

// Streaks operate purely on the set of days with completions > 0. Skips
// neither break nor extend a streak: a day with only skips logged is
// treated the same as a day with no log at all.

// CurrentStreak counts consecutive completed days ending at today, walking
// backward one calendar day at a time until the first absent day. A day
// set without today yields 0.
func CurrentStreak(days map[string]bool, today time.Time) int {
	streak := 0
	for cur := today.UTC(); days[models.DayKey(cur)]; cur = cur.AddDate(0, 0, -1) {
		streak++
	}
	return streak
}

// LongestStreak returns the length of the longest run of consecutive
// completed days. Each inner walk only advances while consecutive days are
// present, so total work is bounded by the sum of run lengths.
func LongestStreak(days []string) int {
	if len(days) == 0 {
		return 0
	}

	set := make(map[string]bool, len(days))
	for _, d := range days {
		set[d] = true
	}

	longest := 0
	for _, d := range days {
		start, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		length := 1
		for next := start.AddDate(0, 0, 1); set[models.DayKey(next)]; next = next.AddDate(0, 0, 1) {
			length++
		}
		if length > longest {
			longest = length
		}
	}
	return longest
}

// daySet builds the membership set CurrentStreak consumes
func daySet(days []string) map[string]bool {
	set := make(map[string]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	return set
}
