package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDayKeyUsesUTC(t *testing.T) {
	// 23:30 in UTC-3 is already the next day in UTC
	loc := time.FixedZone("UTC-3", -3*60*60)
	ts := time.Date(2024, 1, 4, 23, 30, 0, 0, loc)

	require.Equal(t, "2024-01-05", DayKey(ts))
}

func TestDayRange(t *testing.T) {
	ts := time.Date(2024, 1, 5, 13, 45, 12, 0, time.UTC)

	start, end := DayRange(ts)
	require.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), end)

	// Midnight belongs to the day it starts
	startOfDay, _ := DayRange(start)
	require.Equal(t, start, startOfDay)

	// The range is half-open: the end bound is the next day's start
	nextStart, _ := DayRange(end)
	require.Equal(t, end, nextStart)
}

func TestDayRangeMatchesDayKey(t *testing.T) {
	ts := time.Date(2024, 2, 29, 18, 0, 0, 0, time.UTC)
	start, end := DayRange(ts)

	require.Equal(t, DayKey(ts), DayKey(start))
	require.NotEqual(t, DayKey(ts), DayKey(end))
}
