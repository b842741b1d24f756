package services

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/A1-lex/habit-veritas-android-backend/internal/cache"
	"github.com/A1-lex/habit-veritas-android-backend/internal/metrics"
	"github.com/A1-lex/habit-veritas-android-backend/internal/models"
	"github.com/A1-lex/habit-veritas-android-backend/internal/repositories"
	"github.com/A1-lex/habit-veritas-android-backend/internal/tracing"
)

// Overview holds habit counts and completion totals over fixed windows
type Overview struct {
	TotalHabits       int64   `json:"total_habits"`
	ArchivedHabits    int64   `json:"archived_habits"`
	CompletionsToday  int64   `json:"completions_today"`
	Completions7d     int64   `json:"completions_7d"`
	Completions30d    int64   `json:"completions_30d"`
	CompletionRate30d float64 `json:"completion_rate_30d"`
}

// StreakStats aggregates per-habit streaks over habits with at least one
// completed day. Habits that never completed are excluded, not counted
// as zero.
type StreakStats struct {
	AvgCurrentStreak float64 `json:"avg_current_streak"`
	AvgLongestStreak int     `json:"avg_longest_streak"`
	MaxCurrentStreak int     `json:"max_current_streak"`
}

// ReportMetadata describes when and in which timezone a report was built
type ReportMetadata struct {
	GeneratedAt string `json:"generated_at"`
	Timezone    string `json:"timezone"`
}

// Report is the full analytics summary
type Report struct {
	Overview         Overview                        `json:"overview"`
	Streaks          StreakStats                     `json:"streaks"`
	DailyBreakdown7d []repositories.DayCount         `json:"daily_breakdown_7d"`
	TopHabits30d     []repositories.HabitCompletions `json:"top_habits_30d"`
	Metadata         ReportMetadata                  `json:"metadata"`
}

// AnalyticsService builds analytics reports. It only reads: completion
// totals come from the raw log, streaks from the daily rollup.
type AnalyticsService struct {
	eventRepo repositories.EventRepository
	aggRepo   repositories.AggRepository
	habitRepo repositories.HabitRepository
	cache     *cache.RedisCache
	metrics   *metrics.Metrics
	tracer    tracing.Tracer
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(
	eventRepo repositories.EventRepository,
	aggRepo repositories.AggRepository,
	habitRepo repositories.HabitRepository,
	redisCache *cache.RedisCache,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *AnalyticsService {
	return &AnalyticsService{
		eventRepo: eventRepo,
		aggRepo:   aggRepo,
		habitRepo: habitRepo,
		cache:     redisCache,
		metrics:   metricsCollector,
		tracer:    tracer,
	}
}

// Summarize composes the analytics report for the given reference day.
// Reports are cached briefly; writes invalidate the cache, so a report is
// at most one TTL behind the log.
func (s *AnalyticsService) Summarize(ctx context.Context, today time.Time) (*Report, error) {
	txn := s.tracer.StartTransaction("analytics-summary")
	defer s.tracer.EndTransaction(txn)

	cacheKey := cache.ReportCacheKey(models.DayKey(today))
	var cached Report
	if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
		s.metrics.IncrementCounter(metrics.ReportCacheHits)
		return &cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Msg("Analytics cache read failed")
	}
	s.metrics.IncrementCounter(metrics.ReportCacheMisses)

	dayStart, dayEnd := models.DayRange(today)
	from7 := dayStart.AddDate(0, 0, -6)
	from30 := dayStart.AddDate(0, 0, -29)

	overview, err := s.buildOverview(ctx, dayStart, dayEnd, from7, from30)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	breakdown, err := s.eventRepo.DailyCompletions(ctx, from7, dayEnd)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	topHabits, err := s.eventRepo.TopHabitsByCompletions(ctx, from30, dayEnd, 5)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	streaks, err := s.buildStreaks(ctx, today)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	report := &Report{
		Overview:         *overview,
		Streaks:          *streaks,
		DailyBreakdown7d: breakdown,
		TopHabits30d:     topHabits,
		Metadata: ReportMetadata{
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			Timezone:    "UTC",
		},
	}

	if err := s.cache.Set(ctx, cacheKey, report, cache.ReportTTL); err != nil {
		log.Warn().Err(err).Msg("Analytics cache write failed")
	}

	return report, nil
}

func (s *AnalyticsService) buildOverview(ctx context.Context, dayStart, dayEnd, from7, from30 time.Time) (*Overview, error) {
	totalHabits, err := s.habitRepo.CountByActive(ctx, true)
	if err != nil {
		return nil, err
	}
	archivedHabits, err := s.habitRepo.CountByActive(ctx, false)
	if err != nil {
		return nil, err
	}

	completionsToday, err := s.eventRepo.CountCompletions(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	completions7d, err := s.eventRepo.CountCompletions(ctx, from7, dayEnd)
	if err != nil {
		return nil, err
	}
	completions30d, err := s.eventRepo.CountCompletions(ctx, from30, dayEnd)
	if err != nil {
		return nil, err
	}

	completes, skips, err := s.eventRepo.CompleteSkipCounts(ctx, from30, dayEnd)
	if err != nil {
		return nil, err
	}

	return &Overview{
		TotalHabits:       totalHabits,
		ArchivedHabits:    archivedHabits,
		CompletionsToday:  completionsToday,
		Completions7d:     completions7d,
		Completions30d:    completions30d,
		CompletionRate30d: CompletionRate(completes, skips),
	}, nil
}

// HabitStreaks reports a single habit's current and longest streak. The
// habit must exist; its streaks come from the rollup's completed days.
func (s *AnalyticsService) HabitStreaks(ctx context.Context, habitID uint, today time.Time) (current, longest int, err error) {
	if _, err := s.habitRepo.GetByID(ctx, habitID); err != nil {
		return 0, 0, err
	}

	buckets, err := s.aggRepo.BucketsForHabit(ctx, habitID)
	if err != nil {
		return 0, 0, err
	}

	days := make([]string, 0, len(buckets))
	for _, b := range buckets {
		if b.Completions > 0 {
			days = append(days, b.Day)
		}
	}

	return CurrentStreak(daySet(days), today), LongestStreak(days), nil
}

func (s *AnalyticsService) buildStreaks(ctx context.Context, today time.Time) (*StreakStats, error) {
	daysByHabit, err := s.aggRepo.DaysWithCompletions(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeStreakStats(daysByHabit, today), nil
}

// ComputeStreakStats aggregates current and longest streaks across habits
// that have at least one day with completions.
func ComputeStreakStats(daysByHabit map[uint][]string, today time.Time) *StreakStats {
	stats := &StreakStats{}
	if len(daysByHabit) == 0 {
		return stats
	}

	var sumCurrent, sumLongest int
	for _, days := range daysByHabit {
		current := CurrentStreak(daySet(days), today)
		sumCurrent += current
		sumLongest += LongestStreak(days)
		if current > stats.MaxCurrentStreak {
			stats.MaxCurrentStreak = current
		}
	}

	n := len(daysByHabit)
	stats.AvgCurrentStreak = round1(float64(sumCurrent) / float64(n))
	stats.AvgLongestStreak = sumLongest / n // truncated, not rounded
	return stats
}

// CompletionRate is completes/(completes+skips) as a percentage rounded to
// one decimal, 0 when there are no events.
func CompletionRate(completes, skips int64) float64 {
	total := completes + skips
	if total == 0 {
		return 0
	}
	return round1(float64(completes) / float64(total) * 100)
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
