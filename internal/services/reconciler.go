package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/A1-lex/habit-veritas-android-backend/config"
	"github.com/A1-lex/habit-veritas-android-backend/internal/metrics"
	"github.com/A1-lex/habit-veritas-android-backend/internal/repositories"
	"github.com/A1-lex/habit-veritas-android-backend/internal/tracing"
)

// Reconciler recomputes per-habit-per-day counters from the raw event log
// and compares them against daily_agg. Every write applies both sides in
// one transaction, so a mismatch here means a bug or manual tampering, not
// normal operation.
type Reconciler struct {
	eventRepo repositories.EventRepository
	aggRepo   repositories.AggRepository
	metrics   *metrics.Metrics
	tracer    tracing.Tracer
	repair    bool
}

// NewReconciler creates a new reconciler
func NewReconciler(
	eventRepo repositories.EventRepository,
	aggRepo repositories.AggRepository,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
	cfg config.ReconcileConfig,
) *Reconciler {
	return &Reconciler{
		eventRepo: eventRepo,
		aggRepo:   aggRepo,
		metrics:   metricsCollector,
		tracer:    tracer,
		repair:    cfg.Repair,
	}
}

type bucketKey struct {
	habitID uint
	day     string
}

// Run performs one reconciliation pass and returns the number of
// violations found. When repair is enabled each divergent bucket is
// force-set to the counts recomputed from the log.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	txn := r.tracer.StartTransaction("reconcile")
	defer r.tracer.EndTransaction(txn)

	expected, err := r.eventRepo.RecountFromLog(ctx)
	if err != nil {
		r.tracer.RecordError(txn, err)
		return 0, err
	}

	stored, err := r.aggRepo.All(ctx)
	if err != nil {
		r.tracer.RecordError(txn, err)
		return 0, err
	}

	expectedByKey := make(map[bucketKey]repositories.LogDayCounts, len(expected))
	for _, e := range expected {
		expectedByKey[bucketKey{e.HabitID, e.Day}] = e
	}

	violations := 0
	seen := make(map[bucketKey]bool, len(stored))
	for _, bucket := range stored {
		key := bucketKey{bucket.HabitID, bucket.Day}
		seen[key] = true

		want := expectedByKey[key] // zero counts when the log has no rows
		if bucket.Completions == want.Completions && bucket.Skips == want.Skips {
			continue
		}

		violations++
		log.Error().
			Uint("habit_id", bucket.HabitID).
			Str("day", bucket.Day).
			Int("stored_completions", bucket.Completions).
			Int("stored_skips", bucket.Skips).
			Int("expected_completions", want.Completions).
			Int("expected_skips", want.Skips).
			Msg("Aggregate diverges from event log")

		if r.repair {
			if err := r.aggRepo.Replace(ctx, bucket.HabitID, bucket.Day, want.Completions, want.Skips); err != nil {
				r.tracer.RecordError(txn, err)
				return violations, err
			}
		}
	}

	// Log rows without a bucket at all. The write path always creates the
	// bucket before bumping it, so this only happens after a manual delete.
	for _, want := range expected {
		key := bucketKey{want.HabitID, want.Day}
		if seen[key] {
			continue
		}

		violations++
		log.Error().
			Uint("habit_id", want.HabitID).
			Str("day", want.Day).
			Int("expected_completions", want.Completions).
			Int("expected_skips", want.Skips).
			Msg("Event log day has no aggregate bucket")

		if r.repair {
			if err := r.aggRepo.Replace(ctx, want.HabitID, want.Day, want.Completions, want.Skips); err != nil {
				r.tracer.RecordError(txn, err)
				return violations, err
			}
		}
	}

	for i := 0; i < violations; i++ {
		r.metrics.IncrementCounter(metrics.ConsistencyViolations)
	}

	if violations > 0 {
		log.Warn().Int("violations", violations).Bool("repaired", r.repair).Msg("Reconciliation found divergence")
	} else {
		log.Debug().Int("buckets", len(stored)).Msg("Reconciliation clean")
	}
	return violations, nil
}
