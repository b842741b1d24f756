package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/A1-lex/habit-veritas-android-backend/internal/models"
)

// newMockDB opens gorm over a sqlmock connection so tests can assert the
// exact statements a write path issues, and that both tables are touched
// inside one transaction.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

var (
	setLockTimeout = regexp.QuoteMeta(`SET LOCAL lock_timeout`)
	insertLog      = regexp.QuoteMeta(`INSERT INTO "habit_logs"`)
	insertBucket   = regexp.QuoteMeta(`INSERT INTO "daily_agg"`)
	deleteLog      = regexp.QuoteMeta(`DELETE FROM "habit_logs"`)
)

func logColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_uuid", "habit_id", "event_type", "timestamp", "source"})
}

func TestRecordAppliesLogAndBucketInOneTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db, db)

	ts := time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC)
	event := &models.HabitLog{UserUUID: "u1", HabitID: 7, EventType: models.EventComplete, Timestamp: ts, Source: "api"}

	mock.ExpectBegin()
	mock.ExpectExec(setLockTimeout).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(insertLog).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectQuery(insertBucket).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "daily_agg" SET "completions"=completions + $1 WHERE habit_id = $2 AND day = $3`)).
		WithArgs(1, uint(7), "2024-05-10").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Record(context.Background(), event))
	require.Equal(t, uint(42), event.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRollsBackWhenBumpFails(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db, db)

	ts := time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC)
	event := &models.HabitLog{HabitID: 7, EventType: models.EventComplete, Timestamp: ts}

	mock.ExpectBegin()
	mock.ExpectExec(setLockTimeout).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(insertLog).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectQuery(insertBucket).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "daily_agg"`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	require.Error(t, repo.Record(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStoresOtherEventTypesWithoutCounting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db, db)

	ts := time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC)
	event := &models.HabitLog{HabitID: 7, EventType: "note", Timestamp: ts}

	// The bucket is still created, but neither counter moves
	mock.ExpectBegin()
	mock.ExpectExec(setLockTimeout).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(insertLog).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectQuery(insertBucket).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	require.NoError(t, repo.Record(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUndoLatestDeletesAndDecrementsAtomically(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db, db)

	cutoff := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	ts := cutoff.Add(15 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec(setLockTimeout).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "habit_logs" WHERE habit_id = \$1 AND timestamp >= \$2 ORDER BY timestamp DESC, id DESC.* FOR UPDATE`).
		WillReturnRows(logColumns().AddRow(42, "u1", 7, models.EventSkip, ts, "api"))
	mock.ExpectExec(deleteLog).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "daily_agg" SET "skips"=skips - 1 WHERE habit_id = $1 AND day = $2 AND skips > 0`)).
		WithArgs(uint(7), "2024-05-10").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.UndoLatest(context.Background(), 7, cutoff)
	require.NoError(t, err)
	require.Equal(t, uint(42), result.Event.ID)
	require.Equal(t, models.EventSkip, result.Event.EventType)
	require.False(t, result.Clamped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUndoLatestReportsClampedDecrement(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db, db)

	cutoff := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	ts := cutoff.Add(15 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec(setLockTimeout).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "habit_logs" WHERE habit_id = \$1 AND timestamp >= \$2 ORDER BY timestamp DESC, id DESC.* FOR UPDATE`).
		WillReturnRows(logColumns().AddRow(42, "u1", 7, models.EventComplete, ts, "api"))
	mock.ExpectExec(deleteLog).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The guarded decrement matches no row when the counter is already zero
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "daily_agg" SET "completions"=completions - 1 WHERE habit_id = $1 AND day = $2 AND completions > 0`)).
		WithArgs(uint(7), "2024-05-10").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	result, err := repo.UndoLatest(context.Background(), 7, cutoff)
	require.NoError(t, err)
	require.True(t, result.Clamped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUndoLatestEmptyWindowLeavesStateUntouched(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db, db)

	cutoff := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	// No delete and no decrement may follow an empty window
	mock.ExpectBegin()
	mock.ExpectExec(setLockTimeout).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "habit_logs" WHERE habit_id = \$1 AND timestamp >= \$2`).
		WillReturnRows(logColumns())
	mock.ExpectRollback()

	result, err := repo.UndoLatest(context.Background(), 7, cutoff)
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, result)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestStatusBreaksTimestampTiesByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db, db)

	day := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	start, _ := models.DayRange(day)
	ts := start.Add(9 * time.Hour)

	mock.ExpectQuery(`SELECT \* FROM "habit_logs" WHERE habit_id = \$1 AND timestamp >= \$2 AND timestamp < \$3 ORDER BY timestamp DESC, id DESC`).
		WillReturnRows(logColumns().AddRow(43, "u1", 7, models.EventSkip, ts, "api"))

	event, err := repo.LatestStatus(context.Background(), 7, day)
	require.NoError(t, err)
	require.Equal(t, uint(43), event.ID)
	require.Equal(t, models.EventSkip, event.EventType)
	require.NoError(t, mock.ExpectationsWereMet())
}
