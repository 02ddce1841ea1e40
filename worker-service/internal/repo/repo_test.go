package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yudduy/cma-analysis/internal/tracker"
	"github.com/yudduy/cma-analysis/worker-service/internal/models"
)

func newMockRepo(t *testing.T) (*EventRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return &EventRepo{db: sqlx.NewDb(mockDB, "postgres")}, mock
}

func sampleEvents() []*tracker.Event {
	ts := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)
	group := "1"
	return []*tracker.Event{
		{Fingerprint: "fp-1", Timestamp: &ts, UUID: "u1", Name: "session_start", Group: &group, Source: tracker.SourceFeed},
		{Fingerprint: "fp-2", Timestamp: &ts, UUID: "u1", Name: "page_view", Source: tracker.SourceFeed},
	}
}

func TestInsertEventsBatch(t *testing.T) {
	r, mock := newMockRepo(t)

	t1 := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)
	t2 := time.Date(2024, 3, 1, 10, 40, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE tracker_events_staging").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(`COPY "tracker_events_staging"`)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO tracker_events").WillReturnRows(
		sqlmock.NewRows([]string{"event", "occurred_at"}).
			AddRow("session_start", t1).
			AddRow("page_view", t2).
			AddRow("page_view", nil),
	)
	mock.ExpectExec("INSERT INTO event_hourly_stats").
		WithArgs("page_view", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO event_hourly_stats").
		WithArgs("session_start", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	events := sampleEvents()
	n, err := r.InsertEventsBatch(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventsBatch_Empty(t *testing.T) {
	r, mock := newMockRepo(t)

	n, err := r.InsertEventsBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventsBatch_CopyFailureRollsBack(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE tracker_events_staging").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(`COPY "tracker_events_staging"`)
	prep.ExpectExec().WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := r.InsertEventsBatch(context.Background(), sampleEvents())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec copy")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHourlyStats(t *testing.T) {
	at := func(h, m int) *time.Time {
		ts := time.Date(2024, 3, 1, h, m, 0, 0, time.UTC)
		return &ts
	}
	rows := []insertedRow{
		{Event: "page_view", OccurredAt: at(11, 1)},
		{Event: "page_view", OccurredAt: at(10, 59)},
		{Event: "session_start", OccurredAt: at(10, 2)},
		{Event: "page_view", OccurredAt: at(10, 3)},
		{Event: "page_view"},
	}

	stats := hourlyStats(rows)
	require.Len(t, stats, 3)

	ten := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "page_view", stats[0].Event)
	assert.True(t, ten.Equal(stats[0].HourBucket))
	assert.EqualValues(t, 2, stats[0].Total)
	assert.Equal(t, "session_start", stats[1].Event)
	assert.EqualValues(t, 1, stats[1].Total)
	assert.True(t, ten.Add(time.Hour).Equal(stats[2].HourBucket))
}

func TestRecordSnapshot(t *testing.T) {
	r, mock := newMockRepo(t)

	snap := &models.FeedSnapshot{
		ID:        uuid.New(),
		SourceURL: "https://example.org/tracker-data.txt",
		FetchedAt: time.Now().UTC(),
		LineCount: 10,
		Malformed: 1,
		NewEvents: 5,
	}

	mock.ExpectExec("INSERT INTO feed_snapshots").
		WithArgs(sqlmock.AnyArg(), snap.SourceURL, sqlmock.AnyArg(), 10, 1, 5, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.RecordSnapshot(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}
