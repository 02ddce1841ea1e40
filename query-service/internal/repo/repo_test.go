package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*EventRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return &EventRepo{db: sqlx.NewDb(mockDB, "postgres")}, mock
}

var eventColumns = []string{
	"seq", "fingerprint", "occurred_at", "uuid", "event", "grp", "url", "session_count",
	"referrer", "popup_id", "user_agent", "language", "platform",
	"screen_width", "screen_height", "window_width", "window_height",
	"timezone", "cookies_enabled", "vendor", "ip_address", "risk_score", "source",
}

func TestListEvents(t *testing.T) {
	r, mock := newMockRepo(t)
	ts := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT seq, fingerprint, occurred_at.*FROM tracker_events\s+ORDER BY seq`).
		WillReturnRows(sqlmock.NewRows(eventColumns).
			AddRow(int64(1), "fp-1", ts, "u1", "session_start", "2", nil, int64(1),
				nil, nil, "Mozilla/5.0", "en-US", "MacIntel",
				1440.0, 900.0, 1280.0, 800.0,
				"America/New_York", true, "Apple Computer, Inc.", "192.0.2.1", int64(0), "feed").
			AddRow(int64(2), "fp-2", nil, "u1", "page_view", nil, "https://checkmyads.org/", nil,
				nil, nil, nil, nil, nil,
				nil, nil, nil, nil,
				nil, nil, nil, "", int64(95), "collector"))

	events, err := r.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, int64(1), first.Seq)
	require.NotNil(t, first.Timestamp)
	assert.True(t, ts.Equal(*first.Timestamp))
	assert.Equal(t, "2", *first.Group)
	assert.Nil(t, first.URL)
	assert.Equal(t, 1440.0, *first.ScreenWidth)
	assert.True(t, *first.CookiesEnabled)

	second := events[1]
	assert.Nil(t, second.Timestamp)
	assert.Nil(t, second.Group)
	assert.Equal(t, "https://checkmyads.org/", *second.URL)
	assert.Equal(t, 95, second.RiskScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEvents_Error(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT seq").WillReturnError(errors.New("connection reset"))

	_, err := r.ListEvents(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "select events")
}

func TestLatestSeq(t *testing.T) {
	r, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq\), 0\) FROM tracker_events`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(42)))

	seq, err := r.LatestSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
}

func TestHourlyStats(t *testing.T) {
	r, mock := newMockRepo(t)
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	hour := since.Add(3 * time.Hour)

	mock.ExpectQuery(`SELECT event, hour_bucket, total\s+FROM event_hourly_stats`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"event", "hour_bucket", "total"}).
			AddRow("page_view", hour, int64(12)).
			AddRow("session_start", hour, int64(4)))

	stats, err := r.HourlyStats(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "page_view", stats[0].Event)
	assert.Equal(t, int64(12), stats[0].Total)
	assert.True(t, hour.Equal(stats[1].HourBucket))
	assert.NoError(t, mock.ExpectationsWereMet())
}
