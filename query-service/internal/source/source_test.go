package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yudduy/cma-analysis/internal/botscore"
	"github.com/yudduy/cma-analysis/internal/tracker"
	"github.com/yudduy/cma-analysis/query-service/internal/models"
)

const feedBody = `{"timestamp":"2024-03-01T10:00:00Z","uuid":"u1","event":"session_start","data":{"group":1,"browserInfo":{"userAgent":"Mozilla/5.0 (Macintosh)","platform":"MacIntel"}}}
not json
{"timestamp":"2024-03-01T10:05:00Z","uuid":"u2","event":"session_start","data":{"group":2,"browserInfo":{"userAgent":"Googlebot/2.1","platform":"<b>Linux</b>"}}}
{"timestamp":"2024-03-01T11:00:00Z","uuid":"u1","event":"page_view","data":{"url":"https://checkmyads.org/"}}
`

func newFeedServer(t *testing.T, body string, status int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFeedSource_Load(t *testing.T) {
	srv, hits := newFeedServer(t, feedBody, http.StatusOK)
	src := NewFeedSource(srv.URL, time.Minute)

	snap, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Events, 3)
	assert.Equal(t, tracker.Revision([]byte(feedBody)), snap.Revision)

	assert.Equal(t, "1", *snap.Events[0].Group)
	assert.Equal(t, botscore.ScoreHuman, snap.Events[0].RiskScore)
	assert.Equal(t, botscore.ScoreBot, snap.Events[1].RiskScore)
	assert.Equal(t, "Linux", *snap.Events[1].Platform)
	assert.Equal(t, botscore.ScoreUnknown, snap.Events[2].RiskScore)
	assert.Equal(t, tracker.SourceFeed, snap.Events[2].Source)

	_, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits), "memoised within the ttl")
}

func TestFeedSource_Expiry(t *testing.T) {
	srv, hits := newFeedServer(t, feedBody, http.StatusOK)
	src := NewFeedSource(srv.URL, time.Minute)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	_, err := src.Load(context.Background())
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestFeedSource_HTTPError(t *testing.T) {
	srv, _ := newFeedServer(t, "", http.StatusNotFound)
	src := NewFeedSource(srv.URL, time.Minute)

	_, err := src.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, "failed to fetch data from "+srv.URL+". HTTP status code: 404", err.Error())
}

func TestFeedSource_Activity(t *testing.T) {
	srv, _ := newFeedServer(t, feedBody, http.StatusOK)
	src := NewFeedSource(srv.URL, time.Minute)

	counts, err := src.Activity(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "session_start", counts[0].Event)
	assert.Equal(t, int64(2), counts[0].Total)
	assert.Equal(t, 11, counts[1].Hour.Hour())
}

func TestFeedSource_DropsEventsTheWorkerRejects(t *testing.T) {
	body := strings.Join([]string{
		`{"timestamp":"2024-03-01T10:00:00Z","uuid":"u1","event":"session_start","data":{"group":1}}`,
		`{"timestamp":"2024-03-01T10:01:00Z","event":"group_v2"}`,
		`{"timestamp":"2024-03-01T10:02:00Z","uuid":"u1","event":"group_v3` + strings.Repeat("x", 128) + `"}`,
		`{"timestamp":"2024-03-01T10:03:00Z","uuid":"u2","event":"session_start","data":{"group":2}}`,
	}, "\n")
	srv, _ := newFeedServer(t, body, http.StatusOK)
	src := NewFeedSource(srv.URL, time.Minute)

	snap, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Events, 2)
	assert.Equal(t, "u1", snap.Events[0].UUID)
	assert.Equal(t, "u2", snap.Events[1].UUID)
	for _, e := range snap.Events {
		assert.NotContains(t, e.Name, "group_v", "rejected markers never reach version assignment")
	}
}

type fakeRepo struct {
	seq        int64
	events     []tracker.Event
	stats      []models.HourlyStat
	err        error
	listCalls  int
	statsSince time.Time
}

func (f *fakeRepo) ListEvents(context.Context) ([]tracker.Event, error) {
	f.listCalls++
	return f.events, f.err
}

func (f *fakeRepo) LatestSeq(context.Context) (int64, error) {
	return f.seq, f.err
}

func (f *fakeRepo) HourlyStats(_ context.Context, since time.Time) ([]models.HourlyStat, error) {
	f.statsSince = since
	return f.stats, f.err
}

func TestPostgresSource_CachesUntilSeqMoves(t *testing.T) {
	repo := &fakeRepo{seq: 2, events: []tracker.Event{{Seq: 1, UUID: "u1"}, {Seq: 2, UUID: "u2"}}}
	src := NewPostgresSource(repo)

	snap, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "seq-2", snap.Revision)
	assert.Len(t, snap.Events, 2)

	_, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)

	repo.seq = 3
	repo.events = append(repo.events, tracker.Event{Seq: 3, UUID: "u3"})
	snap, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
	assert.Equal(t, "seq-3", snap.Revision)
	assert.Len(t, snap.Events, 3)
}

func TestPostgresSource_Error(t *testing.T) {
	src := NewPostgresSource(&fakeRepo{err: errors.New("db down")})

	_, err := src.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load revision")
}

func TestPostgresSource_Activity(t *testing.T) {
	h := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &fakeRepo{stats: []models.HourlyStat{
		{Event: "session_start", HourBucket: h.Add(time.Hour), Total: 3},
		{Event: "page_view", HourBucket: h, Total: 7},
	}}
	src := NewPostgresSource(repo)

	counts, err := src.Activity(context.Background(), h)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "page_view", counts[0].Event)
	assert.Equal(t, int64(7), counts[0].Total)
	assert.True(t, h.Equal(repo.statsSince))
}
