package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yudduy/cma-analysis/collector-service/internal/metrics"
	"github.com/yudduy/cma-analysis/internal/tracker"
)

type fakePublisher struct {
	sent []tracker.Envelope
	err  error
}

func (f *fakePublisher) SendEvent(_ context.Context, env tracker.Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakePublisher) SendEventBatch(_ context.Context, envs []tracker.Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, envs...)
	return nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestApp(pub Publisher, maxBatch int) (*fiber.App, *metrics.Collectors) {
	prom := metrics.New()
	h := NewEventHandler(pub, prom, maxBatch)
	h.now = func() time.Time { return fixedNow }

	app := fiber.New()
	h.Register(app)
	return app, prom
}

func post(t *testing.T, app *fiber.App, path, contentType, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestHandleEvent(t *testing.T) {
	pub := &fakePublisher{}
	app, prom := newTestApp(pub, 0)

	status, body := post(t, app, "/event", "application/json",
		`{"uuid":"v1","event":"page_view","data":{"url":"https://checkmyads.org/"}}`)

	assert.Equal(t, fiber.StatusAccepted, status)
	assert.Equal(t, "queued", body["status"])
	require.Len(t, pub.sent, 1)

	env := pub.sent[0]
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "v1", env.Event.UUID)
	assert.True(t, fixedNow.Equal(env.Event.Timestamp.Time), "missing timestamp stamped with now")
	assert.True(t, fixedNow.Equal(env.ReceivedAt))
	assert.NotEmpty(t, env.IPAddress)
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.Events.WithLabelValues("queued")))
}

func TestHandleEvent_TextPlainBeacon(t *testing.T) {
	pub := &fakePublisher{}
	app, _ := newTestApp(pub, 0)

	status, _ := post(t, app, "/event", "text/plain;charset=UTF-8",
		`{"uuid":"v1","event":"session_start","timestamp":"2024-02-01T00:00:00Z"}`)
	assert.Equal(t, fiber.StatusAccepted, status)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, 2024, pub.sent[0].Event.Timestamp.Year())
	assert.Equal(t, time.February, pub.sent[0].Event.Timestamp.Month())
}

func TestHandleEvent_Invalid(t *testing.T) {
	pub := &fakePublisher{}
	app, prom := newTestApp(pub, 0)

	status, body := post(t, app, "/event", "application/json", `{"event":"page_view"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "uuid: uuid is required", body["error"])

	status, body = post(t, app, "/event", "application/json", `not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Invalid Request Body", body["error"])

	assert.Empty(t, pub.sent)
	assert.Equal(t, 2.0, testutil.ToFloat64(prom.Events.WithLabelValues("rejected")))
}

func TestHandleEvent_PublishFailure(t *testing.T) {
	app, _ := newTestApp(&fakePublisher{err: errors.New("broker down")}, 0)

	status, body := post(t, app, "/event", "application/json", `{"uuid":"v","event":"page_view"}`)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "failed to queue event", body["error"])
}

func TestHandleEventBatch(t *testing.T) {
	pub := &fakePublisher{}
	app, _ := newTestApp(pub, 3)

	status, body := post(t, app, "/events/batch", "application/json",
		`[{"uuid":"a","event":"page_view"},{"uuid":"b","event":"popup_view","data":{"popupId":4217}}]`)
	assert.Equal(t, fiber.StatusAccepted, status)
	assert.EqualValues(t, 2, body["count"])
	require.Len(t, pub.sent, 2)
	assert.NotEqual(t, pub.sent[0].EventID, pub.sent[1].EventID)
	assert.Equal(t, tracker.FlexString("4217"), pub.sent[1].Event.Data.PopupID)
}

func TestHandleEventBatch_Rejections(t *testing.T) {
	pub := &fakePublisher{}
	app, _ := newTestApp(pub, 3)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", `[]`, "At least one event is required"},
		{"too many", `[{"uuid":"a","event":"e"},{"uuid":"a","event":"e"},{"uuid":"a","event":"e"},{"uuid":"a","event":"e"}]`, "Maximum 3 events per batch"},
		{"invalid index", `[{"uuid":"a","event":"e"},{"uuid":"","event":"e"}]`, "event 1: uuid: uuid is required"},
		{"not json", `{`, "Invalid Request Body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, app, "/events/batch", "application/json", tt.body)
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Equal(t, tt.want, body["error"], fmt.Sprint(body))
		})
	}
	assert.Empty(t, pub.sent)
}
