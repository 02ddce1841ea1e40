// Package tracker holds the tracker event model shared by the collector,
// worker and query services: the JSON wire shape posted by the website
// snippet, the flattened row stored in Postgres, and the helpers that turn
// one into the other.
package tracker

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type EventName = string

const (
	EventSessionStart     EventName = "session_start"
	EventPageView         EventName = "page_view"
	EventPopupView        EventName = "popup_view"
	EventReferral         EventName = "referral"
	EventNewsletterSignup EventName = "newsletter_signup"
	EventDonation         EventName = "donation"
)

type Source = string

const (
	SourceFeed      Source = "feed"
	SourceCollector Source = "collector"
)

// FlexString decodes a JSON string or number. The tracker snippet has sent
// both for group and popupId over time.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = FlexString(strconv.FormatFloat(n, 'f', -1, 64))
	return nil
}

// Timestamp decodes ISO-8601 strings or epoch numbers. Anything it cannot
// read leaves the value zero instead of failing the whole line.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	t.Time = time.Time{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		t.Time = ParseTime(s)
		return nil
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return nil
	}
	t.Time = epochToTime(n)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ParseTime parses a tracker timestamp string, returning the zero time when
// no known layout matches.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return epochToTime(n)
	}
	return time.Time{}
}

// epoch values above 1e11 are milliseconds (Date.now()), smaller ones seconds
func epochToTime(n float64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > 1e11 {
		return time.UnixMilli(int64(n)).UTC()
	}
	sec := int64(n)
	nsec := int64((n - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// RawEvent is one tracker line as posted by the website snippet.
type RawEvent struct {
	Timestamp Timestamp `json:"timestamp"`
	UUID      string    `json:"uuid"`
	Event     string    `json:"event"`
	Data      *RawData  `json:"data,omitempty"`
}

type RawData struct {
	Group        FlexString      `json:"group,omitempty"`
	URL          string          `json:"url,omitempty"`
	SessionCount *float64        `json:"sessionCount,omitempty"`
	Referrer     string          `json:"referrer,omitempty"`
	PopupID      FlexString      `json:"popupId,omitempty"`
	BrowserInfo  *RawBrowserInfo `json:"browserInfo,omitempty"`
}

type RawBrowserInfo struct {
	UserAgent      string   `json:"userAgent,omitempty"`
	Language       string   `json:"language,omitempty"`
	Platform       string   `json:"platform,omitempty"`
	ScreenWidth    *float64 `json:"screenWidth,omitempty"`
	ScreenHeight   *float64 `json:"screenHeight,omitempty"`
	WindowWidth    *float64 `json:"windowWidth,omitempty"`
	WindowHeight   *float64 `json:"windowHeight,omitempty"`
	Timezone       string   `json:"timezone,omitempty"`
	CookiesEnabled *bool    `json:"cookiesEnabled,omitempty"`
	Vendor         string   `json:"vendor,omitempty"`
}

// Envelope is the Kafka message body written by the collector.
type Envelope struct {
	EventID    string    `json:"event_id"`
	Event      RawEvent  `json:"event"`
	IPAddress  string    `json:"ip_address,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Event is the flattened tracker row. Nil pointers are missing values.
type Event struct {
	Seq         int64  `db:"seq" json:"seq"`
	Fingerprint string `db:"fingerprint" json:"fingerprint"`

	Timestamp    *time.Time `db:"occurred_at" json:"timestamp,omitempty"`
	UUID         string     `db:"uuid" json:"uuid"`
	Name         string     `db:"event" json:"event"`
	Group        *string    `db:"grp" json:"group,omitempty"`
	URL          *string    `db:"url" json:"url,omitempty"`
	SessionCount *int64     `db:"session_count" json:"sessionCount,omitempty"`
	Referrer     *string    `db:"referrer" json:"referrer,omitempty"`
	PopupID      *string    `db:"popup_id" json:"popupId,omitempty"`

	UserAgent      *string  `db:"user_agent" json:"userAgent,omitempty"`
	Language       *string  `db:"language" json:"language,omitempty"`
	Platform       *string  `db:"platform" json:"platform,omitempty"`
	ScreenWidth    *float64 `db:"screen_width" json:"screenWidth,omitempty"`
	ScreenHeight   *float64 `db:"screen_height" json:"screenHeight,omitempty"`
	WindowWidth    *float64 `db:"window_width" json:"windowWidth,omitempty"`
	WindowHeight   *float64 `db:"window_height" json:"windowHeight,omitempty"`
	Timezone       *string  `db:"timezone" json:"timezone,omitempty"`
	CookiesEnabled *bool    `db:"cookies_enabled" json:"cookiesEnabled,omitempty"`
	Vendor         *string  `db:"vendor" json:"vendor,omitempty"`

	IPAddress string `db:"ip_address" json:"-"`
	RiskScore int    `db:"risk_score" json:"riskScore"`
	Source    string `db:"source" json:"source"`
}

// Flatten turns a wire event into a row, dropping empty strings.
func Flatten(raw RawEvent) Event {
	e := Event{
		UUID: strings.TrimSpace(raw.UUID),
		Name: strings.TrimSpace(raw.Event),
	}
	if !raw.Timestamp.IsZero() {
		ts := raw.Timestamp.UTC()
		e.Timestamp = &ts
	}

	d := raw.Data
	if d == nil {
		return e
	}
	e.Group = optString(string(d.Group))
	e.URL = optString(d.URL)
	e.Referrer = optString(d.Referrer)
	e.PopupID = optString(string(d.PopupID))
	if d.SessionCount != nil {
		n := int64(*d.SessionCount)
		e.SessionCount = &n
	}

	b := d.BrowserInfo
	if b == nil {
		return e
	}
	e.UserAgent = optString(b.UserAgent)
	e.Language = optString(b.Language)
	e.Platform = optString(b.Platform)
	e.ScreenWidth = b.ScreenWidth
	e.ScreenHeight = b.ScreenHeight
	e.WindowWidth = b.WindowWidth
	e.WindowHeight = b.WindowHeight
	e.Timezone = optString(b.Timezone)
	e.CookiesEnabled = b.CookiesEnabled
	e.Vendor = optString(b.Vendor)
	return e
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Str dereferences an optional string, returning "" when missing.
func Str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
