package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palm2ical/internal/config"
	appLog "palm2ical/internal/log"
	"palm2ical/internal/model"
	"palm2ical/internal/palm"
)

var fixedNow = time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.HorizonDays = 7
	return cfg
}

func testCalendar() *model.Calendar {
	start := time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)
	d := uint32(1)
	return &model.Calendar{
		Kind:       palm.KindDatebook,
		Categories: []model.Category{{ID: 0, Name: "Unfiled"}, {ID: 1, Name: "Work"}},
		Events: []model.Event{
			{
				RecordID:     7,
				Start:        start,
				End:          start.Add(15 * time.Minute),
				Summary:      "Standup",
				Category:     1,
				CategoryName: "Work",
				Repeat:       &palm.RepeatSpec{Flag: 1, Brand: palm.BrandDaily, Interval: 1, DayIndex: &d},
			},
			{
				RecordID: 8,
				Start:    start.AddDate(0, 0, 30),
				End:      start.AddDate(0, 0, 30).Add(time.Hour),
				Summary:  "Later",
			},
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, load LoadFunc) *Server {
	t.Helper()
	s := NewServer(cfg, load, WithLogger(appLog.Nop()), WithClock(func() time.Time { return fixedNow }))
	return s
}

func staticLoad(cal *model.Calendar) LoadFunc {
	return func(context.Context) (*model.Calendar, error) { return cal, nil }
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig(), staticLoad(testCalendar()))
	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestNotLoadedIsUnavailable(t *testing.T) {
	s := newTestServer(t, testConfig(), staticLoad(testCalendar()))
	for _, path := range []string{"/api/events", "/calendar.ics"} {
		rec := get(t, s.Handler(), path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestEvents(t *testing.T) {
	s := newTestServer(t, testConfig(), staticLoad(testCalendar()))
	require.NoError(t, s.Reload(context.Background()))

	rec := get(t, s.Handler(), "/api/events?days=3&backfill=0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "UTC", resp.DisplayTimeZone)
	require.Len(t, resp.Occurrences, 3)
	for _, occ := range resp.Occurrences {
		assert.Equal(t, uint32(7), occ.RecordID)
		assert.Equal(t, "Standup", occ.Summary)
		assert.Equal(t, "Work", occ.Category)
		assert.NotEmpty(t, occ.UID)
	}
	assert.Equal(t, time.Date(2024, time.March, 6, 9, 30, 0, 0, time.UTC), resp.Occurrences[2].Start.UTC())
	assert.Empty(t, resp.TruncatedRecords)

	// The window defaults to horizon_days.
	rec = get(t, s.Handler(), "/api/events")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Occurrences, 7)
}

func TestEventsCacheClearedOnReload(t *testing.T) {
	cal := testCalendar()
	s := newTestServer(t, testConfig(), func(context.Context) (*model.Calendar, error) { return cal, nil })
	require.NoError(t, s.Reload(context.Background()))

	var resp eventsResponse
	rec := get(t, s.Handler(), "/api/events?days=3")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Occurrences, 3)

	cal = &model.Calendar{Kind: palm.KindDatebook}
	require.NoError(t, s.Reload(context.Background()))

	rec = get(t, s.Handler(), "/api/events?days=3")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Occurrences)
}

func TestEventsIgnoresEntryFromPreviousCalendar(t *testing.T) {
	cal := testCalendar()
	s := newTestServer(t, testConfig(), func(context.Context) (*model.Calendar, error) { return cal, nil })
	require.NoError(t, s.Reload(context.Background()))

	rec := get(t, s.Handler(), "/api/events?days=3")
	require.Equal(t, http.StatusOK, rec.Code)
	s.eventsMu.RLock()
	stale, ok := s.eventsCache["3/0"]
	s.eventsMu.RUnlock()
	require.True(t, ok)

	cal = &model.Calendar{Kind: palm.KindDatebook}
	require.NoError(t, s.Reload(context.Background()))

	// An in-flight request expanded against the old calendar stores its
	// result after the reload cleared the cache.
	s.eventsMu.Lock()
	s.eventsCache["3/0"] = stale
	s.eventsMu.Unlock()

	var resp eventsResponse
	rec = get(t, s.Handler(), "/api/events?days=3")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Occurrences)
}

func TestReloadFailureKeepsPreviousCalendar(t *testing.T) {
	fail := false
	s := newTestServer(t, testConfig(), func(context.Context) (*model.Calendar, error) {
		if fail {
			return nil, errors.New("disk gone")
		}
		return testCalendar(), nil
	})
	require.NoError(t, s.Reload(context.Background()))

	fail = true
	assert.Error(t, s.Reload(context.Background()))

	rec := get(t, s.Handler(), "/calendar.ics")
	assert.Equal(t, http.StatusOK, rec.Code)

	var st statusResponse
	rec = get(t, s.Handler(), "/api/status")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Loaded)
	assert.Equal(t, 2, st.Events)
	assert.Equal(t, "disk gone", st.LastError)
}

func TestCalendarICS(t *testing.T) {
	s := newTestServer(t, testConfig(), staticLoad(testCalendar()))
	require.NoError(t, s.Reload(context.Background()))

	rec := get(t, s.Handler(), "/calendar.ics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))

	parsed, err := ical.ParseCalendar(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	require.Len(t, parsed.Events(), 2)
	assert.Contains(t, rec.Body.String(), "X-WR-CALNAME:Palm Datebook")
}

func TestBasicAuth(t *testing.T) {
	cfg := testConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "palm", Password: "pilot"}
	s := newTestServer(t, cfg, staticLoad(testCalendar()))
	require.NoError(t, s.Reload(context.Background()))
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)

	rec := get(t, h, "/calendar.ics")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	tests := []struct {
		name     string
		user     string
		pass     string
		wantCode int
	}{
		{"valid", "palm", "pilot", http.StatusOK},
		{"wrong password", "palm", "pilots", http.StatusUnauthorized},
		{"wrong user", "treo", "pilot", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/calendar.ics", nil)
			req.SetBasicAuth(tc.user, tc.pass)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.wantCode, rec.Code)
		})
	}
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 5, parseIntDefault("", 5))
	assert.Equal(t, 5, parseIntDefault("x", 5))
	assert.Equal(t, -2, parseIntDefault("-2", 5))
}
