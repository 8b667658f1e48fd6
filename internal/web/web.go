package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"palm2ical/internal/config"
	"palm2ical/internal/ics"
	appLog "palm2ical/internal/log"
	"palm2ical/internal/model"
	"palm2ical/internal/recur"
)

// LoadFunc reads the calendar the server publishes.
type LoadFunc func(ctx context.Context) (*model.Calendar, error)

// Server publishes the converted datebook over HTTP:
// /health, /api/events, /api/status and /calendar.ics.
type Server struct {
	cfg    *config.Config
	load   LoadFunc
	logger *appLog.Logger
	mux    *http.ServeMux
	now    func() time.Time

	// calMu guards the loaded calendar. Reload swaps it in one step so
	// handlers never see a half-loaded calendar.
	calMu    sync.RWMutex
	cal      *model.Calendar
	loadedAt time.Time
	loadErr  error

	// In-memory cache for /api/events responses keyed by query. Cleared
	// on every successful reload.
	eventsMu    sync.RWMutex
	eventsCache map[string]eventsCache
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger. The default is the process logger.
func WithLogger(l *appLog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer constructs a new Server. Nothing is published until Reload
// succeeds once.
func NewServer(cfg *config.Config, load LoadFunc, opts ...Option) *Server {
	s := &Server{
		cfg:         cfg,
		load:        load,
		logger:      appLog.Default(),
		mux:         http.NewServeMux(),
		now:         time.Now,
		eventsCache: make(map[string]eventsCache),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Reload calls the LoadFunc and, on success, replaces the published
// calendar. On failure the previous calendar stays published.
func (s *Server) Reload(ctx context.Context) error {
	cal, err := s.load(ctx)

	s.calMu.Lock()
	if err != nil {
		s.loadErr = err
		s.calMu.Unlock()
		s.logger.Error("reload failed; keeping previous calendar", err)
		return err
	}
	s.cal = cal
	s.loadedAt = s.now()
	s.loadErr = nil
	s.calMu.Unlock()

	s.eventsMu.Lock()
	s.eventsCache = make(map[string]eventsCache)
	s.eventsMu.Unlock()

	s.logger.Info("calendar reloaded", "events", len(cal.Events), "categories", len(cal.Categories))
	return nil
}

func (s *Server) calendar() (*model.Calendar, time.Time, error) {
	s.calMu.RLock()
	defer s.calMu.RUnlock()
	return s.cal, s.loadedAt, s.loadErr
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		s.logger.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="palm2ical", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/calendar.ics", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	Source     string     `json:"source"`
	Loaded     bool       `json:"loaded"`
	LoadedAt   *time.Time `json:"loaded_at,omitempty"`
	Events     int        `json:"events"`
	Categories int        `json:"categories"`
	LastError  string     `json:"last_error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cal, loadedAt, err := s.calendar()
	resp := statusResponse{Source: s.cfg.Source}
	if cal != nil {
		resp.Loaded = true
		resp.LoadedAt = &loadedAt
		resp.Events = len(cal.Events)
		resp.Categories = len(cal.Categories)
	}
	if err != nil {
		resp.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCalendar serves the whole datebook as one iCalendar document.
func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	cal, _, _ := s.calendar()
	if cal == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar not loaded")
		return
	}

	// Render into a buffer first so a failed export still gets a clean
	// error response.
	var buf bytes.Buffer
	stats, err := ics.Export(&buf, cal, ics.ExportConfig{
		ProductID: s.cfg.ProductID,
		Name:      "Palm Datebook",
		Now:       s.now,
		Logger:    s.logger,
	})
	if err != nil {
		s.logger.Error("calendar.ics: export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}
	s.logger.Debug("calendar.ics served", "events", stats.Events, "unmapped", len(stats.Unmapped))

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Occurrences      []occurrenceDTO `json:"occurrences"`
	TruncatedRecords []uint32        `json:"truncated_records,omitempty"`
	FailedRecords    []uint32        `json:"failed_records,omitempty"`
	RangeStart       time.Time       `json:"range_start"`
	RangeEnd         time.Time       `json:"range_end"`
	DisplayTimeZone  string          `json:"display_timezone"`
}

// eventsCache holds a cached /api/events response, the calendar it was
// expanded from and its timestamp.
type eventsCache struct {
	resp      eventsResponse
	cal       *model.Calendar
	updatedAt time.Time
}

// occurrenceDTO is a JSON-friendly view of occurrences.
type occurrenceDTO struct {
	RecordID    uint32    `json:"record_id"`
	UID         string    `json:"uid"`
	InstanceKey string    `json:"instance_key"`
	Summary     string    `json:"summary"`
	Note        string    `json:"note,omitempty"`
	Category    string    `json:"category,omitempty"`
	Private     bool      `json:"private,omitempty"`
	AllDay      bool      `json:"all_day"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// handleEvents returns expanded occurrences of the loaded datebook
// within a requested time window.
//
// GET /api/events?days=30&backfill=0
//   - days:     number of future days (default horizon_days)
//   - backfill: number of past days (default backfill_days)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := parseIntDefault(q.Get("days"), s.cfg.HorizonDays)
	if days <= 0 {
		days = s.cfg.HorizonDays
	}
	backfill := parseIntDefault(q.Get("backfill"), s.cfg.BackfillDays)
	if backfill < 0 {
		backfill = 0
	}

	cal, _, _ := s.calendar()
	if cal == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar not loaded")
		return
	}

	const eventsCacheTTL = 30 * time.Second
	key := strconv.Itoa(days) + "/" + strconv.Itoa(backfill)
	cacheNow := s.now()

	s.eventsMu.RLock()
	ec, ok := s.eventsCache[key]
	s.eventsMu.RUnlock()
	// A handler that raced a reload may have stored a response for the
	// previous calendar after the cache was cleared.
	if ok && ec.cal == cal && cacheNow.Sub(ec.updatedAt) < eventsCacheTTL {
		writeJSON(w, http.StatusOK, ec.resp)
		return
	}

	loc := s.resolveLocationOrLocal()
	now := cacheNow.In(loc)
	rangeStart := now.AddDate(0, 0, -backfill)
	rangeEnd := now.AddDate(0, 0, days)

	s.logger.Info("api events request",
		"days", days,
		"backfill", backfill,
		"range_start", rangeStart.Format(time.RFC3339),
		"range_end", rangeEnd.Format(time.RFC3339),
		"timezone", loc.String(),
	)

	result, err := recur.Expand(cal.Events, recur.ExpandConfig{
		DisplayLocation:        loc,
		RangeStart:             rangeStart,
		RangeEnd:               rangeEnd,
		MaxOccurrencesPerEvent: s.cfg.MaxOccurrences,
		Logger:                 s.logger,
	})
	if err != nil {
		s.logger.Error("api events: expand failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand events")
		return
	}

	dtos := make([]occurrenceDTO, 0, len(result.Occurrences))
	for _, occ := range result.Occurrences {
		dtos = append(dtos, occurrenceDTO{
			RecordID:    occ.RecordID,
			UID:         ics.UID(occ.RecordID),
			InstanceKey: occ.InstanceKey,
			Summary:     occ.Summary,
			Note:        occ.Note,
			Category:    occ.CategoryName,
			Private:     occ.Private,
			AllDay:      occ.Untimed,
			Start:       occ.Start,
			End:         occ.End,
		})
	}

	resp := eventsResponse{
		Occurrences:      dtos,
		TruncatedRecords: result.TruncatedEvents,
		FailedRecords:    result.FailedEvents,
		RangeStart:       rangeStart,
		RangeEnd:         rangeEnd,
		DisplayTimeZone:  loc.String(),
	}

	s.eventsMu.Lock()
	s.eventsCache[key] = eventsCache{resp: resp, cal: cal, updatedAt: cacheNow}
	s.eventsMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) resolveLocationOrLocal() *time.Location {
	loc, err := s.cfg.Location()
	if err != nil {
		s.logger.Error("failed to load timezone; falling back to local", err, "name", s.cfg.Timezone)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
