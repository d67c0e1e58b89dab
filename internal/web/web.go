package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"pcal/internal/calendar"
	"pcal/internal/command"
	"pcal/internal/config"
	"pcal/internal/filter"
	appLog "pcal/internal/log"
	"pcal/internal/model"
	"pcal/internal/store"
)

const (
	// eventsCacheTTL bounds how stale /api/events may be.
	eventsCacheTTL = 30 * time.Second
	// maxCachedQueries caps the distinct queries held at once.
	maxCachedQueries = 256
)

// Server provides the read-only HTTP feed: /health, /api/calendars,
// /api/events, /api/events/show and /calendar.ics.
type Server struct {
	cfg    *config.Config
	store  store.Store
	runner *command.Runner
	mux    *http.ServeMux

	// In-memory cache for /api/events responses keyed by the raw query,
	// so repeated polling does not reload and expand the calendar.
	eventsMu    sync.RWMutex
	eventsCache map[string]eventsCache
	cacheTTL    time.Duration
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, st store.Store, runner *command.Runner) *Server {
	s := &Server{
		cfg:         cfg,
		store:       st,
		runner:      runner,
		mux:         http.NewServeMux(),
		eventsCache: make(map[string]eventsCache),
		cacheTTL:    eventsCacheTTL,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
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
			w.Header().Set("WWW-Authenticate", `Basic realm="pcal", charset="UTF-8"`)
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

// StartServer serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, st store.Store, runner *command.Runner) error {
	s := NewServer(cfg, st, runner)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/calendars", s.handleCalendars)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/events/show", s.handleShow)
	s.mux.HandleFunc("/calendar.ics", s.handleICS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// calendarName picks ?calendar= or the configured default.
func (s *Server) calendarName(r *http.Request) string {
	if name := strings.TrimSpace(r.URL.Query().Get("calendar")); name != "" {
		return name
	}
	return s.cfg.Calendar
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) (*calendar.Calendar, bool) {
	name := s.calendarName(r)
	cal, err := s.store.Load(name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		} else {
			appLog.Error("api: calendar load failed", err, "calendar", name)
		}
		writeError(w, status, err.Error())
		return nil, false
	}
	return cal, true
}

func (s *Server) handleCalendars(w http.ResponseWriter, _ *http.Request) {
	names, err := s.store.Names()
	if err != nil {
		appLog.Error("api: list calendars failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list calendars")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"calendars": names, "default": s.cfg.Calendar})
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Calendar     string          `json:"calendar"`
	Filter       string          `json:"filter"`
	Occurrences  []occurrenceDTO `json:"occurrences"`
	TruncatedIDs []string        `json:"truncated_ids,omitempty"`
	RangeStart   *time.Time      `json:"range_start,omitempty"`
	RangeEnd     *time.Time      `json:"range_end,omitempty"`
	WeekStart    string          `json:"week_start"`
}

// eventsCache holds a cached /api/events response and its timestamp.
type eventsCache struct {
	resp      eventsResponse
	updatedAt time.Time
}

// occurrenceDTO is a JSON-friendly view of occurrences.
type occurrenceDTO struct {
	EventID  string    `json:"event_id"`
	Title    string    `json:"title"`
	Location string    `json:"location,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

type eventDTO struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Recurrence  string    `json:"recurrence,omitempty"`
}

func toEventDTO(ev model.Event) eventDTO {
	dto := eventDTO{
		ID:          ev.ID.String(),
		Title:       ev.Title,
		Location:    ev.Location,
		Description: ev.Description,
		Start:       ev.Start,
		End:         ev.End,
	}
	if ev.Recurrence != nil {
		dto.Recurrence = ev.Recurrence.String()
	}
	return dto
}

// handleEvents returns the occurrences matching a filter.
//
// GET /api/events?calendar=work&filter=week
// GET /api/events?from=2024-06-01&until=2024-06-30
//   - filter: today, week or month; overrides from/until
//   - from/until: dates for an explicit range, either side optional
//
// Without parameters the result holds everything from today onward.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := r.URL.RawQuery

	if s.cacheTTL > 0 {
		s.eventsMu.RLock()
		ec, ok := s.eventsCache[key]
		s.eventsMu.RUnlock()
		if ok && time.Since(ec.updatedAt) < s.cacheTTL {
			writeJSON(w, http.StatusOK, ec.resp)
			return
		}
	}

	kind := strings.ToLower(q.Get("filter"))
	switch kind {
	case "", "today", "week", "month":
	default:
		writeError(w, http.StatusBadRequest, "filter must be today, week or month")
		return
	}
	f, err := filter.Parse(kind == "today", kind == "week", kind == "month", q.Get("from"), q.Get("until"), s.runner.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cal, ok := s.load(w, r)
	if !ok {
		return
	}
	res, err := s.runner.List(cal, f)
	if err != nil {
		appLog.Error("api events: list failed", err, "calendar", cal.Name())
		writeError(w, http.StatusInternalServerError, "failed to expand events")
		return
	}

	resp := eventsResponse{
		Calendar:    cal.Name(),
		Filter:      f.String(),
		Occurrences: make([]occurrenceDTO, 0, res.Len()),
		WeekStart:   s.cfg.WeekStart,
	}
	if !res.Window.From.IsZero() {
		resp.RangeStart = &res.Window.From
	}
	if !res.Window.Until.IsZero() {
		resp.RangeEnd = &res.Window.Until
	}
	for _, e := range res.Entries {
		if e.Truncated {
			resp.TruncatedIDs = append(resp.TruncatedIDs, e.Event.ID.String())
		}
	}
	for _, occ := range res.Agenda() {
		resp.Occurrences = append(resp.Occurrences, occurrenceDTO{
			EventID:  occ.EventID.String(),
			Title:    occ.Title,
			Location: occ.Location,
			Start:    occ.Start,
			End:      occ.End,
		})
	}

	appLog.Debug("api events request",
		"calendar", cal.Name(),
		"filter", resp.Filter,
		"occurrences", len(resp.Occurrences),
	)

	if s.cacheTTL > 0 {
		s.cacheEvents(key, resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

// cacheEvents stores resp under key after dropping expired entries. When
// the map is still full every entry goes.
func (s *Server) cacheEvents(key string, resp eventsResponse) {
	now := time.Now()
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	for k, ec := range s.eventsCache {
		if now.Sub(ec.updatedAt) >= s.cacheTTL {
			delete(s.eventsCache, k)
		}
	}
	if len(s.eventsCache) >= maxCachedQueries {
		clear(s.eventsCache)
	}
	s.eventsCache[key] = eventsCache{resp: resp, updatedAt: now}
}

type showResponse struct {
	Event eventDTO    `json:"event"`
	Next  []time.Time `json:"next"`
}

// handleShow returns one event and its next occurrences.
//
// GET /api/events/show?id=<id or unique prefix>
func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.URL.Query().Get("id"))
	if ref == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	cal, ok := s.load(w, r)
	if !ok {
		return
	}
	res, err := s.runner.Show(cal, ref)
	if err != nil {
		var (
			nf  *calendar.NotFoundError
			amb *calendar.AmbiguousError
		)
		switch {
		case errors.As(err, &nf):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &amb):
			writeError(w, http.StatusConflict, err.Error())
		default:
			appLog.Error("api show failed", err, "id", ref)
			writeError(w, http.StatusInternalServerError, "failed to show event")
		}
		return
	}
	next := res.Next
	if next == nil {
		next = []time.Time{}
	}
	writeJSON(w, http.StatusOK, showResponse{Event: toEventDTO(res.Event), Next: next})
}

// handleICS exports the whole calendar as iCalendar text.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+cal.Name()+`.ics"`)
	if err := s.runner.Export(cal, w); err != nil {
		appLog.Error("api ics export failed", err, "calendar", cal.Name())
	}
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
