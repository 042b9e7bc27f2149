package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"matside/internal/config"
	"matside/internal/ics"
	appLog "matside/internal/log"
	"matside/internal/model"
	"matside/internal/present"
	"matside/internal/schedule"
)

// Server serves the schedule page, its JSON API and the calendar feed.
type Server struct {
	cfg    *config.Config
	repo   *schedule.Repository
	loc    *time.Location
	now    func() time.Time
	router *mux.Router
	page   *template.Template
}

//go:embed templates/*.html static/*
var embedded embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, repo *schedule.Repository) *Server {
	s := &Server{
		cfg:    cfg,
		repo:   repo,
		loc:    cfg.Location(),
		now:    time.Now,
		router: mux.NewRouter(),
		page:   template.Must(template.ParseFS(embedded, "templates/index.html")),
	}
	s.registerRoutes()
	return s
}

// SetClock replaces the clock that decides "today".
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

// Handler returns the routed handler wrapped with access logging, panic
// recovery and, when configured, basic auth.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))(h)
	return handlers.CustomLoggingHandler(io.Discard, h, accessLog)
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/calendar.ics", s.handleCalendar).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/mats", s.handleMats).Methods(http.MethodGet)
	api.HandleFunc("/days", s.handleDays).Methods(http.MethodGet)
	api.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)

	static, err := fs.Sub(embedded, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return
	}
	s.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="matside", charset="UTF-8"`)
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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// selection is the parsed day/style state of a request.
type selection struct {
	today  time.Weekday
	day    time.Weekday
	style  schedule.StyleFilter
	window []schedule.DaySlot
}

func (s *Server) parseSelection(r *http.Request) (selection, error) {
	q := r.URL.Query()
	today := schedule.Today(s.now(), s.loc)
	sel := selection{today: today, window: schedule.DayWindow(today)}

	day, ok := schedule.ParseWeekday(q.Get("day"), today)
	if !ok {
		return sel, errors.New("unknown day " + q.Get("day"))
	}
	style, ok := schedule.ParseStyleFilter(q.Get("style"))
	if !ok {
		return sel, errors.New("unknown style " + q.Get("style"))
	}
	sel.day = day
	sel.style = style
	return sel, nil
}

// loadQuery loads the cached entries and applies sel. On failure it returns
// an empty result and the error message to show.
func (s *Server) loadQuery(ctx context.Context, sel selection) ([]model.JoinedEntry, error) {
	entries, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	return schedule.Query(entries, sel.day, sel.style), nil
}

// matsResponse is the JSON response shape for /api/mats.
type matsResponse struct {
	Day      string                  `json:"day"`
	Today    bool                    `json:"today"`
	Style    schedule.StyleFilter    `json:"style"`
	Window   []schedule.DaySlot      `json:"window"`
	Records  []present.DisplayRecord `json:"records"`
	Count    int                     `json:"count"`
	Warnings int                     `json:"warnings"`
	LoadedAt *time.Time              `json:"loaded_at,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// handleMats returns the display records for a day and style.
//
// GET /api/mats?day=thursday&style=No+Gi
//   - day:   weekday name, 3-letter abbreviation or "today" (default today)
//   - style: All, Gi, No Gi or Both (default All)
func (s *Server) handleMats(w http.ResponseWriter, r *http.Request) {
	sel, err := s.parseSelection(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := matsResponse{
		Day:     sel.day.String(),
		Today:   sel.day == sel.today,
		Style:   sel.style,
		Window:  sel.window,
		Records: []present.DisplayRecord{},
	}

	entries, err := s.loadQuery(r.Context(), sel)
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, statusForLoadError(err), resp)
		return
	}

	resp.Records = present.ToDisplayRecords(entries)
	resp.Count = len(resp.Records)
	resp.Warnings = len(s.repo.Warnings())
	if at := s.repo.LoadedAt(); !at.IsZero() {
		resp.LoadedAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDays(w http.ResponseWriter, _ *http.Request) {
	today := schedule.Today(s.now(), s.loc)
	writeJSON(w, http.StatusOK, schedule.DayWindow(today))
}

// handleReload drops the cache and reloads both sources.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	entries, err := s.repo.Reload(r.Context())
	if err != nil {
		appLog.Error("reload failed", err)
		writeError(w, statusForLoadError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"entries":  len(entries),
		"warnings": len(s.repo.Warnings()),
	})
}

// handleCalendar serves every open mat as a weekly recurring event.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	entries, err := s.repo.Load(r.Context())
	if err != nil {
		writeError(w, statusForLoadError(err), err.Error())
		return
	}

	body, res := ics.Export(entries, ics.ExportConfig{
		Location:      s.loc,
		Now:           s.now(),
		EventDuration: time.Duration(s.cfg.EventMinutes) * time.Minute,
		CalendarName:  s.cfg.Title,
	})
	if len(res.Skipped) > 0 {
		appLog.Debug("calendar export skipped entries", "skipped", len(res.Skipped), "events", res.Events)
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="dfw-open-mats.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func statusForLoadError(err error) int {
	var dsErr *schedule.DataSourceError
	if errors.As(err, &dsErr) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
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

func accessLog(_ io.Writer, p handlers.LogFormatterParams) {
	appLog.Info("http request",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"bytes", p.Size,
		"remote", p.Request.RemoteAddr,
	)
}

// recoveryLogger adapts the app logger to handlers.RecoveryHandlerLogger.
type recoveryLogger struct{}

func (recoveryLogger) Println(v ...any) {
	appLog.Error("panic recovered in handler", errors.New(fmt.Sprint(v...)))
}

// dayHref builds the selector link for day/style, keeping "today" implicit.
func dayHref(slot schedule.DaySlot, style schedule.StyleFilter) string {
	q := url.Values{}
	if !slot.Today {
		q.Set("day", strings.ToLower(slot.Name))
	}
	if style != schedule.StyleAll {
		q.Set("style", string(style))
	}
	if len(q) == 0 {
		return "/"
	}
	return "/?" + q.Encode()
}
