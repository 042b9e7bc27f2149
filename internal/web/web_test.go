package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matside/internal/config"
	"matside/internal/schedule"
)

const (
	testMats = "School,Day,Start Time,Address,City,Gi or Nogi,Notes\n" +
		"Gracie Academy,Wednesday,6:00 PM,1 Main St,Dallas,Gi,Bring a gi\n" +
		"Lonestar BJJ,Tuesday/Thursday,7:00 PM,2 Elm St,Plano,No Gi,\n" +
		"Early Birds,Wednesday,6:30 AM,3 Oak St,Irving,Both,\n" +
		"Odd Hours,Wednesday,whenever,4 Pine St,Frisco,No Gi,\n"

	testSchools = "School,Website,Phone,Email\n" +
		"gracie academy,https://gracie.example,214-555-0100,info@gracie.example\n" +
		"Lonestar BJJ,javascript:alert(1),,\n"
)

type memReader struct {
	mu    sync.Mutex
	files map[string]string
}

func (m *memReader) Read(_ context.Context, loc string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.files[loc]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(body), nil
}

func (m *memReader) remove(loc string) {
	m.mu.Lock()
	delete(m.files, loc)
	m.mu.Unlock()
}

// wednesday is 2026-10-14 at noon in Chicago.
func wednesday() time.Time {
	loc, _ := time.LoadLocation("America/Chicago")
	return time.Date(2026, 10, 14, 12, 0, 0, 0, loc)
}

func newTestServer(t *testing.T, files map[string]string) (*Server, *memReader) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Sources = config.SourcesConfig{Schedule: "mats.csv", Directory: "schools.csv"}

	reader := &memReader{files: files}
	repo := schedule.NewRepository(reader, schedule.Sources{Schedule: "mats.csv", Directory: "schools.csv"})
	s := NewServer(cfg, repo)
	s.SetClock(wednesday)
	return s, reader
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIndexRendersTodayInTimeOrder(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"mats.csv": testMats, "schools.csv": testSchools})

	rec := do(t, s.Handler(), http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	assert.Contains(t, body, "Wednesday Schedule")
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, ">Today</a>")

	early := strings.Index(body, "Early Birds")
	gracie := strings.Index(body, "Gracie Academy")
	odd := strings.Index(body, "Odd Hours")
	require.True(t, early > 0 && gracie > 0 && odd > 0)
	assert.Less(t, early, gracie)
	assert.Less(t, gracie, odd)
	assert.NotContains(t, body, "Lonestar BJJ")

	assert.Contains(t, body, `href="tel:214-555-0100"`)
	assert.Contains(t, body, `href="mailto:info@gracie.example"`)
	assert.Contains(t, body, "https://www.google.com/maps/search/?api=1")
	assert.Contains(t, body, "query=Gracie")
	assert.Contains(t, body, "No Phone")
	assert.Contains(t, body, "Bring a gi")
}

func TestIndexLinksSchemelessWebsite(t *testing.T) {
	schools := "School,Website,Phone,Email\n" +
		"Gracie Academy,www.gracie.example,,\n"
	s, _ := newTestServer(t, map[string]string{"mats.csv": testMats, "schools.csv": schools})

	rec := do(t, s.Handler(), http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `href="https://www.gracie.example"`)
	assert.NotContains(t, body, `href="#"`)
}

func TestIndexStyleAndDaySelection(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"mats.csv": testMats, "schools.csv": testSchools})

	rec := do(t, s.Handler(), http.MethodGet, "/?day=thursday&style=No+Gi")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Thursday Schedule")
	assert.Contains(t, body, "Lonestar BJJ")
	assert.NotContains(t, body, "Gracie Academy")
	// Unsafe website scheme from the sheet disables the slot.
	assert.NotContains(t, body, "javascript:")
	assert.Contains(t, body, `aria-disabled="true">No Link</span>`)

	rec = do(t, s.Handler(), http.MethodGet, "/?style=Gi")
	body = rec.Body.String()
	assert.Contains(t, body, "Gracie Academy")
	assert.NotContains(t, body, "Early Birds")
}

func TestIndexEmptyResult(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"mats.csv": testMats, "schools.csv": testSchools})

	rec := do(t, s.Handler(), http.MethodGet, "/?day=sunday")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No mats found for this selection")
	assert.NotContains(t, rec.Body.String(), "Schedule unavailable")
}

func TestIndexSourceFailureShowsErrorNotCrash(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"mats.csv": testMats})

	rec := do(t, s.Handler(), http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Schedule unavailable")
	assert.Contains(t, body, "directory source")
	assert.NotContains(t, body, "mat-card")
	assert.NotContains(t, body, "No mats found")
}

func TestIndexBadSelectionFallsBack(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"mats.csv": testMats, "schools.csv": testSchools})

	rec := do(t, s.Handler(), http.MethodGet, "/?day=funday&style=kimono")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Wednesday Schedule")
}

func TestAPIMats(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"mats.csv": testMats, "schools.csv": testSchools})

	rec := do(t, s.Handler(), http.MethodGet, "/api/mats?day=today&style=all")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp matsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Wednesday", resp.Day)
	assert.True(t, resp.Today)
	assert.Equal(t, schedule.StyleAll, resp.Style)
	require.Len(t, resp.Window, 7)
	assert.Equal(t, "Today", resp.Window[0].Label)
	require.Equal(t, 3, resp.Count)
	assert.Equal(t, []string{"Early Birds", "Gracie Academy", "Odd Hours"},
		[]string{resp.Records[0].Title, resp.Records[1].Title, resp.Records[2].Title})
	assert.NotNil(t, resp.LoadedAt)
	assert.Empty(t, resp.Error)
}

func TestAPIMatsBadParams(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"mats.csv": testMats, "schools.csv": testSchools})

	assert.Equal(t, http.StatusBadRequest, do(t, s.Handler(), http.MethodGet, "/api/mats?day=funday").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s.Handler(), http.MethodGet, "/api/mats?style=kimono").Code)
}

func TestAPIMatsSourceFailure(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"schools.csv": testSchools})

	rec := do(t, s.Handler(), http.MethodGet, "/api/mats")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp matsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Records)
	assert.Contains(t, resp.Error, "schedule source")
}

func TestAPIDays(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/api/days")
	require.Equal(t, http.StatusOK, rec.Code)

	var days []schedule.DaySlot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &days))
	require.Len(t, days, 7)
	assert.Equal(t, time.Wednesday, days[0].Weekday)
	assert.Equal(t, time.Tuesday, days[6].Weekday)
}

func TestReloadPicksUpChangesAndReportsFailure(t *testing.T) {
	s, reader := newTestServer(t, map[string]string{"mats.csv": testMats, "schools.csv": testSchools})
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/reload")
	require.Equal(t, http.StatusOK, rec.Code)
	var ok map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.Equal(t, 4, ok["entries"])

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/reload").Code)

	reader.remove("schools.csv")
	rec = do(t, h, http.MethodPost, "/api/reload")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "directory source")
}

func TestCalendarFeed(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"mats.csv": testMats, "schools.csv": testSchools})

	rec := do(t, s.Handler(), http.MethodGet, "/calendar.ics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")

	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	// Odd Hours has no parsable time.
	assert.Equal(t, 3, strings.Count(body, "BEGIN:VEVENT"))
}

func TestHealthAndBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"mats.csv": testMats, "schools.csv": testSchools})
	s.cfg.BasicAuth = &config.BasicAuthConfig{Username: "coach", Password: "oss"}
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("coach", "oss")
	authed := httptest.NewRecorder()
	h.ServeHTTP(authed, req)
	assert.Equal(t, http.StatusOK, authed.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("coach", "wrong")
	denied := httptest.NewRecorder()
	h.ServeHTTP(denied, req)
	assert.Equal(t, http.StatusUnauthorized, denied.Code)
}

func TestStaticAssets(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/static/style.css")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ".mat-card")
}

func TestSafeHref(t *testing.T) {
	assert.EqualValues(t, "https://a.example", safeHref("https://a.example"))
	assert.EqualValues(t, "tel:214-555-0100", safeHref("tel:214-555-0100"))
	assert.EqualValues(t, "mailto:a@b.example", safeHref("mailto:a@b.example"))
	assert.EqualValues(t, "#", safeHref("javascript:alert(1)"))
	assert.EqualValues(t, "#", safeHref("www.no-scheme.example"))
}

func TestDayHref(t *testing.T) {
	today := schedule.DayWindow(time.Wednesday)
	assert.Equal(t, "/", dayHref(today[0], schedule.StyleAll))
	assert.Equal(t, "/?day=thursday", dayHref(today[1], schedule.StyleAll))
	assert.Equal(t, "/?day=thursday&style=No+Gi", dayHref(today[1], schedule.StyleNoGi))
}

func TestListenAndServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.cfg.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
