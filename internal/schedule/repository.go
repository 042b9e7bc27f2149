package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	appLog "matside/internal/log"
	"matside/internal/model"
	"matside/internal/source"
)

// Column names as they appear in the source sheets.
const (
	colSchool    = "School"
	colDay       = "Day"
	colStartTime = "Start Time"
	colAddress   = "Address"
	colCity      = "City"
	colStyle     = "Gi or Nogi"
	colNotes     = "Notes"
	colWebsite   = "Website"
	colPhone     = "Phone"
	colEmail     = "Email"
)

// LoadTimeout bounds one shared load of both sources.
const LoadTimeout = 2 * time.Minute

var (
	scheduleColumns  = []string{colSchool, colDay, colStartTime, colAddress, colCity, colStyle}
	directoryColumns = []string{colSchool, colWebsite}
)

// Sources holds the two source locations (file paths or http(s) URLs).
type Sources struct {
	Schedule  string
	Directory string
}

type snapshot struct {
	entries  []model.JoinedEntry
	warnings []RowWarning
	loadedAt time.Time
}

// Repository loads, joins and caches the schedule and directory sources.
// The cached snapshot lives until Invalidate; readers never see a partially
// built snapshot.
type Repository struct {
	reader  source.Reader
	sources Sources
	now     func() time.Time

	group singleflight.Group

	// mu serializes publish and Invalidate so that a load which started
	// before an invalidation is never cached.
	mu   sync.Mutex
	gen  uint64
	snap atomic.Pointer[snapshot]
}

// NewRepository creates a Repository reading sources through reader.
func NewRepository(reader source.Reader, sources Sources) *Repository {
	return &Repository{
		reader:  reader,
		sources: sources,
		now:     time.Now,
	}
}

// Sources returns the configured source locations.
func (r *Repository) Sources() Sources {
	return r.sources
}

// Load returns the joined entries, loading the sources on first use.
// Failures are returned as *DataSourceError and are not cached.
func (r *Repository) Load(ctx context.Context) ([]model.JoinedEntry, error) {
	if s := r.snap.Load(); s != nil {
		return slices.Clone(s.entries), nil
	}

	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()

	// The shared build is detached from any single caller: one caller
	// going away must not fail the others waiting on the same load.
	ch := r.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		if s := r.snap.Load(); s != nil {
			return s, nil
		}
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
		defer cancel()
		s, err := r.build(buildCtx)
		if err != nil {
			return nil, err
		}
		r.publish(gen, s)
		return s, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.(*snapshot).entries), nil
	}
}

// Reload drops the cache and loads again.
func (r *Repository) Reload(ctx context.Context) ([]model.JoinedEntry, error) {
	r.Invalidate()
	return r.Load(ctx)
}

// Invalidate drops the cached snapshot. The next Load reads the sources.
func (r *Repository) Invalidate() {
	r.mu.Lock()
	r.gen++
	r.snap.Store(nil)
	r.mu.Unlock()
	appLog.Debug("schedule cache invalidated")
}

// Warnings returns the row warnings of the cached snapshot.
func (r *Repository) Warnings() []RowWarning {
	if s := r.snap.Load(); s != nil {
		return slices.Clone(s.warnings)
	}
	return nil
}

// LoadedAt returns when the cached snapshot was built, or the zero time.
func (r *Repository) LoadedAt() time.Time {
	if s := r.snap.Load(); s != nil {
		return s.loadedAt
	}
	return time.Time{}
}

func (r *Repository) publish(gen uint64, s *snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		appLog.Debug("schedule load superseded by invalidation; not caching")
		return
	}
	r.snap.Store(s)
}

func (r *Repository) build(ctx context.Context) (*snapshot, error) {
	schedTbl, err := r.readTable(ctx, SourceSchedule, r.sources.Schedule, scheduleColumns)
	if err != nil {
		return nil, err
	}
	dirTbl, err := r.readTable(ctx, SourceDirectory, r.sources.Directory, directoryColumns)
	if err != nil {
		return nil, err
	}

	entries, warnings := parseSchedule(schedTbl)
	schools, dirWarnings := parseDirectory(dirTbl)
	warnings = append(warnings, dirWarnings...)

	for _, w := range warnings {
		appLog.Warn("row skipped", "source", w.Source, "row", w.Line, "reason", w.Reason)
	}

	joined := Join(entries, schools)
	appLog.Info("schedule loaded",
		"entries", len(joined),
		"schools", len(schools),
		"warnings", len(warnings),
	)

	return &snapshot{
		entries:  joined,
		warnings: warnings,
		loadedAt: r.now(),
	}, nil
}

func (r *Repository) readTable(ctx context.Context, name, location string, required []string) (*source.Table, error) {
	fail := func(err error) error {
		dsErr := &DataSourceError{Source: name, Location: source.DisplayLocation(location), Err: err}
		appLog.Error("data source failed", err, "source", name, "location", dsErr.Location)
		return dsErr
	}

	if strings.TrimSpace(location) == "" {
		return nil, fail(errors.New("location not configured"))
	}
	body, err := r.reader.Read(ctx, location)
	if err != nil {
		return nil, fail(err)
	}
	tbl, err := source.ParseTable(body)
	if err != nil {
		return nil, fail(err)
	}
	if missing := tbl.Missing(required...); len(missing) > 0 {
		return nil, fail(fmt.Errorf("missing required column(s): %s", strings.Join(missing, ", ")))
	}
	return tbl, nil
}

func parseSchedule(tbl *source.Table) ([]model.ScheduleEntry, []RowWarning) {
	entries := make([]model.ScheduleEntry, 0, len(tbl.Rows))
	var warnings []RowWarning
	for _, row := range tbl.Rows {
		e := model.ScheduleEntry{
			Row:       row.Line,
			School:    tbl.Get(row, colSchool),
			Day:       tbl.Get(row, colDay),
			StartTime: tbl.Get(row, colStartTime),
			Address:   tbl.Get(row, colAddress),
			City:      tbl.Get(row, colCity),
			Style:     model.Style(tbl.Get(row, colStyle)),
			Notes:     tbl.Get(row, colNotes),
		}
		switch {
		case e.School == "":
			warnings = append(warnings, RowWarning{Source: SourceSchedule, Line: row.Line, Reason: "missing School"})
			continue
		case e.Day == "":
			warnings = append(warnings, RowWarning{Source: SourceSchedule, Line: row.Line, Reason: "missing Day"})
			continue
		}
		if e.Style != "" && !e.Style.Known() {
			appLog.Debug("unrecognized style kept verbatim", "row", row.Line, "style", string(e.Style))
		}
		entries = append(entries, e)
	}
	return entries, warnings
}

func parseDirectory(tbl *source.Table) ([]model.SchoolRecord, []RowWarning) {
	schools := make([]model.SchoolRecord, 0, len(tbl.Rows))
	var warnings []RowWarning
	seen := make(map[string]int, len(tbl.Rows))
	for _, row := range tbl.Rows {
		rec := model.SchoolRecord{
			School:  tbl.Get(row, colSchool),
			Website: tbl.Get(row, colWebsite),
			Phone:   tbl.Get(row, colPhone),
			Email:   tbl.Get(row, colEmail),
		}
		if rec.School == "" {
			warnings = append(warnings, RowWarning{Source: SourceDirectory, Line: row.Line, Reason: "missing School"})
			continue
		}
		key := JoinKey(rec.School)
		if first, dup := seen[key]; dup {
			warnings = append(warnings, RowWarning{
				Source: SourceDirectory,
				Line:   row.Line,
				Reason: fmt.Sprintf("duplicate of row %d (%q)", first, rec.School),
			})
			continue
		}
		seen[key] = row.Line
		schools = append(schools, rec)
	}
	return schools, warnings
}

// JoinKey is the normalized school name two sources are matched on.
func JoinKey(school string) string {
	return foldKey(school)
}

// Join left-joins entries with schools on JoinKey: every entry yields one
// JoinedEntry, with empty contact fields when no school matches. When
// several schools share a key the first one wins.
func Join(entries []model.ScheduleEntry, schools []model.SchoolRecord) []model.JoinedEntry {
	byKey := make(map[string]model.SchoolRecord, len(schools))
	for _, s := range schools {
		key := JoinKey(s.School)
		if _, ok := byKey[key]; !ok {
			byKey[key] = s
		}
	}

	out := make([]model.JoinedEntry, 0, len(entries))
	for _, e := range entries {
		j := model.JoinedEntry{
			ScheduleEntry: e,
			SortKey:       ParseTime(e.StartTime),
		}
		if s, ok := byKey[JoinKey(e.School)]; ok {
			j.Website = s.Website
			j.Phone = s.Phone
			j.Email = s.Email
		}
		out = append(out, j)
	}
	return out
}
