// Package ics renders the open-mat schedule as a weekly recurring
// iCalendar feed.
package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "matside/internal/log"
	"matside/internal/model"
	"matside/internal/schedule"
)

const (
	ProductID              = "-//DFW Mat Side//Open Mats//EN"
	defaultEventDuration   = 2 * time.Hour
	localDateTimeLayout    = "20060102T150405"
	uidDomain              = "@matside"
	defaultCalendarName    = "DFW Open Mats"
	skipReasonNoWeekday    = "no weekday in Day"
	skipReasonUnparsedTime = "unparsable start time"
)

// ExportConfig controls feed generation.
type ExportConfig struct {
	// Location is the zone sessions are held in. If nil, time.Local is used.
	Location *time.Location
	// Now anchors the first occurrence: DTSTART is the earliest matching
	// session on or after the start of Now's day.
	Now time.Time
	// EventDuration is the length of every session. Zero means two hours.
	EventDuration time.Duration
	// CalendarName is published as X-WR-CALNAME.
	CalendarName string
}

// Skipped names an entry left out of the feed.
type Skipped struct {
	School string
	Day    string
	Reason string
}

// ExportResult wraps the calendar and the entries it could not place.
type ExportResult struct {
	Calendar *ical.Calendar
	Events   int
	Skipped  []Skipped
}

// Build creates one weekly recurring VEVENT per entry whose Day names at
// least one weekday and whose start time parses.
func Build(entries []model.JoinedEntry, cfg ExportConfig) ExportResult {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	if cfg.EventDuration <= 0 {
		cfg.EventDuration = defaultEventDuration
	}
	if cfg.CalendarName == "" {
		cfg.CalendarName = defaultCalendarName
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	cal.SetXWRCalName(cfg.CalendarName)
	cal.SetXWRTimezone(cfg.Location.String())

	addTimezone(cal, cfg.Location, cfg.Now)

	res := ExportResult{Calendar: cal}
	stamp := cfg.Now.UTC()
	seen := make(map[string]int, len(entries))

	for _, e := range entries {
		days := schedule.Weekdays(e.Day)
		if len(days) == 0 {
			res.Skipped = append(res.Skipped, Skipped{School: e.School, Day: e.Day, Reason: skipReasonNoWeekday})
			continue
		}
		if !e.SortKey.Valid {
			res.Skipped = append(res.Skipped, Skipped{School: e.School, Day: e.Day, Reason: skipReasonUnparsedTime})
			continue
		}

		start, rule, err := firstOccurrence(e.SortKey, days, cfg.Now, cfg.Location)
		if err != nil {
			appLog.Error("ics: recurrence build failed", err, "school", e.School, "day", e.Day)
			res.Skipped = append(res.Skipped, Skipped{School: e.School, Day: e.Day, Reason: err.Error()})
			continue
		}
		end := start.Add(cfg.EventDuration)
		tzid := &ical.KeyValues{Key: string(ical.ParameterTzid), Value: []string{cfg.Location.String()}}

		base := EventUID(e)
		uid := base
		if n := seen[base]; n > 0 {
			uid = strings.TrimSuffix(base, uidDomain) + fmt.Sprintf("-%d", n+1) + uidDomain
		}
		seen[base]++

		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(stamp)
		ev.SetProperty(ical.ComponentPropertyDtStart, start.Format(localDateTimeLayout), tzid)
		ev.SetProperty(ical.ComponentPropertyDtEnd, end.Format(localDateTimeLayout), tzid)
		ev.AddProperty(ical.ComponentPropertyRrule, rule)
		ev.SetSummary(summary(e))
		if loc := location(e); loc != "" {
			ev.SetLocation(loc)
		}
		if e.Notes != "" {
			ev.SetDescription(e.Notes)
		}
		if e.Website != "" {
			ev.SetURL(e.Website)
		}
		res.Events++
	}

	return res
}

// Export builds the feed and serializes it.
func Export(entries []model.JoinedEntry, cfg ExportConfig) (string, ExportResult) {
	res := Build(entries, cfg)
	return res.Calendar.Serialize(), res
}

// EventUID is stable across reloads for the same school, day, start time and
// style. Build numbers repeats of the same UID in source order.
func EventUID(e model.JoinedEntry) string {
	key := schedule.JoinKey(e.School) + "|" + strings.ToLower(e.Day) + "|" +
		strings.ToLower(e.StartTime) + "|" + strings.ToLower(string(e.Style))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8]) + uidDomain
}

// firstOccurrence returns the first session on or after the start of now's
// day, plus the RRULE value that repeats it.
func firstOccurrence(key model.SortKey, days []time.Weekday, now time.Time, loc *time.Location) (time.Time, string, error) {
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dtstart := time.Date(local.Year(), local.Month(), local.Day(), key.Minutes/60, key.Minutes%60, 0, 0, loc)

	byDay := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		byDay = append(byDay, toRRuleWeekday(d))
	}

	opt := rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: byDay,
		Dtstart:   dtstart,
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return time.Time{}, "", err
	}
	first := r.After(dayStart, true)
	if first.IsZero() {
		return time.Time{}, "", errors.New("no occurrence")
	}

	ruleOpt := opt
	ruleOpt.Dtstart = time.Time{}
	return first, ruleOpt.RRuleString(), nil
}

func toRRuleWeekday(d time.Weekday) rrule.Weekday {
	switch d {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}

func summary(e model.JoinedEntry) string {
	if e.Style == "" {
		return "Open Mat: " + e.School
	}
	return "Open Mat: " + e.School + " (" + string(e.Style) + ")"
}

func location(e model.JoinedEntry) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{e.Address, e.City} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
