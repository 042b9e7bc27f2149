package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

var (
	propTzOffsetFrom = ical.ComponentProperty(ical.PropertyTzoffsetfrom)
	propTzOffsetTo   = ical.ComponentProperty(ical.PropertyTzoffsetto)
	propTzName       = ical.ComponentProperty(ical.PropertyTzname)
)

// addTimezone adds the VTIMEZONE that the events' TZID refers to. Each
// observance comes from a zone transition in the year of now and repeats
// yearly on the same nth weekday of its month. A zone without transitions
// gets a single STANDARD observance.
func addTimezone(cal *ical.Calendar, loc *time.Location, now time.Time) {
	tz := cal.AddTimezone(loc.String())

	start := time.Date(now.In(loc).Year(), time.January, 1, 0, 0, 0, 0, loc)
	transitions := zoneTransitions(start, start.AddDate(1, 0, 0))

	if len(transitions) == 0 {
		name, offset := start.Zone()
		std := tz.AddStandard()
		std.SetProperty(ical.ComponentPropertyDtStart, "19700101T000000")
		std.SetProperty(propTzOffsetFrom, formatOffset(offset))
		std.SetProperty(propTzOffsetTo, formatOffset(offset))
		std.SetProperty(propTzName, name)
		return
	}

	for _, at := range transitions {
		_, from := at.Add(-time.Second).Zone()
		name, to := at.Zone()
		// DTSTART of an observance is the wall clock of the prior offset.
		onset := at.In(time.FixedZone("", from))

		var c *ical.ComponentBase
		if at.IsDST() {
			d := &ical.Daylight{}
			tz.Components = append(tz.Components, d)
			c = &d.ComponentBase
		} else {
			c = &tz.AddStandard().ComponentBase
		}
		c.SetProperty(ical.ComponentPropertyDtStart, onset.Format(localDateTimeLayout))
		c.SetProperty(propTzOffsetFrom, formatOffset(from))
		c.SetProperty(propTzOffsetTo, formatOffset(to))
		c.SetProperty(propTzName, name)
		c.SetProperty(ical.ComponentPropertyRrule, yearlyRule(onset))
	}
}

// zoneTransitions lists the instants in [from, to) where the zone offset or
// abbreviation changes.
func zoneTransitions(from, to time.Time) []time.Time {
	var out []time.Time
	for t := from; ; {
		_, end := t.ZoneBounds()
		if end.IsZero() || !end.Before(to) || !end.After(t) {
			return out
		}
		out = append(out, end)
		t = end
	}
}

// yearlyRule repeats onset every year on the same weekday ordinal of its
// month, using -1 for a last-week onset ("last Sunday of October").
func yearlyRule(onset time.Time) string {
	n := (onset.Day()-1)/7 + 1
	if n >= 4 && onset.AddDate(0, 0, 7).Month() != onset.Month() {
		n = -1
	}
	wd := toRRuleWeekday(onset.Weekday())
	opt := rrule.ROption{
		Freq:      rrule.YEARLY,
		Bymonth:   []int{int(onset.Month())},
		Byweekday: []rrule.Weekday{wd.Nth(n)},
	}
	return opt.RRuleString()
}

// formatOffset renders seconds east of UTC as ±hhmm.
func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("%c%02d%02d", sign, seconds/3600, (seconds%3600)/60)
}
