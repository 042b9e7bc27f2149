package schedule

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
)

// TodayLabel is the relative label of the first slot of a DayWindow.
const TodayLabel = "Today"

// DaySlot is one position in the rotating day selector.
type DaySlot struct {
	Weekday time.Weekday `json:"weekday"`
	Name    string       `json:"name"`
	Label   string       `json:"label"`
	Today   bool         `json:"today"`
}

// DayWindow returns the seven weekdays starting at today and wrapping
// forward, so Wednesday yields Wed, Thu, Fri, Sat, Sun, Mon, Tue.
func DayWindow(today time.Weekday) []DaySlot {
	out := make([]DaySlot, 0, 7)
	for i := 0; i < 7; i++ {
		wd := time.Weekday((int(today) + i) % 7)
		slot := DaySlot{Weekday: wd, Name: wd.String(), Label: wd.String()}
		if i == 0 {
			slot.Label = TodayLabel
			slot.Today = true
		}
		out = append(out, slot)
	}
	return out
}

// MatchesDay reports whether a schedule Day field names wd. Full names match
// by case-folded containment, so "Tuesday/Thursday" matches both days. A
// separate word of at least three letters that starts the name also matches,
// so "Mon/Wed" and "Tues & Thurs" work too.
func MatchesDay(day string, wd time.Weekday) bool {
	d := foldKey(day)
	if d == "" {
		return false
	}
	name := foldKey(wd.String())
	if strings.Contains(d, name) {
		return true
	}
	for _, word := range strings.FieldsFunc(d, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if len(word) >= 3 && strings.HasPrefix(name, word) {
			return true
		}
	}
	return false
}

// Weekdays returns every weekday that a Day field names, in Sunday-first
// order.
func Weekdays(day string) []time.Weekday {
	var out []time.Weekday
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if MatchesDay(day, wd) {
			out = append(out, wd)
		}
	}
	return out
}

// ParseWeekday maps a request value to a weekday. "" and "today" resolve to
// today; full names and three-letter abbreviations are accepted in any case.
func ParseWeekday(s string, today time.Weekday) (time.Weekday, bool) {
	k := foldKey(s)
	if k == "" || k == foldKey(TodayLabel) {
		return today, true
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := foldKey(wd.String())
		if k == name || k == name[:3] {
			return wd, true
		}
	}
	return today, false
}

// Today returns the weekday of now in loc (time.Local when nil).
func Today(now time.Time, loc *time.Location) time.Weekday {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Weekday()
}

// foldKey trims and case-folds s. A Caser is stateful, so one is built per
// call rather than shared across goroutines.
func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
