package schedule

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"matside/internal/model"
)

// StyleFilter is the style selector state: StyleAll or one exact Style.
type StyleFilter string

const (
	StyleAll  StyleFilter = "All"
	StyleGi   StyleFilter = StyleFilter(model.StyleGi)
	StyleNoGi StyleFilter = StyleFilter(model.StyleNoGi)
	StyleBoth StyleFilter = StyleFilter(model.StyleBoth)
)

// StyleFilters lists the selector states in display order.
var StyleFilters = []StyleFilter{StyleAll, StyleGi, StyleNoGi, StyleBoth}

// ParseStyleFilter maps a request value to a StyleFilter. Empty means All.
func ParseStyleFilter(s string) (StyleFilter, bool) {
	k := strings.ToLower(strings.Join(strings.Fields(s), " "))
	switch k {
	case "", "all":
		return StyleAll, true
	case "gi":
		return StyleGi, true
	case "no gi", "nogi", "no-gi":
		return StyleNoGi, true
	case "both":
		return StyleBoth, true
	}
	return StyleAll, false
}

// Query keeps the entries that run on day and match style, ordered by start
// time with unparsable times last and ties in source row order. The input is
// not modified.
func Query(entries []model.JoinedEntry, day time.Weekday, style StyleFilter) []model.JoinedEntry {
	out := make([]model.JoinedEntry, 0)
	for _, e := range entries {
		if !MatchesDay(e.Day, day) {
			continue
		}
		if style != StyleAll && string(e.Style) != string(style) {
			continue
		}
		out = append(out, e)
	}

	slices.SortStableFunc(out, func(a, b model.JoinedEntry) int {
		if c := a.SortKey.Compare(b.SortKey); c != 0 {
			return c
		}
		return cmp.Compare(a.Row, b.Row)
	})
	return out
}
