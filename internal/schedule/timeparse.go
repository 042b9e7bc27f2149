package schedule

import (
	"strings"
	"time"

	"matside/internal/model"
)

// Layouts tried in order against the compacted, upper-cased input
// ("6:00 p.m." becomes "6:00PM").
var timeLayouts = []string{
	"3:04PM",
	"3PM",
	"3:04:05PM",
	"15:04",
	"15:04:05",
}

// ParseTime turns a free-form start time into a SortKey. Unrecognized input
// yields the undefined key.
func ParseTime(text string) model.SortKey {
	s := strings.ToUpper(strings.TrimSpace(text))
	if s == "" {
		return model.SortKey{}
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Join(strings.Fields(s), "")

	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return model.SortKey{Minutes: t.Hour()*60 + t.Minute(), Valid: true}
	}
	return model.SortKey{}
}
