package model

// Style is the training attire convention of a session ("Gi or Nogi" column).
// Values outside the known set are kept verbatim so the filter stays exact.
type Style string

const (
	StyleGi   Style = "Gi"
	StyleNoGi Style = "No Gi"
	StyleBoth Style = "Both"
)

// Known reports whether s is one of Gi, No Gi or Both.
func (s Style) Known() bool {
	switch s {
	case StyleGi, StyleNoGi, StyleBoth:
		return true
	}
	return false
}

// ScheduleEntry is one row of the schedule source after trimming.
// School and Day are always non-empty; other text fields are empty when
// absent in the source.
type ScheduleEntry struct {
	// Row is the 1-based data row number in the schedule source. It is the
	// tie-breaker that keeps query output in source order.
	Row int

	School    string
	Day       string // weekday name, or several joined ("Tuesday/Thursday")
	StartTime string // free-form clock time, kept as written for display
	Address   string
	City      string
	Style     Style
	Notes     string
}

// SchoolRecord is one row of the school directory source.
type SchoolRecord struct {
	School  string
	Website string
	Phone   string
	Email   string
}

// JoinedEntry is a ScheduleEntry enriched with the contact fields of its
// directory record (empty when no record matched) and a derived SortKey.
type JoinedEntry struct {
	ScheduleEntry

	Website string
	Phone   string
	Email   string

	SortKey SortKey
}

// SortKey is a comparable time-of-day in minutes after midnight.
// The zero value is the undefined key, which orders after every defined key.
type SortKey struct {
	Minutes int
	Valid   bool
}

// Compare returns -1, 0 or +1. Undefined keys are equal to each other and
// greater than any defined key.
func (k SortKey) Compare(o SortKey) int {
	switch {
	case !k.Valid && !o.Valid:
		return 0
	case !k.Valid:
		return 1
	case !o.Valid:
		return -1
	case k.Minutes < o.Minutes:
		return -1
	case k.Minutes > o.Minutes:
		return 1
	default:
		return 0
	}
}

// Less reports whether k orders strictly before o.
func (k SortKey) Less(o SortKey) bool {
	return k.Compare(o) < 0
}
