package schedule

import (
	"fmt"
)

// Source names used in errors, warnings and logs.
const (
	SourceSchedule  = "schedule"
	SourceDirectory = "directory"
)

// DataSourceError is the single terminal failure of a load: a source that is
// missing, unreadable, not a table, or lacks a required column.
type DataSourceError struct {
	Source   string // SourceSchedule or SourceDirectory
	Location string // display form of the location (remote URLs redacted)
	Err      error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("%s source %s: %v", e.Source, e.Location, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// RowWarning records a row that was skipped (or a directory duplicate that
// was dropped) at load time. Warnings never fail a load.
type RowWarning struct {
	Source string
	Line   int
	Reason string
}

func (w RowWarning) String() string {
	return fmt.Sprintf("%s row %d: %s", w.Source, w.Line, w.Reason)
}
