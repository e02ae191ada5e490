// Package state persists catalog entries added from the command line and the
// history of planned statements in a SQLite database.
package state

import (
	"time"
)

// HistoryEntry records one planned statement.
type HistoryEntry struct {
	ID        string    `json:"id" yaml:"id"`
	Statement string    `json:"statement" yaml:"statement"`
	Steps     int       `json:"steps" yaml:"steps"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	PlannedAt time.Time `json:"planned_at" yaml:"planned_at"`
}

// Failed reports whether planning the statement failed.
func (e HistoryEntry) Failed() bool {
	return e.Error != ""
}

// DefaultHistoryLimit is the number of history entries returned when no limit is given.
const DefaultHistoryLimit = 20
