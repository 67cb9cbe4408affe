package trace

import (
	"github.com/cuemby/burrow/pkg/types"
)

// IOAction labels one traced storage action
type IOAction string

const (
	ActionNone        IOAction = "None"
	ActionReadStart   IOAction = "ReadStart"
	ActionReadEnd     IOAction = "ReadEnd"
	ActionWriteStart  IOAction = "WriteStart"
	ActionWriteEnd    IOAction = "WriteEnd"
	ActionCopyStart   IOAction = "CopyStart"
	ActionCopyEnd     IOAction = "CopyEnd"
	ActionDeleteStart IOAction = "DeleteStart"
	ActionDeleteEnd   IOAction = "DeleteEnd"
)

// DiskUsage is one child service's state at trace time
type DiskUsage struct {
	ServiceID string  `json:"service_id"`
	FreeBytes int64   `json:"free_bytes"`
	FileID    string  `json:"file_id"`
	Load      float64 `json:"load"`
}

// Entry is one traced storage action
type Entry struct {
	TS        float64              `json:"ts"`
	Action    IOAction             `json:"action"`
	DiskUsage []DiskUsage          `json:"disk_usage"`
	Locations []types.FileLocation `json:"locations"`
}

// Log is an append-only, timestamp-monotonic list of trace entries. In the
// cooperative actor model a single service owns each log; Append is its
// only mutation.
type Log struct {
	entries []Entry
}

// NewLog creates an empty trace log
func NewLog() *Log {
	return &Log{}
}

// Append adds an entry. Virtual time never goes backwards, so entries stay
// timestamp-monotonic; an out-of-order timestamp is clamped to the last one.
func (l *Log) Append(e Entry) {
	if n := len(l.entries); n > 0 && e.TS < l.entries[n-1].TS {
		e.TS = l.entries[n-1].TS
	}
	l.entries = append(l.entries, e)
}

// Entries returns the recorded entries, oldest first
func (l *Log) Entries() []Entry {
	return l.entries
}

// Len returns the number of recorded entries
func (l *Log) Len() int {
	return len(l.entries)
}
