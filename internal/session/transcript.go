package session

import (
	"slices"
	"time"
)

// Entry is one transcript line.
type Entry struct {
	Speaker   string
	Text      string
	Timestamp time.Time
}

// Transcript holds finalized entries and at most one partial entry.
// It is not safe for concurrent use; the controller guards it.
type Transcript struct {
	entries []Entry
	partial *Entry
}

// SetPartial replaces the pending entry.
func (t *Transcript) SetPartial(e Entry) {
	t.partial = &e
}

// Finalize clears the pending entry and appends e.
func (t *Transcript) Finalize(e Entry) {
	t.partial = nil
	t.entries = append(t.entries, e)
}

// Reset drops everything.
func (t *Transcript) Reset() {
	t.entries = nil
	t.partial = nil
}

// Entries returns a copy of the finalized entries.
func (t *Transcript) Entries() []Entry {
	return slices.Clone(t.entries)
}

// Partial returns the pending entry, if any.
func (t *Transcript) Partial() (Entry, bool) {
	if t.partial == nil {
		return Entry{}, false
	}

	return *t.partial, true
}

// Snapshot is a point-in-time copy of the controller's session state.
type Snapshot struct {
	State        State
	SessionID    string
	Title        string
	Mode         Mode
	Confidential bool
	Elapsed      time.Duration
	Entries      []Entry
	Partial      *Entry
	Err          error
}

// Record is a finished session.
type Record struct {
	SessionID    string
	Title        string
	Mode         Mode
	Confidential bool
	StartedAt    time.Time
	Elapsed      time.Duration
	Entries      []Entry
	End          EndReason
}
