package model

import (
	"time"

	"palm2ical/internal/palm"
)

// Calendar is the datebook content after extraction from the record tree.
type Calendar struct {
	Kind       palm.FileKind
	Categories []Category
	Events     []Event
}

// Category is a datebook category. ID 0 is "Unfiled".
type Category struct {
	Index     uint32
	ID        uint32
	Name      string
	ShortName string
}

// CategoryName returns the long name of the category with the given id,
// or "" if the calendar has none.
func (c *Calendar) CategoryName(id uint32) string {
	for _, cat := range c.Categories {
		if cat.ID == id {
			return cat.Name
		}
	}
	return ""
}

// Alarm is an alarm set some time before the event starts.
type Alarm struct {
	Advance time.Duration
}

// Event represents a logical datebook event before recurrence expansion.
// Start and End are local wall-clock times in the configured zone.
type Event struct {
	RecordID uint32

	Start   time.Time
	End     time.Time
	Untimed bool

	Summary      string
	Note         string
	Category     uint32
	CategoryName string
	Private      bool

	Alarm *Alarm

	// Repeat is nil for one-off events. It is shared between copies of
	// the event and must not be modified.
	Repeat *palm.RepeatSpec
}

// Repeats reports whether the event has a recurrence.
func (e Event) Repeats() bool {
	return e.Repeat != nil && e.Repeat.Repeats()
}

// Occurrence represents a single concrete instance of an event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	RecordID uint32

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, derived from the record id and the local start time.
	InstanceKey string

	Summary      string
	Note         string
	CategoryName string
	Untimed      bool
	Private      bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}
