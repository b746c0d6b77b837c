package model

import "time"

// Occurrence is a single concrete instance of a calendar entry after
// recurrence expansion, expressed in the display timezone.
type Occurrence struct {
	FeedID string // config ICS ID
	UID    string // iCalendar UID

	// Key identifies one instance of a recurring entry.
	Key string

	Summary  string
	Location string

	AllDay bool
	Start  time.Time
	End    time.Time
}

// ByStart orders occurrences by start time, all-day entries first on the
// same instant, then by summary.
func ByStart(a, b Occurrence) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	if a.AllDay != b.AllDay {
		if a.AllDay {
			return -1
		}
		return 1
	}
	switch {
	case a.Summary < b.Summary:
		return -1
	case a.Summary > b.Summary:
		return 1
	}
	return 0
}
