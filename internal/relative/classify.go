package relative

import (
	"math"
	"time"
)

// Offset describes where an event falls relative to now.
type Offset struct {
	// Days is the event's calendar day minus today's calendar day.
	Days int
	// Hours is the event instant minus now, in fractional hours.
	Hours    float64
	Today    bool
	Tomorrow bool
}

// Now truncates t to the whole minute in its own location so every event
// of a pass compares against the same instant.
func Now(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

// StartOfDay returns local midnight of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Classify computes the offset of d from now. The event is placed in
// now's location.
func Classify(now time.Time, d Date) Offset {
	return ClassifyAt(now, d.In(now.Location()))
}

// ClassifyAt computes the offset of an event instant from now. Day
// boundaries are calendar midnights, so a 23h or 25h DST day still
// counts as one day.
func ClassifyAt(now, event time.Time) Offset {
	event = event.In(now.Location())

	todayStart := StartOfDay(now)
	tomorrowStart := todayStart.AddDate(0, 0, 1)
	dayAfterStart := todayStart.AddDate(0, 0, 2)

	return Offset{
		Days:     civilDays(event) - civilDays(now),
		Hours:    event.Sub(now).Hours(),
		Today:    !event.Before(todayStart) && event.Before(tomorrowStart),
		Tomorrow: !event.Before(tomorrowStart) && event.Before(dayAfterStart),
	}
}

// civilDays numbers t's calendar day as seen in t's own location.
func civilDays(t time.Time) int {
	u := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Floor(float64(u.Unix()) / 86400))
}
