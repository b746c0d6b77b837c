package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "relcal/internal/log"
)

// Entry is a VEVENT reduced to what the agenda needs. Recurrences are
// recorded but not expanded; see Expand.
type Entry struct {
	Feed Feed

	UID      string
	Summary  string
	Location string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule      string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID of an overridden instance
}

// IsOverride reports whether e replaces one instance of a recurring entry.
func (e Entry) IsOverride() bool {
	return e.Recurrence != nil
}

// Parse decodes an ICS payload. Entries that cannot be understood are
// logged and skipped. All-day dates are anchored in loc.
func Parse(feed Feed, body []byte, loc *time.Location) ([]Entry, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", feed.ID, err)
	}

	entries := make([]Entry, 0)
	for _, ve := range cal.Events() {
		e, err := parseEvent(feed, ve, loc)
		if err != nil {
			appLog.Warn("skipping vevent", "feed", feed.ID, "err", err)
			continue
		}
		entries = append(entries, e)
	}

	appLog.Debug("ics parsed", "feed", feed.ID, "entries", len(entries))
	return entries, nil
}

func parseEvent(feed Feed, ve *ical.VEvent, loc *time.Location) (Entry, error) {
	e := Entry{Feed: feed}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		e.UID = p.Value
	}
	if e.UID == "" {
		return e, errors.New("missing UID")
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		e.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		e.Location = p.Value
	}

	for _, p := range ve.Properties {
		switch strings.ToUpper(p.IANAToken) {
		case "DTSTART":
			e.AllDay = isDateValue(p.Value, p.ICalParameters)
		case "RRULE":
			e.RRule = p.Value
		case "EXDATE":
			for _, part := range strings.Split(p.Value, ",") {
				if t, err := parseTime(part, p.ICalParameters, loc); err == nil {
					e.ExDates = append(e.ExDates, t)
				}
			}
		case "RECURRENCE-ID":
			if t, err := parseTime(p.Value, p.ICalParameters, loc); err == nil {
				e.Recurrence = &t
			}
		}
	}

	if e.AllDay {
		// Floating dates: pin them to loc instead of whatever zone the
		// library picked.
		p := ve.GetProperty(ical.ComponentPropertyDtStart)
		start, err := parseTime(p.Value, nil, loc)
		if err != nil {
			return e, fmt.Errorf("uid %s: dtstart: %w", e.UID, err)
		}
		e.Start = start
		e.End = start.AddDate(0, 0, 1)
		if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
			if end, err := parseTime(p.Value, nil, loc); err == nil && end.After(start) {
				e.End = end
			}
		}
		return e, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return e, fmt.Errorf("uid %s: dtstart: %w", e.UID, err)
	}
	e.Start = start
	end, err := ve.GetEndAt()
	if err != nil || end.Before(start) {
		end = start
	}
	e.End = end
	return e, nil
}

func isDateValue(v string, params map[string][]string) bool {
	if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(v, "T")
}

// parseTime handles the DATE, floating DATE-TIME, UTC and TZID forms used
// by EXDATE and RECURRENCE-ID.
func parseTime(v string, params map[string][]string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if tz, ok := params["TZID"]; ok && len(tz) > 0 {
		if l, err := time.LoadLocation(tz[0]); err == nil {
			loc = l
		}
	}
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
