package ics

import (
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "relcal/internal/log"
	"relcal/internal/model"
)

const defaultMaxPerEntry = 5000

// Window is the inclusive range of occurrences to produce.
type Window struct {
	Start time.Time
	End   time.Time
	// Location is the display zone; nil means time.Local.
	Location *time.Location
	// MaxPerEntry caps expansion of a single recurring entry.
	MaxPerEntry int
}

// Expand turns entries into concrete occurrences inside w, applying RRULE,
// EXDATE and RECURRENCE-ID overrides. The result is sorted by start.
func Expand(entries []Entry, w Window) ([]model.Occurrence, error) {
	if w.End.Before(w.Start) {
		return nil, errors.New("ics: window end before start")
	}
	if w.Location == nil {
		w.Location = time.Local
	}
	if w.MaxPerEntry <= 0 {
		w.MaxPerEntry = defaultMaxPerEntry
	}

	overrides := make(map[string][]Entry)
	for _, e := range entries {
		if e.IsOverride() {
			overrides[e.UID] = append(overrides[e.UID], e)
		}
	}

	var out []model.Occurrence
	for _, e := range entries {
		if e.IsOverride() {
			continue
		}
		ov := overrides[e.UID]
		if e.RRule == "" {
			if overlaps(e.Start, e.End, w) {
				out = append(out, occurrence(e, e.Start, e.End, ov, w.Location))
			}
			continue
		}
		out = append(out, expandRecurring(e, ov, w)...)
	}

	slices.SortStableFunc(out, model.ByStart)
	return out, nil
}

func expandRecurring(e Entry, overrides []Entry, w Window) []model.Occurrence {
	r, err := rrule.StrToRRule(e.RRule)
	if err != nil {
		appLog.Error("bad RRULE", err, "uid", e.UID, "rrule", e.RRule)
		return nil
	}
	r.DTStart(e.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(e.Start.Location()))
	}

	dur := e.End.Sub(e.Start)
	// Include instances that started before the window but still run.
	from := w.Start.Add(-dur).In(e.Start.Location())
	starts := set.Between(from, w.End.In(e.Start.Location()), true)
	if len(starts) > w.MaxPerEntry {
		appLog.Warn("recurrence truncated", "uid", e.UID, "cap", w.MaxPerEntry)
		starts = starts[:w.MaxPerEntry]
	}

	out := make([]model.Occurrence, 0, len(starts))
	for _, s := range starts {
		end := s.Add(dur)
		if e.AllDay {
			end = s.AddDate(0, 0, int(dur.Round(24*time.Hour)/(24*time.Hour)))
		}
		if !overlaps(s, end, w) {
			continue
		}
		out = append(out, occurrence(e, s, end, overrides, w.Location))
	}
	return out
}

// occurrence builds the instance starting at start, replaced by an
// override whose RECURRENCE-ID matches.
func occurrence(e Entry, start, end time.Time, overrides []Entry, loc *time.Location) model.Occurrence {
	key := start
	for _, ov := range overrides {
		if ov.Recurrence.Equal(start) {
			e, start, end = ov, ov.Start, ov.End
			break
		}
	}
	return model.Occurrence{
		FeedID:   e.Feed.ID,
		UID:      e.UID,
		Key:      e.UID + "@" + key.UTC().Format(time.RFC3339),
		Summary:  e.Summary,
		Location: e.Location,
		AllDay:   e.AllDay,
		Start:    start.In(loc),
		End:      end.In(loc),
	}
}

func overlaps(start, end time.Time, w Window) bool {
	if end.Equal(start) {
		return !start.Before(w.Start) && !start.After(w.End)
	}
	return start.Before(w.End) && end.After(w.Start) || start.Equal(w.End)
}
