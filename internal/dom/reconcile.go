package dom

import (
	"errors"
	"time"

	appLog "relcal/internal/log"
	"relcal/internal/relative"
	"relcal/internal/settings"
)

// Stats summarises one reconciliation pass.
type Stats struct {
	Disabled  bool `json:"disabled"`
	Events    int  `json:"events"`
	Skipped   int  `json:"skipped"`
	Inserted  int  `json:"inserted"`
	Updated   int  `json:"updated"`
	Removed   int  `json:"removed"`
	Unchanged int  `json:"unchanged"`
}

// Mutations is the number of writes the pass made to the document.
func (s Stats) Mutations() int {
	return s.Inserted + s.Updated + s.Removed
}

// Reconcile brings every event's marker in doc in line with its label at
// now. Each write is guarded by a comparison with the current marker, so
// running it again with unchanged inputs makes no further changes.
//
// Events whose date cannot be extracted keep whatever marker they have:
// the host page may be halfway through re-rendering them.
func Reconcile(doc Document, s settings.Settings, now time.Time) Stats {
	var st Stats

	if !s.Enabled {
		st.Disabled = true
		st.Removed = doc.RemoveAllMarkers()
		return st
	}

	for _, ev := range doc.Events() {
		st.Events++
		src := ev.Source()

		d, err := relative.Extract(src)
		if err != nil {
			st.Skipped++
			appLog.Debug("skipping event", "event_id", src.EventID, "err", err)
			continue
		}

		label := relative.Format(relative.Classify(now, d), d.AllDay, s.ShowYears)
		cur, exists := ev.Marker()

		if label == "" {
			if exists {
				ev.RemoveMarker()
				st.Removed++
			} else {
				st.Unchanged++
			}
			continue
		}

		class := ClassFor(d.AllDay)
		if !exists {
			if err := ev.InsertMarker(label, class); err != nil {
				st.Skipped++
				if !errors.Is(err, ErrTargetMissing) {
					appLog.Error("marker insert failed", err, "event_id", src.EventID)
				}
				continue
			}
			st.Inserted++
			continue
		}

		changed := false
		if cur.Text != label {
			ev.SetMarkerText(label)
			changed = true
		}
		if !sameClasses(cur.Class, class) {
			ev.SetMarkerClass(class)
			changed = true
		}
		if changed {
			st.Updated++
		} else {
			st.Unchanged++
		}
	}

	return st
}
