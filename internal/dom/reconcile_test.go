package dom

import (
	"testing"
	"time"

	"relcal/internal/relative"
	"relcal/internal/settings"
)

type fakeEvent struct {
	src    relative.Source
	marker *Marker
	writes int
}

func (e *fakeEvent) Source() relative.Source { return e.src }

func (e *fakeEvent) Marker() (Marker, bool) {
	if e.marker == nil {
		return Marker{}, false
	}
	return *e.marker, true
}

func (e *fakeEvent) InsertMarker(text, class string) error {
	e.marker = &Marker{Text: text, Class: class}
	e.writes++
	return nil
}

func (e *fakeEvent) SetMarkerText(text string) {
	e.marker.Text = text
	e.writes++
}

func (e *fakeEvent) SetMarkerClass(class string) {
	e.marker.Class = class
	e.writes++
}

func (e *fakeEvent) RemoveMarker() {
	e.marker = nil
	e.writes++
}

type fakeDoc struct {
	events []*fakeEvent
}

func (d *fakeDoc) Events() []Event {
	out := make([]Event, len(d.events))
	for i, e := range d.events {
		out[i] = e
	}
	return out
}

func (d *fakeDoc) RemoveAllMarkers() int {
	n := 0
	for _, e := range d.events {
		if e.marker != nil {
			e.marker = nil
			n++
		}
	}
	return n
}

var (
	testNow = time.Date(2024, 7, 10, 9, 0, 0, 0, time.UTC)
	on      = settings.Settings{Enabled: true, ShowYears: true}
)

func newDoc(labels ...string) *fakeDoc {
	d := &fakeDoc{}
	for _, l := range labels {
		d.events = append(d.events, &fakeEvent{src: relative.Source{Label: l}})
	}
	return d
}

func TestReconcileInsertsAndIsIdempotent(t *testing.T) {
	doc := newDoc(
		"Wednesday, July 10, 2024",              // all-day today: no marker
		"14:00 to 15:00, Review, July 10, 2024", // 5h
		"Thursday, July 11, 2024",               // 1d
		"Lunch",                                 // unparseable
	)

	st := Reconcile(doc, on, testNow)
	if st.Inserted != 2 || st.Skipped != 1 || st.Unchanged != 1 {
		t.Fatalf("first pass stats: %+v", st)
	}
	if got := doc.events[1].marker; got == nil || got.Text != "5h" || got.Class != ClassFor(false) {
		t.Errorf("timed marker: %+v", got)
	}
	if got := doc.events[2].marker; got == nil || got.Text != "1d" || got.Class != ClassFor(true) {
		t.Errorf("all-day marker: %+v", got)
	}

	st = Reconcile(doc, on, testNow)
	if st.Mutations() != 0 {
		t.Errorf("second pass should not mutate, got %+v", st)
	}
}

func TestReconcileUpdatesChangedLabel(t *testing.T) {
	doc := newDoc("Thursday, July 11, 2024")
	doc.events[0].marker = &Marker{Text: "2d", Class: ClassFor(true)}

	st := Reconcile(doc, on, testNow)
	if st.Updated != 1 || doc.events[0].marker.Text != "1d" {
		t.Fatalf("expected update to 1d, got %+v %+v", st, doc.events[0].marker)
	}
	if doc.events[0].writes != 1 {
		t.Errorf("expected only the text to be written, got %d writes", doc.events[0].writes)
	}
}

func TestReconcileClassOrderIgnored(t *testing.T) {
	doc := newDoc("Thursday, July 11, 2024")
	doc.events[0].marker = &Marker{Text: "1d", Class: AllDayClass + " " + MarkerClass}

	if st := Reconcile(doc, on, testNow); st.Mutations() != 0 {
		t.Errorf("reordered classes should not be rewritten: %+v", st)
	}
}

func TestReconcileRemovesEmptyLabel(t *testing.T) {
	doc := newDoc("Wednesday, July 10, 2024")
	doc.events[0].marker = &Marker{Text: "1d", Class: ClassFor(true)}

	st := Reconcile(doc, on, testNow)
	if st.Removed != 1 || doc.events[0].marker != nil {
		t.Errorf("expected marker removal, got %+v", st)
	}
}

func TestReconcileKeepsMarkerOnParseMiss(t *testing.T) {
	doc := newDoc("Loading…")
	doc.events[0].marker = &Marker{Text: "3d", Class: ClassFor(true)}

	st := Reconcile(doc, on, testNow)
	if st.Skipped != 1 || st.Mutations() != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
	if doc.events[0].marker == nil || doc.events[0].marker.Text != "3d" {
		t.Errorf("prior marker should survive a parse miss")
	}
}

func TestReconcileDisabledRemovesAll(t *testing.T) {
	doc := newDoc("Thursday, July 11, 2024", "Friday, July 12, 2024", "Lunch")
	doc.events[0].marker = &Marker{Text: "1d", Class: ClassFor(true)}
	doc.events[2].marker = &Marker{Text: "9d", Class: ClassFor(true)}

	st := Reconcile(doc, settings.Settings{Enabled: false}, testNow)
	if !st.Disabled || st.Removed != 2 || st.Inserted != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	for i, e := range doc.events {
		if e.marker != nil {
			t.Errorf("event %d still has a marker", i)
		}
	}
}

func TestReconcileShowYears(t *testing.T) {
	doc := newDoc("Thursday, August 14, 2025")

	Reconcile(doc, settings.Settings{Enabled: true, ShowYears: false}, testNow)
	if got := doc.events[0].marker.Text; got != "400d" {
		t.Errorf("expected 400d, got %q", got)
	}

	Reconcile(doc, on, testNow)
	if got := doc.events[0].marker.Text; got != "1y35d" {
		t.Errorf("expected 1y35d, got %q", got)
	}
}

func TestParseAnchor(t *testing.T) {
	if ParseAnchor("START") != AnchorStart {
		t.Error("expected AnchorStart")
	}
	if ParseAnchor("icon") != AnchorTitle {
		t.Error("unknown anchors should fall back to title")
	}
}
