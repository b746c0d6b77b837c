package browser

import (
	"relcal/internal/dom"
	"relcal/internal/relative"
)

// snapshot is what snapshotScript returns.
type snapshot struct {
	Events  []rawEvent `json:"events"`
	Markers int        `json:"markers"`
}

type rawEvent struct {
	Index       int    `json:"index"`
	EventID     string `json:"eventId"`
	Label       string `json:"label"`
	HasMarker   bool   `json:"hasMarker"`
	MarkerText  string `json:"markerText"`
	MarkerClass string `json:"markerClass"`
}

// Op kinds understood by applyScript.
const (
	opInsert = "insert"
	opText   = "text"
	opClass  = "class"
	opRemove = "remove"
)

// op is one pending write. Index and EventID locate the event node again
// at commit time; a node whose identifier changed in between is left alone.
type op struct {
	Kind    string `json:"kind"`
	Index   int    `json:"index"`
	EventID string `json:"eventId"`
	Text    string `json:"text,omitempty"`
	Class   string `json:"class,omitempty"`
}

// Document is a read snapshot of the live page. Writes are recorded and
// sent to the page in one batch by Page.Commit.
type Document struct {
	events    []*event
	markers   int
	removeAll bool
	ops       []op
}

func newDocument(s snapshot) *Document {
	d := &Document{markers: s.Markers}
	for _, raw := range s.Events {
		e := &event{doc: d, raw: raw}
		if raw.HasMarker {
			e.marker = &dom.Marker{Text: raw.MarkerText, Class: raw.MarkerClass}
		}
		d.events = append(d.events, e)
	}
	return d
}

func (d *Document) Events() []dom.Event {
	out := make([]dom.Event, len(d.events))
	for i, e := range d.events {
		out[i] = e
	}
	return out
}

func (d *Document) RemoveAllMarkers() int {
	n := d.markers
	if n > 0 {
		d.removeAll = true
	}
	d.markers = 0
	for _, e := range d.events {
		e.marker = nil
	}
	return n
}

// Pending reports whether Commit has anything to send.
func (d *Document) Pending() bool {
	return d.removeAll || len(d.ops) > 0
}

type event struct {
	doc    *Document
	raw    rawEvent
	marker *dom.Marker
}

func (e *event) Source() relative.Source {
	return relative.Source{EventID: e.raw.EventID, Label: e.raw.Label}
}

func (e *event) Marker() (dom.Marker, bool) {
	if e.marker == nil {
		return dom.Marker{}, false
	}
	return *e.marker, true
}

func (e *event) record(kind, text, class string) {
	e.doc.ops = append(e.doc.ops, op{
		Kind:    kind,
		Index:   e.raw.Index,
		EventID: e.raw.EventID,
		Text:    text,
		Class:   class,
	})
}

func (e *event) InsertMarker(text, class string) error {
	e.marker = &dom.Marker{Text: text, Class: class}
	e.doc.markers++
	e.record(opInsert, text, class)
	return nil
}

func (e *event) SetMarkerText(text string) {
	if e.marker == nil {
		return
	}
	e.marker.Text = text
	e.record(opText, text, "")
}

func (e *event) SetMarkerClass(class string) {
	if e.marker == nil {
		return
	}
	e.marker.Class = class
	e.record(opClass, "", class)
}

func (e *event) RemoveMarker() {
	if e.marker == nil {
		return
	}
	e.marker = nil
	e.doc.markers--
	e.record(opRemove, "", "")
}
