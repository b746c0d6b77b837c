// Package dom reconciles relative-time markers with the events of a
// calendar document.
package dom

import (
	"errors"
	"sort"
	"strings"

	"relcal/internal/relative"
)

// ErrTargetMissing means the node a marker should be attached to is gone.
var ErrTargetMissing = errors.New("target node missing")

// Marker classes. MarkerClass identifies every marker; the second class
// tells all-day and timed events apart.
const (
	MarkerClass = "date-prefix-span"
	AllDayClass = "date-prefix-all-day"
	TimedClass  = "date-prefix-timed"
)

// ClassFor returns the full class attribute of a marker.
func ClassFor(allDay bool) string {
	if allDay {
		return MarkerClass + " " + AllDayClass
	}
	return MarkerClass + " " + TimedClass
}

// Marker is the current state of an event's marker.
type Marker struct {
	Text  string
	Class string
}

// Event is one calendar entry in a Document.
type Event interface {
	Source() relative.Source
	// Marker reports the existing marker, if any.
	Marker() (Marker, bool)
	// InsertMarker creates the marker at the document's anchor position.
	InsertMarker(text, class string) error
	SetMarkerText(text string)
	SetMarkerClass(class string)
	RemoveMarker()
}

// Document is a snapshot of the calendar's event nodes.
type Document interface {
	Events() []Event
	// RemoveAllMarkers removes every marker and reports how many existed.
	RemoveAllMarkers() int
}

// Anchor selects where a new marker goes inside the event's title element.
type Anchor string

const (
	// AnchorTitle inserts before the title text span, or as the first
	// child of the title element when there is none.
	AnchorTitle Anchor = "title"
	// AnchorStart always inserts as the first child of the title element.
	AnchorStart Anchor = "start"
)

// ParseAnchor maps a config value to an Anchor; unknown values give AnchorTitle.
func ParseAnchor(s string) Anchor {
	if Anchor(strings.ToLower(strings.TrimSpace(s))) == AnchorStart {
		return AnchorStart
	}
	return AnchorTitle
}

// Selectors locate the parts of an event in the host page.
type Selectors struct {
	// Event matches one node per calendar entry.
	Event string `yaml:"event" json:"event"`
	// EventIDAttr carries the encoded identifier.
	EventIDAttr string `yaml:"event_id_attr" json:"event_id_attr"`
	// Title candidates, first match inside the event wins; the event node
	// itself is the last resort.
	Title []string `yaml:"title" json:"title"`
	// TitleText candidates inside the title element used by AnchorTitle.
	TitleText []string `yaml:"title_text" json:"title_text"`
	// LabelAttr is read from the event, then from the title element.
	LabelAttr string `yaml:"label_attr" json:"label_attr"`
	// LabelFallback is a node whose text holds the label when no
	// attribute carries it.
	LabelFallback string `yaml:"label_fallback" json:"label_fallback"`
}

// DefaultSelectors match the current Google Calendar markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Event:         "[data-eventid]",
		EventIDAttr:   "data-eventid",
		Title:         []string{".WBi6vc", `[role="button"]`},
		TitleText:     []string{".WBi6vc", ".I0UMhf"},
		LabelAttr:     "aria-label",
		LabelFallback: ".XuJrye",
	}
}

// Normalize fills empty fields from DefaultSelectors.
func (s *Selectors) Normalize() {
	def := DefaultSelectors()
	if s.Event == "" {
		s.Event = def.Event
	}
	if s.EventIDAttr == "" {
		s.EventIDAttr = def.EventIDAttr
	}
	if len(s.Title) == 0 {
		s.Title = def.Title
	}
	if len(s.TitleText) == 0 {
		s.TitleText = def.TitleText
	}
	if s.LabelAttr == "" {
		s.LabelAttr = def.LabelAttr
	}
	if s.LabelFallback == "" {
		s.LabelFallback = def.LabelFallback
	}
}

// sameClasses compares class attributes as token sets.
func sameClasses(a, b string) bool {
	fa, fb := strings.Fields(a), strings.Fields(b)
	if len(fa) != len(fb) {
		return false
	}
	sort.Strings(fa)
	sort.Strings(fb)
	for i := range fa {
		if fa[i] != fb[i] {
			return false
		}
	}
	return true
}
