package htmldoc

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"relcal/internal/dom"
	"relcal/internal/settings"
)

var now = time.Date(2024, 7, 10, 9, 0, 0, 0, time.UTC)

const page = `<!DOCTYPE html>
<html><body><div role="grid">
  <div data-eventid="ev1" aria-label="Thursday, July 11, 2024">
    <div role="button"><span class="WBi6vc">Holiday</span></div>
  </div>
  <div data-eventid="ev2">
    <div role="button" aria-label="14:00 to 15:00, Review, July 10, 2024"><span class="I0UMhf">Review</span></div>
  </div>
  <div data-eventid="ev3">
    <div role="button"><span class="XuJrye">Wednesday, July 10, 2024</span><span class="I0UMhf">All day today</span></div>
  </div>
  <div data-eventid="BDAY" aria-label="not a date">
    <div role="button"><span class="I0UMhf">Sam's birthday</span></div>
  </div>
  <div data-eventid="ev5" aria-label="Loading">
    <div role="button"><span class="date-prefix-span date-prefix-all-day">3d</span><span class="I0UMhf">Pending</span></div>
  </div>
</div></body></html>`

func load(t *testing.T, anchor dom.Anchor) *Document {
	t.Helper()
	id := "bday_" + base64.StdEncoding.EncodeToString([]byte("people/c1_20240712"))
	doc, err := ParseString(strings.Replace(page, "BDAY", id, 1), dom.DefaultSelectors(), anchor)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	return doc
}

func markerText(t *testing.T, doc *Document, eventID string) (string, bool) {
	t.Helper()
	m := doc.doc.Find(`[data-eventid="` + eventID + `"] .` + dom.MarkerClass)
	if m.Length() == 0 {
		return "", false
	}
	return m.Text(), true
}

func TestReconcileAnnotatesPage(t *testing.T) {
	doc := load(t, dom.AnchorTitle)
	on := settings.Settings{Enabled: true, ShowYears: true}

	st := dom.Reconcile(doc, on, now)
	if st.Events != 5 || st.Inserted != 3 || st.Skipped != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}

	tests := []struct {
		id   string
		want string
		has  bool
	}{
		{"ev1", "1d", true},
		{"ev2", "5h", true},
		{"ev3", "", false},
		{"ev5", "3d", true},
	}
	for _, tt := range tests {
		got, has := markerText(t, doc, tt.id)
		if has != tt.has || got != tt.want {
			t.Errorf("%s: expected (%q, %v), got (%q, %v)", tt.id, tt.want, tt.has, got, has)
		}
	}

	// Birthday on July 12 is two days out, decoded from the identifier.
	bday := doc.doc.Find(`[data-eventid^="bday_"] .` + dom.MarkerClass)
	if bday.Text() != "2d" || !bday.HasClass(dom.AllDayClass) {
		t.Errorf("birthday marker: %q class=%q", bday.Text(), bday.AttrOr("class", ""))
	}

	timed := doc.doc.Find(`[data-eventid="ev2"] .` + dom.MarkerClass)
	if !timed.HasClass(dom.TimedClass) {
		t.Errorf("timed marker class: %q", timed.AttrOr("class", ""))
	}

	before := doc.String()
	st = dom.Reconcile(doc, on, now)
	if st.Mutations() != 0 {
		t.Errorf("second pass mutated: %+v", st)
	}
	if after := doc.String(); after != before {
		t.Errorf("second pass changed the markup")
	}
}

func TestAnchorPlacement(t *testing.T) {
	tests := []struct {
		anchor dom.Anchor
		// class of the node right after the marker in ev2
		next string
	}{
		{dom.AnchorTitle, "I0UMhf"},
		{dom.AnchorStart, "I0UMhf"},
	}
	for _, tt := range tests {
		doc := load(t, tt.anchor)
		dom.Reconcile(doc, settings.Settings{Enabled: true}, now)
		m := doc.doc.Find(`[data-eventid="ev2"] .` + dom.MarkerClass)
		if !m.Next().HasClass(tt.next) {
			t.Errorf("%s: marker followed by %q", tt.anchor, m.Next().AttrOr("class", ""))
		}
	}

	// In ev3 the title span is not the first child, so the anchors differ.
	doc := load(t, dom.AnchorTitle)
	doc.doc.Find(`[data-eventid="ev3"]`).SetAttr("aria-label", "Friday, July 12, 2024")
	dom.Reconcile(doc, settings.Settings{Enabled: true}, now)
	m := doc.doc.Find(`[data-eventid="ev3"] .` + dom.MarkerClass)
	if !m.Prev().HasClass("XuJrye") || !m.Next().HasClass("I0UMhf") {
		t.Errorf("title anchor should sit right before the title span")
	}

	doc = load(t, dom.AnchorStart)
	doc.doc.Find(`[data-eventid="ev3"]`).SetAttr("aria-label", "Friday, July 12, 2024")
	dom.Reconcile(doc, settings.Settings{Enabled: true}, now)
	m = doc.doc.Find(`[data-eventid="ev3"] .` + dom.MarkerClass)
	if m.Prev().Length() != 0 {
		t.Errorf("start anchor should be the first child")
	}
}

func TestDisabledStripsMarkers(t *testing.T) {
	doc := load(t, dom.AnchorTitle)
	dom.Reconcile(doc, settings.Settings{Enabled: true}, now)

	st := dom.Reconcile(doc, settings.Settings{Enabled: false}, now)
	if st.Removed != 4 {
		t.Errorf("expected 4 markers removed, got %+v", st)
	}
	if n := doc.doc.Find("." + dom.MarkerClass).Length(); n != 0 {
		t.Errorf("%d markers left", n)
	}
}

func TestSourceFallbacks(t *testing.T) {
	doc := load(t, dom.AnchorTitle)
	got := map[string]string{}
	for _, ev := range doc.Events() {
		src := ev.Source()
		got[src.EventID] = src.Label
	}
	if got["ev1"] != "Thursday, July 11, 2024" {
		t.Errorf("event attribute label: %q", got["ev1"])
	}
	if got["ev2"] != "14:00 to 15:00, Review, July 10, 2024" {
		t.Errorf("title attribute label: %q", got["ev2"])
	}
	if got["ev3"] != "Wednesday, July 10, 2024" {
		t.Errorf("fallback text label: %q", got["ev3"])
	}
}

func TestRenderRoundTrip(t *testing.T) {
	doc := load(t, dom.AnchorTitle)
	dom.Reconcile(doc, settings.Settings{Enabled: true}, now)

	again, err := goquery.NewDocumentFromReader(strings.NewReader(doc.String()))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if n := again.Find("." + dom.MarkerClass).Length(); n != 4 {
		t.Errorf("expected 4 markers after render, got %d", n)
	}
}
