// Package htmldoc implements dom.Document over a parsed HTML tree, for
// annotating saved calendar pages offline.
package htmldoc

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"relcal/internal/dom"
	"relcal/internal/relative"
)

// Document wraps a goquery document. It also satisfies engine.Target:
// Snapshot returns the document itself and Commit is a no-op, since
// writes land in the tree directly.
type Document struct {
	doc    *goquery.Document
	sel    dom.Selectors
	anchor dom.Anchor
}

// Parse reads an HTML page.
func Parse(r io.Reader, sel dom.Selectors, anchor dom.Anchor) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}
	sel.Normalize()
	return &Document{doc: doc, sel: sel, anchor: anchor}, nil
}

// ParseString is Parse for in-memory markup.
func ParseString(s string, sel dom.Selectors, anchor dom.Anchor) (*Document, error) {
	return Parse(strings.NewReader(s), sel, anchor)
}

func (d *Document) Events() []dom.Event {
	var out []dom.Event
	d.doc.Find(d.sel.Event).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &event{node: s, doc: d})
	})
	return out
}

func (d *Document) RemoveAllMarkers() int {
	markers := d.doc.Find("." + dom.MarkerClass)
	n := markers.Length()
	markers.Remove()
	return n
}

func (d *Document) Snapshot(context.Context) (dom.Document, error) {
	return d, nil
}

func (d *Document) Commit(context.Context, dom.Document) error {
	return nil
}

// Render writes the whole page back out.
func (d *Document) Render(w io.Writer) error {
	for _, n := range d.doc.Nodes {
		if err := html.Render(w, n); err != nil {
			return fmt.Errorf("htmldoc: render: %w", err)
		}
	}
	return nil
}

// String renders the page, ignoring errors.
func (d *Document) String() string {
	var b strings.Builder
	_ = d.Render(&b)
	return b.String()
}

type event struct {
	node *goquery.Selection
	doc  *Document
}

// title is the first Title candidate inside the event, or the event node.
func (e *event) title() *goquery.Selection {
	for _, sel := range e.doc.sel.Title {
		if t := e.node.Find(sel).First(); t.Length() > 0 {
			return t
		}
	}
	return e.node
}

func (e *event) marker() *goquery.Selection {
	return e.title().Find("." + dom.MarkerClass).First()
}

func (e *event) Source() relative.Source {
	sel := e.doc.sel
	src := relative.Source{EventID: e.node.AttrOr(sel.EventIDAttr, "")}

	if v, ok := e.node.Attr(sel.LabelAttr); ok && v != "" {
		src.Label = v
	} else if v, ok := e.title().Attr(sel.LabelAttr); ok && v != "" {
		src.Label = v
	} else {
		src.Label = e.node.Find(sel.LabelFallback).First().Text()
	}
	return src
}

func (e *event) Marker() (dom.Marker, bool) {
	m := e.marker()
	if m.Length() == 0 {
		return dom.Marker{}, false
	}
	return dom.Marker{Text: m.Text(), Class: m.AttrOr("class", "")}, true
}

func (e *event) InsertMarker(text, class string) error {
	title := e.title()
	if title.Length() == 0 {
		return dom.ErrTargetMissing
	}
	span := newSpan(text, class)

	if e.doc.anchor == dom.AnchorTitle {
		for _, sel := range e.doc.sel.TitleText {
			if ts := title.Find(sel).First(); ts.Length() > 0 {
				ts.BeforeNodes(span)
				return nil
			}
		}
	}
	title.PrependNodes(span)
	return nil
}

func (e *event) SetMarkerText(text string) {
	e.marker().SetText(text)
}

func (e *event) SetMarkerClass(class string) {
	e.marker().SetAttr("class", class)
}

func (e *event) RemoveMarker() {
	e.marker().Remove()
}

func newSpan(text, class string) *html.Node {
	span := &html.Node{
		Type:     html.ElementNode,
		Data:     "span",
		DataAtom: atom.Span,
		Attr:     []html.Attribute{{Key: "class", Val: class}},
	}
	span.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return span
}
