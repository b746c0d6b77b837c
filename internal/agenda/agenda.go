// Package agenda prints ICS occurrences with the same relative labels the
// page annotator writes.
package agenda

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"relcal/internal/model"
	"relcal/internal/relative"
)

// Item is an occurrence with its label. Label is empty for all-day events
// today and for timed events that already started today.
type Item struct {
	model.Occurrence
	Label  string
	Offset relative.Offset
}

// Build labels occurrences relative to now. Past occurrences are kept;
// their labels are negative.
func Build(occs []model.Occurrence, now time.Time, showYears bool) []Item {
	now = relative.Now(now)
	items := make([]Item, 0, len(occs))
	for _, o := range occs {
		start := o.Start.In(now.Location())
		if o.AllDay {
			start = time.Date(o.Start.Year(), o.Start.Month(), o.Start.Day(), 0, 0, 0, 0, now.Location())
		}
		off := relative.ClassifyAt(now, start)
		items = append(items, Item{
			Occurrence: o,
			Offset:     off,
			Label:      relative.Format(off, o.AllDay, showYears),
		})
	}
	return items
}

// Styles controls Render output.
type Styles struct {
	Day    lipgloss.Style
	Label  lipgloss.Style
	Past   lipgloss.Style
	Time   lipgloss.Style
	Title  lipgloss.Style
	Muted  lipgloss.Style
	Marker lipgloss.Style
}

var (
	accent = lipgloss.Color("#7C3AED")
	muted  = lipgloss.Color("#6B7280")
	warn   = lipgloss.Color("#F59E0B")
)

// DefaultStyles is a small colored theme.
func DefaultStyles() Styles {
	return Styles{
		Day:    lipgloss.NewStyle().Bold(true).Foreground(accent).MarginTop(1),
		Label:  lipgloss.NewStyle().Bold(true).Width(8).Align(lipgloss.Right),
		Past:   lipgloss.NewStyle().Foreground(muted).Width(8).Align(lipgloss.Right),
		Time:   lipgloss.NewStyle().Foreground(muted).Width(7),
		Title:  lipgloss.NewStyle(),
		Muted:  lipgloss.NewStyle().Foreground(muted),
		Marker: lipgloss.NewStyle().Foreground(warn).Width(8).Align(lipgloss.Right),
	}
}

// PlainStyles renders without color or padding escapes, for pipes and tests.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	col := plain.Width(8).Align(lipgloss.Right)
	return Styles{
		Day:    plain,
		Label:  col,
		Past:   col,
		Time:   plain.Width(7),
		Title:  plain,
		Muted:  plain,
		Marker: col,
	}
}

// Render writes items grouped by day.
func Render(w io.Writer, items []Item, st Styles) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, st.Muted.Render("no upcoming events"))
		return err
	}

	var (
		b       strings.Builder
		lastDay string
	)
	for _, it := range items {
		day := it.Start.Format("Mon Jan 2 2006")
		if day != lastDay {
			b.WriteString(st.Day.Render(day))
			b.WriteByte('\n')
			lastDay = day
		}

		label := it.Label
		labelStyle := st.Label
		switch {
		case label == "":
			label = "today"
			labelStyle = st.Marker
		case it.Offset.Days < 0 || it.Offset.Hours < 0:
			labelStyle = st.Past
		}

		clock := "all-day"
		if !it.AllDay {
			clock = it.Start.Format("15:04")
		}

		line := lipgloss.JoinHorizontal(lipgloss.Top,
			labelStyle.Render(label),
			"  ",
			st.Time.Render(clock),
			" ",
			st.Title.Render(it.Summary),
		)
		b.WriteString(line)
		if it.Location != "" {
			b.WriteString(st.Muted.Render("  @ " + it.Location))
		}
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}
