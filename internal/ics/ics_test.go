package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var sampleICS = strings.ReplaceAll(`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//relcal//test//EN
BEGIN:VEVENT
UID:standup@test
DTSTAMP:20240701T000000Z
DTSTART:20240710T150000Z
DTEND:20240710T153000Z
SUMMARY:Standup
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20240712T150000Z
END:VEVENT
BEGIN:VEVENT
UID:standup@test
DTSTAMP:20240701T000000Z
RECURRENCE-ID:20240711T150000Z
DTSTART:20240711T170000Z
DTEND:20240711T173000Z
SUMMARY:Standup (moved)
END:VEVENT
BEGIN:VEVENT
UID:bday@test
DTSTAMP:20240701T000000Z
DTSTART;VALUE=DATE:20240712
DTEND;VALUE=DATE:20240713
SUMMARY:Birthday
RRULE:FREQ=YEARLY
END:VEVENT
BEGIN:VEVENT
UID:old@test
DTSTAMP:20240701T000000Z
DTSTART:20240101T100000Z
DTEND:20240101T110000Z
SUMMARY:Old
END:VEVENT
END:VCALENDAR
`, "\n", "\r\n")

func TestParse(t *testing.T) {
	entries, err := Parse(Feed{ID: "t"}, []byte(sampleICS), time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}

	base := entries[0]
	if base.RRule != "FREQ=DAILY;COUNT=5" || len(base.ExDates) != 1 || base.IsOverride() {
		t.Errorf("base entry = %+v", base)
	}
	if !entries[1].IsOverride() {
		t.Errorf("second entry should be an override")
	}
	bday := entries[2]
	if !bday.AllDay {
		t.Errorf("birthday should be all-day")
	}
	want := time.Date(2024, 7, 12, 0, 0, 0, 0, time.UTC)
	if !bday.Start.Equal(want) || !bday.End.Equal(want.AddDate(0, 0, 1)) {
		t.Errorf("birthday span = %v..%v", bday.Start, bday.End)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse(Feed{ID: "t"}, nil, time.UTC); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestExpand(t *testing.T) {
	entries, err := Parse(Feed{ID: "t"}, []byte(sampleICS), time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	start := time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)
	occs, err := Expand(entries, Window{Start: start, End: start.AddDate(0, 0, 7), Location: time.UTC})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	want := []struct {
		summary string
		start   time.Time
		allDay  bool
	}{
		{"Standup", time.Date(2024, 7, 10, 15, 0, 0, 0, time.UTC), false},
		{"Standup (moved)", time.Date(2024, 7, 11, 17, 0, 0, 0, time.UTC), false},
		{"Birthday", time.Date(2024, 7, 12, 0, 0, 0, 0, time.UTC), true},
		{"Standup", time.Date(2024, 7, 13, 15, 0, 0, 0, time.UTC), false},
		{"Standup", time.Date(2024, 7, 14, 15, 0, 0, 0, time.UTC), false},
	}
	if len(occs) != len(want) {
		for _, o := range occs {
			t.Logf("%s %s", o.Start, o.Summary)
		}
		t.Fatalf("occurrences = %d, want %d", len(occs), len(want))
	}
	for i, w := range want {
		o := occs[i]
		if o.Summary != w.summary || !o.Start.Equal(w.start) || o.AllDay != w.allDay {
			t.Errorf("occs[%d] = %s %v allDay=%v, want %s %v allDay=%v",
				i, o.Summary, o.Start, o.AllDay, w.summary, w.start, w.allDay)
		}
	}
	if occs[1].Key != "standup@test@2024-07-11T15:00:00Z" {
		t.Errorf("override key = %q", occs[1].Key)
	}
}

func TestExpandBadWindow(t *testing.T) {
	now := time.Now()
	if _, err := Expand(nil, Window{Start: now, End: now.Add(-time.Hour)}); err == nil {
		t.Fatal("expected error for inverted window")
	}
}

func TestFetchCaches(t *testing.T) {
	var hits, mode atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch mode.Load() {
		case 0:
			if r.Header.Get("If-None-Match") == `"v1"` {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write([]byte(sampleICS))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	feed := Feed{ID: "srv", URL: srv.URL + "/cal.ics?token=secret"}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		body, err := f.Fetch(ctx, feed)
		if err != nil {
			t.Fatalf("Fetch #%d: %v", i, err)
		}
		if string(body) != sampleICS {
			t.Fatalf("Fetch #%d returned unexpected body", i)
		}
	}

	mode.Store(1)
	body, err := f.Fetch(ctx, feed)
	if err != nil {
		t.Fatalf("Fetch with server error should fall back to cache: %v", err)
	}
	if string(body) != sampleICS {
		t.Fatal("cache fallback returned unexpected body")
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
}

func TestLoadLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.ics")
	if err := os.WriteFile(path, []byte(sampleICS), 0o600); err != nil {
		t.Fatal(err)
	}
	f := NewFetcher(t.TempDir(), nil)
	entries, errs := f.Load(context.Background(), []Feed{
		{ID: "local", URL: path},
		{ID: "missing", URL: filepath.Join(t.TempDir(), "nope.ics")},
	}, time.UTC)
	if len(entries) != 4 {
		t.Errorf("entries = %d, want 4", len(entries))
	}
	if len(errs) != 1 {
		t.Errorf("errs = %v, want one", errs)
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://example.com/private/basic.ics?token=abc")
	if got != "https://example.com/...(redacted)" {
		t.Errorf("redactURL = %q", got)
	}
	if strings.Contains(redactURL("not a url"), "not a url") {
		t.Error("unparseable url leaked")
	}
}
