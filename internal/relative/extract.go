package relative

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	appLog "relcal/internal/log"
)

var (
	// ErrParseMiss means no known date pattern matched the source.
	ErrParseMiss = errors.New("no date pattern matched")
	// ErrDecodeFailure means an encoded birthday identifier could not be decoded.
	ErrDecodeFailure = errors.New("malformed birthday identifier")
)

// BirthdayPrefix marks event identifiers whose payload carries the date.
const BirthdayPrefix = "bday_"

// Source is the raw material of one calendar entry as found in the page.
type Source struct {
	// EventID is the encoded identifier (data-eventid).
	EventID string
	// Label is the human-readable accessible label.
	Label string
}

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}

// Date is a calendar date extracted from a Source. Time is nil for
// all-day events.
type Date struct {
	Year   int
	Month  time.Month
	Day    int
	Time   *Clock
	AllDay bool
}

// In returns the instant of d in loc: midnight for all-day events, the
// attached time of day otherwise.
func (d Date) In(loc *time.Location) time.Time {
	h, m := 0, 0
	if d.Time != nil {
		h, m = d.Time.Hour, d.Time.Minute
	}
	return time.Date(d.Year, d.Month, d.Day, h, m, 0, 0, loc)
}

func (d Date) String() string {
	s := fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
	if d.Time != nil {
		s += fmt.Sprintf(" %02d:%02d", d.Time.Hour, d.Time.Minute)
	}
	return s
}

// Matcher recognises one textual date layout.
type Matcher struct {
	Name  string
	Match func(text string) (Date, bool)
}

const monthAlternation = `(January|February|March|April|May|June|July|August|September|October|November|December)`

var (
	cjkDateRe     = regexp.MustCompile(`(\d{4})年\s?(\d{1,2})月\s?(\d{1,2})日`)
	koreanDateRe  = regexp.MustCompile(`(\d{4})년\s?(\d{1,2})월\s?(\d{1,2})일`)
	englishTailRe = regexp.MustCompile(`(?i)(?:.*,\s)` + monthAlternation + `\s+(\d{1,2})(?:\s[–\d\s\w]*)?,\s+(\d{4})$`)
	englishAnyRe  = regexp.MustCompile(`(?i)\b` + monthAlternation + `\s+(\d{1,2}),\s+(\d{4})\b`)
	clockRe       = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	birthdayRe    = regexp.MustCompile(`_(\d{8})`)
)

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// Matchers are tried in order; the first hit wins.
var Matchers = []Matcher{
	{Name: "cjk", Match: numericMatcher(cjkDateRe)},
	{Name: "korean", Match: numericMatcher(koreanDateRe)},
	{Name: "english", Match: englishMatcher(englishTailRe)},
	{Name: "english-inline", Match: englishMatcher(englishAnyRe)},
}

// Extract derives the event date from src. Birthday identifiers are
// decoded first; on failure the label is parsed instead. The returned
// error wraps ErrParseMiss when nothing could be extracted.
func Extract(src Source) (Date, error) {
	if strings.HasPrefix(src.EventID, BirthdayPrefix) {
		d, err := DecodeBirthday(src.EventID)
		if err == nil {
			return d, nil
		}
		appLog.Debug("birthday id not decodable, trying label", "event_id", src.EventID, "err", err)
	}

	label := strings.TrimSpace(src.Label)
	if label == "" {
		return Date{}, fmt.Errorf("relative: empty label: %w", ErrParseMiss)
	}

	for _, m := range Matchers {
		d, ok := m.Match(label)
		if !ok {
			continue
		}
		if c, ok := findClock(label); ok {
			d.Time = &c
			d.AllDay = false
		} else {
			d.AllDay = true
		}
		return d, nil
	}

	return Date{}, fmt.Errorf("relative: %q: %w", label, ErrParseMiss)
}

// DecodeBirthday decodes a "bday_<base64>" identifier whose payload holds
// a "_YYYYMMDD" marker. The result is always all-day.
func DecodeBirthday(id string) (Date, error) {
	if !strings.HasPrefix(id, BirthdayPrefix) {
		return Date{}, fmt.Errorf("relative: missing %q prefix: %w", BirthdayPrefix, ErrDecodeFailure)
	}
	payload, err := decodeBase64(strings.TrimPrefix(id, BirthdayPrefix))
	if err != nil {
		return Date{}, fmt.Errorf("relative: base64: %v: %w", err, ErrDecodeFailure)
	}

	m := birthdayRe.FindStringSubmatch(string(payload))
	if m == nil {
		return Date{}, fmt.Errorf("relative: no date in payload: %w", ErrDecodeFailure)
	}
	digits := m[1]
	year, _ := strconv.Atoi(digits[0:4])
	month, _ := strconv.Atoi(digits[4:6])
	day, _ := strconv.Atoi(digits[6:8])

	d, ok := newDate(year, month, day)
	if !ok {
		return Date{}, fmt.Errorf("relative: invalid date %s: %w", digits, ErrDecodeFailure)
	}
	d.AllDay = true
	return d, nil
}

func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func numericMatcher(re *regexp.Regexp) func(string) (Date, bool) {
	return func(text string) (Date, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return Date{}, false
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return newDate(year, month, day)
	}
}

func englishMatcher(re *regexp.Regexp) func(string) (Date, bool) {
	return func(text string) (Date, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return Date{}, false
		}
		month := monthIndex(m[1])
		if month == 0 {
			return Date{}, false
		}
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return newDate(year, month, day)
	}
}

// monthIndex returns the 1-based month for an English month name, or 0.
func monthIndex(name string) int {
	for i, n := range monthNames {
		if strings.EqualFold(n, name) {
			return i + 1
		}
	}
	return 0
}

func findClock(text string) (Clock, bool) {
	m := clockRe.FindStringSubmatch(text)
	if m == nil {
		return Clock{}, false
	}
	h, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return Clock{Hour: h, Minute: minute}, true
}

// newDate rejects dates that would silently roll over (month 13, Feb 30).
func newDate(year, month, day int) (Date, bool) {
	if month < 1 || month > 12 || day < 1 {
		return Date{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return Date{}, false
	}
	return Date{Year: year, Month: time.Month(month), Day: day}, true
}
