package attendance

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage layout of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar day with no zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.parseInto(v)
	case []byte:
		return d.parseInto(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) parseInto(s string) error {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a wall-clock time with one second resolution, stored as
// seconds since midnight.
type TimeOfDay int32

// ClockOf returns the time of day of t in t's own location.
func ClockOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return NewTimeOfDay(h, m, s)
}

func NewTimeOfDay(h, m, s int) TimeOfDay {
	return TimeOfDay(h*3600 + m*60 + s)
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS with an optional fractional part.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockOf(t), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

func (t TimeOfDay) String() string {
	v := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", v/3600, v/60%60, v%60)
}

// On returns the instant t falls on for date d in loc.
func (t TimeOfDay) On(d Date, loc *time.Location) time.Time {
	v := int(t)
	return time.Date(d.Year, d.Month, d.Day, v/3600, v/60%60, v%60, 0, loc)
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t = ClockOf(v)
		return nil
	case string:
		return t.parseInto(v)
	case []byte:
		return t.parseInto(string(v))
	case int64:
		// microseconds since midnight
		*t = TimeOfDay(v / 1_000_000)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}

func (t *TimeOfDay) parseInto(s string) error {
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return t.parseInto(s)
}

// Record is one presence interval of one person on one day. A record with
// no check-in is an absence placeholder.
type Record struct {
	ID       int64      `json:"id"`
	PersonID int64      `json:"person_id"`
	Date     Date       `json:"date"`
	CheckIn  *TimeOfDay `json:"check_in"`
	CheckOut *TimeOfDay `json:"check_out"`
}

// Open reports a check-in without a check-out.
func (r Record) Open() bool { return r.CheckIn != nil && r.CheckOut == nil }

// Closed reports a completed in/out cycle.
func (r Record) Closed() bool { return r.CheckIn != nil && r.CheckOut != nil }

// Placeholder reports an absence marker.
func (r Record) Placeholder() bool { return r.CheckIn == nil }

// Kind is the outcome of resolving a scan.
type Kind string

const (
	Entrada   Kind = "ENTRADA"
	Saida     Kind = "SAIDA"
	DayClosed Kind = "DAY_CLOSED"
)

// Outcome is what Resolve did, with the record it touched.
type Outcome struct {
	Kind   Kind   `json:"kind"`
	Record Record `json:"record"`
}

// Policy decides what a scan after a closed cycle means.
type Policy string

const (
	// PolicyReEntry opens a new cycle after a closed one.
	PolicyReEntry Policy = "reentry"
	// PolicyClosedDay treats the first closed cycle as the end of the day.
	PolicyClosedDay Policy = "closed_day"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyReEntry, PolicyClosedDay:
		return p, nil
	default:
		return "", fmt.Errorf("unknown attendance policy %q", s)
	}
}
