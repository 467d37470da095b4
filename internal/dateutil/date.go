// Package dateutil provides calendar dates and times of day that carry no
// timezone. Dates are compared as (year, month, day) tuples, never as
// timestamps, so a viewer's UTC offset cannot shift an event to another day.
package dateutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const layoutISODate = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// Date is a calendar date with no time-of-day component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// New builds a Date, normalizing out-of-range values the way time.Date does
// (e.g. January 32 becomes February 1).
func New(year int, month time.Month, day int) Date {
	return FromTime(time.Date(year, month, day, 12, 0, 0, 0, time.UTC))
}

// FromTime takes the calendar date of t in t's own location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return FromTime(now.In(loc))
}

// Parse accepts YYYY-MM-DD only.
func Parse(s string) (Date, error) {
	return parseISO(strings.TrimSpace(s))
}

// ParseIn accepts the canonical YYYY-MM-DD form plus the alternate forms
// produced by the event backends:
//
//   - ISO timestamps such as 2025-01-26T08:00:00.000Z (spreadsheet exports);
//     the instant is converted to loc before the date is taken.
//   - M/D/YYYY (spreadsheet display format).
//   - YYYYMMDD (iCalendar DATE values).
func ParseIn(s string, loc *time.Location) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if loc == nil {
		loc = time.Local
	}

	switch {
	case strings.Count(s, "/") == 2:
		parts := strings.Split(s, "/")
		m, err1 := strconv.Atoi(parts[0])
		d, err2 := strconv.Atoi(parts[1])
		y, err3 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || err3 != nil {
			return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		return validated(y, m, d, s)
	case len(s) == len(layoutISODate):
		return parseISO(s)
	case strings.Contains(s, "T") && len(s) > len(layoutISODate):
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return FromTime(t.In(loc)), nil
		}
		// Local timestamp without offset: keep its written date.
		return parseISO(s[:len(layoutISODate)])
	case len(s) == 8:
		t, err := time.Parse("20060102", s)
		if err != nil {
			return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		return FromTime(t), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// MustParse is Parse for literals in tests and defaults.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func parseISO(s string) (Date, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || len(parts[0]) != 4 {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	y, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	d, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return validated(y, m, d, s)
}

// validated rejects values time.Date would silently roll over (e.g. 02-30).
func validated(y, m, d int, raw string) (Date, error) {
	out := New(y, time.Month(m), d)
	if out.Year != y || int(out.Month) != m || out.Day != d {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return out, nil
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// String returns the zero-padded YYYY-MM-DD form.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(int(d.Month) - int(o.Month))
	default:
		return sign(d.Day - o.Day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// utcNoon anchors arithmetic at noon UTC, which has no DST transitions.
func (d Date) utcNoon() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
}

func (d Date) AddDays(n int) Date {
	return New(d.Year, d.Month, d.Day+n)
}

// AddMonths moves n months forward, clamping the day to the target month's
// length: 2025-01-31 + 1 month is 2025-02-28.
func (d Date) AddMonths(n int) Date {
	first := New(d.Year, d.Month+time.Month(n), 1)
	day := d.Day
	if last := DaysInMonth(first.Year, first.Month); day > last {
		day = last
	}
	return Date{Year: first.Year, Month: first.Month, Day: day}
}

// DaysUntil is the signed number of days from d to o.
func (d Date) DaysUntil(o Date) int {
	return int(o.utcNoon().Sub(d.utcNoon()).Hours() / 24)
}

// MonthsUntil is the signed number of calendar months from d's month to o's
// month, ignoring days.
func (d Date) MonthsUntil(o Date) int {
	return (o.Year-d.Year)*12 + int(o.Month) - int(d.Month)
}

func (d Date) Weekday() time.Weekday {
	return d.utcNoon().Weekday()
}

// StartOfWeek returns the most recent weekStart on or before d.
func (d Date) StartOfWeek(weekStart time.Weekday) Date {
	back := (int(d.Weekday()) - int(weekStart) + 7) % 7
	return d.AddDays(-back)
}

func (d Date) StartOfMonth() Date {
	return Date{Year: d.Year, Month: d.Month, Day: 1}
}

// At returns the instant at clock c on date d in loc.
func (d Date) At(c Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
