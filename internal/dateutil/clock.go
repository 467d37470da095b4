package dateutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidClock = errors.New("invalid time of day")

// Clock is a wall-clock time of day in 24-hour form.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock accepts H:MM, HH:MM, HH:MM:SS and h:MM AM/PM.
func ParseClock(s string) (Clock, error) {
	return ParseClockIn(s, time.Local)
}

// ParseClockIn also accepts full timestamps, which spreadsheet backends emit
// for time-only cells (1899-12-30T17:00:00.000Z). Such instants are converted
// to loc before the hour and minute are read.
func ParseClockIn(s string, loc *time.Location) (Clock, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return Clock{}, fmt.Errorf("%w: empty", ErrInvalidClock)
	}
	if strings.Contains(s, "T") {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
		}
		if loc != nil {
			t = t.In(loc)
		}
		return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
	}

	upper := strings.ToUpper(s)
	meridiem := ""
	switch {
	case strings.HasSuffix(upper, "AM"):
		meridiem = "AM"
	case strings.HasSuffix(upper, "PM"):
		meridiem = "PM"
	}
	if meridiem != "" {
		upper = strings.TrimSpace(strings.TrimSuffix(upper, meridiem))
	}

	parts := strings.Split(upper, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}

	switch meridiem {
	case "":
		if h < 0 || h > 23 {
			return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
		}
	default:
		if h < 1 || h > 12 {
			return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
		}
		h %= 12
		if meridiem == "PM" {
			h += 12
		}
	}
	return Clock{Hour: h, Minute: m}, nil
}

func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Compare orders clocks within a day.
func (c Clock) Compare(o Clock) int {
	return sign((c.Hour*60 + c.Minute) - (o.Hour*60 + o.Minute))
}

// Format12h renders "9:00 AM" style labels.
func (c Clock) Format12h() string {
	ampm := "AM"
	if c.Hour >= 12 {
		ampm = "PM"
	}
	h := c.Hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, c.Minute, ampm)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
