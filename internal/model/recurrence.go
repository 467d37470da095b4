package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type RecurrenceKind int

const (
	RecurNone RecurrenceKind = iota
	RecurDaily
	RecurWeekly
	RecurMonthly
	RecurEveryNDays
	// RecurUnknown keeps a tag no backend mapping understood. It expands
	// like RecurNone.
	RecurUnknown
)

var ErrInvalidInterval = errors.New("recurrence interval must be a positive number of days")

// Recurrence is the cadence of an event series, decided once at
// normalization time.
type Recurrence struct {
	Kind RecurrenceKind
	// Interval is the day count for RecurEveryNDays.
	Interval int
	// Tag is the raw value for RecurUnknown.
	Tag string
}

func None() Recurrence    { return Recurrence{Kind: RecurNone} }
func Daily() Recurrence   { return Recurrence{Kind: RecurDaily} }
func Weekly() Recurrence  { return Recurrence{Kind: RecurWeekly} }
func Monthly() Recurrence { return Recurrence{Kind: RecurMonthly} }

func EveryNDays(n int) Recurrence {
	return Recurrence{Kind: RecurEveryNDays, Interval: n}
}

func Unknown(tag string) Recurrence {
	return Recurrence{Kind: RecurUnknown, Tag: tag}
}

// ParseRecurrence maps a backend repeat tag ("daily", "weekly", "monthly",
// "none", "" or a day count such as "14") to a Recurrence. Zero means no
// repetition; a negative count is an error.
func ParseRecurrence(tag string) (Recurrence, error) {
	t := strings.ToLower(strings.TrimSpace(tag))
	switch t {
	case "", "none", "no", "false", "null", "0":
		return None(), nil
	case "daily":
		return Daily(), nil
	case "weekly":
		return Weekly(), nil
	case "monthly":
		return Monthly(), nil
	}
	if n, err := strconv.Atoi(t); err == nil {
		return FromInterval(n)
	}
	return Unknown(tag), nil
}

// FromInterval maps a numeric repeat interval in days.
func FromInterval(n int) (Recurrence, error) {
	switch {
	case n == 0:
		return None(), nil
	case n < 0:
		return Recurrence{}, fmt.Errorf("%w: %d", ErrInvalidInterval, n)
	}
	return EveryNDays(n), nil
}

func (r Recurrence) Repeats() bool {
	return r.Kind != RecurNone && r.Kind != RecurUnknown
}

func (r Recurrence) Validate() error {
	if r.Kind == RecurEveryNDays && r.Interval <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, r.Interval)
	}
	return nil
}

// StepDays is the fixed day spacing for day-based cadences, 0 otherwise.
func (r Recurrence) StepDays() int {
	switch r.Kind {
	case RecurDaily:
		return 1
	case RecurWeekly:
		return 7
	case RecurEveryNDays:
		return r.Interval
	}
	return 0
}

// String is the canonical tag used on the wire.
func (r Recurrence) String() string {
	switch r.Kind {
	case RecurDaily:
		return "daily"
	case RecurWeekly:
		return "weekly"
	case RecurMonthly:
		return "monthly"
	case RecurEveryNDays:
		return strconv.Itoa(r.Interval)
	case RecurUnknown:
		return r.Tag
	}
	return "none"
}

// Label is the human text shown after "Repeats ".
func (r Recurrence) Label() string {
	switch r.Kind {
	case RecurDaily:
		return "Daily"
	case RecurWeekly:
		return "Weekly"
	case RecurMonthly:
		return "Monthly"
	case RecurEveryNDays:
		switch r.Interval {
		case 1:
			return "Daily"
		case 7:
			return "Weekly"
		}
		return fmt.Sprintf("Every %d days", r.Interval)
	}
	return ""
}

func (r Recurrence) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Recurrence) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int
		if nerr := json.Unmarshal(b, &n); nerr != nil {
			return err
		}
		s = strconv.Itoa(n)
	}
	parsed, err := ParseRecurrence(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
