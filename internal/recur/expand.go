package recur

import (
	"errors"
	"fmt"
	"slices"

	"eventcal/internal/dateutil"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

const (
	DefaultMaxIterations = 1000
)

var ErrMaxIterations = errors.New("recurrence iteration guard tripped")

// Config controls one expansion pass.
type Config struct {
	// Today is the first date eligible for an instance.
	Today dateutil.Date

	// HorizonDays bounds the window to [Today, Today+HorizonDays].
	HorizonDays int

	// MaxIterations caps the emit loop per event. If zero,
	// DefaultMaxIterations is used.
	MaxIterations int
}

// Skipped records an event excluded from expansion.
type Skipped struct {
	EventID string
	Err     error
}

// Result wraps the merged instance list plus what was left out.
type Result struct {
	Instances []model.Instance
	// Skipped lists malformed events that produced nothing.
	Skipped []Skipped
	// Truncated lists event IDs whose emission hit MaxIterations.
	Truncated []string
}

// Expand turns event series into the ordered concrete instances inside
// [cfg.Today, cfg.Today+cfg.HorizonDays]. Repeating series whose base date is
// in the past are fast-forwarded in closed form, so the cost depends on the
// horizon and not on how old the series is.
//
// Output is sorted by (instance date, time); equal keys keep input order.
// Expand is pure: identical inputs yield identical output.
func Expand(events []model.Event, cfg Config) (Result, error) {
	var result Result

	if cfg.HorizonDays < 0 {
		return result, fmt.Errorf("expand: negative horizon %d", cfg.HorizonDays)
	}
	if cfg.Today.IsZero() {
		return result, errors.New("expand: today is not set")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	endDate := cfg.Today.AddDays(cfg.HorizonDays)
	out := make([]model.Instance, 0, len(events))

	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			result.Skipped = append(result.Skipped, Skipped{EventID: ev.ID, Err: err})
			appLog.Error("expand: event skipped", err, "id", ev.ID, "name", ev.Name)
			continue
		}

		dates, err := expandEvent(ev, cfg.Today, endDate, cfg.MaxIterations)
		if errors.Is(err, ErrMaxIterations) {
			result.Truncated = append(result.Truncated, ev.ID)
			appLog.Error("expand: truncated occurrences for event", err,
				"id", ev.ID,
				"cap", cfg.MaxIterations,
				"recurrence", ev.Recurrence.String(),
			)
		}

		for _, d := range dates {
			out = append(out, model.Instance{Event: ev, InstanceDate: d})
		}
	}

	slices.SortStableFunc(out, func(a, b model.Instance) int {
		if c := a.InstanceDate.Compare(b.InstanceDate); c != 0 {
			return c
		}
		return a.Time.Compare(b.Time)
	})

	result.Instances = out
	appLog.Debug("expand completed",
		"events", len(events),
		"instances", len(out),
		"today", cfg.Today,
		"horizon_days", cfg.HorizonDays,
	)
	return result, nil
}

// expandEvent returns the occurrence dates of a single series inside
// [today, end].
func expandEvent(ev model.Event, today, end dateutil.Date, maxIter int) ([]dateutil.Date, error) {
	if !ev.Recurrence.Repeats() {
		if ev.Recurrence.Kind == model.RecurUnknown {
			appLog.Warn("expand: unknown recurrence, treating as single event",
				"id", ev.ID, "tag", ev.Recurrence.Tag)
		}
		if inRange(ev.BaseDate, today, end) {
			return []dateutil.Date{ev.BaseDate}, nil
		}
		return nil, nil
	}

	var dates []dateutil.Date
	k := firstIndex(ev, today)
	for iter := 0; ; iter++ {
		cand := occurrence(ev, k)
		if cand.After(end) {
			break
		}
		if ev.RecurrenceEnd != nil && cand.After(*ev.RecurrenceEnd) {
			break
		}
		// Only trips when another in-range candidate would be emitted.
		if iter >= maxIter {
			return dates, ErrMaxIterations
		}
		// The fast-forward guarantees this, but past dates are never emitted.
		if !cand.Before(today) {
			dates = append(dates, cand)
		}
		k++
	}
	return dates, nil
}

// occurrence returns the k-th occurrence counting the base date as 0. Months
// are always counted from the base date, so a series on the 31st lands on
// each month's last day without drifting.
func occurrence(ev model.Event, k int) dateutil.Date {
	if ev.Recurrence.Kind == model.RecurMonthly {
		return ev.BaseDate.AddMonths(k)
	}
	return ev.BaseDate.AddDays(k * ev.Recurrence.StepDays())
}

// firstIndex is the index of the first occurrence on or after today.
func firstIndex(ev model.Event, today dateutil.Date) int {
	if !ev.BaseDate.Before(today) {
		return 0
	}

	if ev.Recurrence.Kind == model.RecurMonthly {
		// Month lengths vary: start one month short of the calendar-month
		// distance and step forward.
		k := ev.BaseDate.MonthsUntil(today) - 1
		if k < 0 {
			k = 0
		}
		for occurrence(ev, k).Before(today) {
			k++
		}
		return k
	}

	step := ev.Recurrence.StepDays()
	elapsed := ev.BaseDate.DaysUntil(today)
	return (elapsed + step - 1) / step
}

func inRange(d, start, end dateutil.Date) bool {
	return !d.Before(start) && !d.After(end)
}
