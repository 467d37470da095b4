package recur

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"eventcal/internal/dateutil"
	"eventcal/internal/model"
)

func d(s string) dateutil.Date { return dateutil.MustParse(s) }

func datePtr(s string) *dateutil.Date {
	v := d(s)
	return &v
}

func dates(instances []model.Instance) []string {
	out := make([]string, 0, len(instances))
	for _, in := range instances {
		out = append(out, in.InstanceDate.String())
	}
	return out
}

func event(id, base string, r model.Recurrence) model.Event {
	return model.Event{
		ID:            id,
		Name:          "Event " + id,
		BaseDate:      d(base),
		Time:          dateutil.MustParseClock("09:00"),
		LengthMinutes: model.DefaultLengthMinutes,
		Recurrence:    r,
	}
}

func TestExpand_SingleEvent(t *testing.T) {
	t.Parallel()

	today := d("2025-06-15")
	testCases := []struct {
		name string
		base string
		want []string
	}{
		{name: "today", base: "2025-06-15", want: []string{"2025-06-15"}},
		{name: "inside horizon", base: "2025-06-20", want: []string{"2025-06-20"}},
		{name: "last horizon day", base: "2025-06-29", want: []string{"2025-06-29"}},
		{name: "after horizon", base: "2025-06-30", want: []string{}},
		{name: "yesterday", base: "2025-06-14", want: []string{}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res, err := Expand([]model.Event{event("1", tc.base, model.None())}, Config{Today: today, HorizonDays: 14})
			require.NoError(t, err)
			assert.Equal(t, tc.want, dates(res.Instances))
		})
	}
}

func TestExpand_MonthlyWithEnd(t *testing.T) {
	t.Parallel()

	ev := event("1", "2025-01-01", model.Monthly())
	ev.RecurrenceEnd = datePtr("2025-12-31")

	res, err := Expand([]model.Event{ev}, Config{Today: d("2025-06-15"), HorizonDays: 60})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-07-01", "2025-08-01"}, dates(res.Instances))
}

func TestExpand_MonthlyClampsToMonthEnd(t *testing.T) {
	t.Parallel()

	ev := event("1", "2025-01-31", model.Monthly())

	res, err := Expand([]model.Event{ev}, Config{Today: d("2025-02-01"), HorizonDays: 90})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-02-28", "2025-03-31", "2025-04-30"}, dates(res.Instances))
}

func TestExpand_EveryNDaysFastForward(t *testing.T) {
	t.Parallel()

	ev := event("1", "2025-01-01", model.EveryNDays(3))

	res, err := Expand([]model.Event{ev}, Config{Today: d("2025-01-10"), HorizonDays: 7})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-10", "2025-01-13", "2025-01-16"}, dates(res.Instances))
}

func TestExpand_RecurrenceEndBeforeToday(t *testing.T) {
	t.Parallel()

	ev := event("1", "2024-01-01", model.Daily())
	ev.RecurrenceEnd = datePtr("2025-01-01")

	res, err := Expand([]model.Event{ev}, Config{Today: d("2025-06-01"), HorizonDays: 30})
	require.NoError(t, err)
	assert.Empty(t, res.Instances)
}

func TestExpand_RecurrenceEndInclusive(t *testing.T) {
	t.Parallel()

	ev := event("1", "2025-06-01", model.Daily())
	ev.RecurrenceEnd = datePtr("2025-06-03")

	res, err := Expand([]model.Event{ev}, Config{Today: d("2025-06-01"), HorizonDays: 30})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-01", "2025-06-02", "2025-06-03"}, dates(res.Instances))
}

func TestExpand_FutureBaseDate(t *testing.T) {
	t.Parallel()

	ev := event("1", "2025-06-20", model.Weekly())

	res, err := Expand([]model.Event{ev}, Config{Today: d("2025-06-01"), HorizonDays: 30})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-20", "2025-06-27"}, dates(res.Instances))
}

func TestExpand_InvalidIntervalSkipped(t *testing.T) {
	t.Parallel()

	bad := event("bad", "2025-06-01", model.EveryNDays(0))
	neg := event("neg", "2025-06-01", model.EveryNDays(-2))
	good := event("good", "2025-06-02", model.None())

	res, err := Expand([]model.Event{bad, neg, good}, Config{Today: d("2025-06-01"), HorizonDays: 7})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-02"}, dates(res.Instances))
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, "bad", res.Skipped[0].EventID)
	assert.ErrorIs(t, res.Skipped[0].Err, model.ErrInvalidInterval)
	assert.Equal(t, "neg", res.Skipped[1].EventID)
}

func TestExpand_UnknownRecurrenceActsAsSingle(t *testing.T) {
	t.Parallel()

	inRange := event("1", "2025-06-03", model.Unknown("fortnightly"))
	past := event("2", "2025-05-01", model.Unknown("fortnightly"))

	res, err := Expand([]model.Event{inRange, past}, Config{Today: d("2025-06-01"), HorizonDays: 30})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-03"}, dates(res.Instances))
}

func TestExpand_IterationGuard(t *testing.T) {
	t.Parallel()

	ev := event("1", "2025-01-01", model.Daily())

	res, err := Expand([]model.Event{ev}, Config{Today: d("2025-01-01"), HorizonDays: 50, MaxIterations: 10})
	require.NoError(t, err)
	assert.Len(t, res.Instances, 10)
	assert.Equal(t, []string{"1"}, res.Truncated)
}

func TestExpand_SeriesFillingGuardExactly(t *testing.T) {
	t.Parallel()

	ev := event("1", "2025-01-01", model.Daily())

	// Horizon 999 is 1000 in-range days, exactly the default cap.
	res, err := Expand([]model.Event{ev}, Config{Today: d("2025-01-01"), HorizonDays: 999})
	require.NoError(t, err)
	assert.Len(t, res.Instances, DefaultMaxIterations)
	assert.Empty(t, res.Truncated)

	// Same with a series end landing on the cap.
	ev.RecurrenceEnd = datePtr("2025-01-10")
	res, err = Expand([]model.Event{ev}, Config{Today: d("2025-01-01"), HorizonDays: 50, MaxIterations: 10})
	require.NoError(t, err)
	assert.Len(t, res.Instances, 10)
	assert.Empty(t, res.Truncated)
}

func TestExpand_NegativeHorizon(t *testing.T) {
	t.Parallel()

	_, err := Expand(nil, Config{Today: d("2025-01-01"), HorizonDays: -1})
	require.Error(t, err)
}

func TestExpand_OrderingAndTieBreak(t *testing.T) {
	t.Parallel()

	late := event("late", "2025-06-02", model.None())
	late.Time = dateutil.MustParseClock("18:00")
	early := event("early", "2025-06-02", model.None())
	early.Time = dateutil.MustParseClock("08:00")
	first := event("first", "2025-06-03", model.None())
	second := event("second", "2025-06-03", model.None())
	daily := event("daily", "2025-05-01", model.Daily())
	daily.Time = dateutil.MustParseClock("12:00")

	res, err := Expand([]model.Event{late, first, early, second, daily}, Config{Today: d("2025-06-02"), HorizonDays: 1})
	require.NoError(t, err)

	ids := make([]string, 0, len(res.Instances))
	for _, in := range res.Instances {
		ids = append(ids, in.ID+"@"+in.InstanceDate.String())
	}
	assert.Equal(t, []string{
		"early@2025-06-02",
		"daily@2025-06-02",
		"late@2025-06-02",
		"first@2025-06-03",
		"second@2025-06-03",
		"daily@2025-06-03",
	}, ids)
}

func TestExpand_Idempotent(t *testing.T) {
	t.Parallel()

	events := []model.Event{
		event("1", "2024-02-29", model.Monthly()),
		event("2", "2023-03-15", model.EveryNDays(5)),
		event("3", "2025-06-10", model.None()),
	}
	cfg := Config{Today: d("2025-06-01"), HorizonDays: 120}

	a, err := Expand(events, cfg)
	require.NoError(t, err)
	b, err := Expand(events, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestExpand_BoundsProperty(t *testing.T) {
	t.Parallel()

	today := d("2025-03-10")
	recurrences := []model.Recurrence{
		model.Daily(), model.Weekly(), model.Monthly(),
		model.EveryNDays(2), model.EveryNDays(9), model.EveryNDays(45),
	}
	bases := []string{"2019-12-31", "2025-02-28", "2025-03-10", "2025-03-11", "2025-05-31"}
	ends := []*dateutil.Date{nil, datePtr("2025-04-01"), datePtr("2025-03-09")}

	for _, r := range recurrences {
		for _, base := range bases {
			for _, end := range ends {
				ev := event("x", base, r)
				ev.RecurrenceEnd = end

				res, err := Expand([]model.Event{ev}, Config{Today: today, HorizonDays: 60})
				require.NoError(t, err)

				limit := today.AddDays(60)
				if end != nil && end.Before(limit) {
					limit = *end
				}
				for i, in := range res.Instances {
					assert.False(t, in.InstanceDate.Before(today), "%s %s: %s before today", r, base, in.InstanceDate)
					assert.False(t, in.InstanceDate.After(limit), "%s %s: %s after limit", r, base, in.InstanceDate)
					if i > 0 {
						assert.True(t, res.Instances[i-1].InstanceDate.Before(in.InstanceDate))
					}
				}
			}
		}
	}
}

// naive steps one interval at a time from the base date using rrule-go, the
// slow reference the fast-forward must agree with.
func naive(t *testing.T, ev model.Event, today dateutil.Date, horizon int) []string {
	t.Helper()

	opt := rrule.ROption{
		Dtstart: time.Date(ev.BaseDate.Year, ev.BaseDate.Month, ev.BaseDate.Day, 0, 0, 0, 0, time.UTC),
	}
	switch ev.Recurrence.Kind {
	case model.RecurDaily:
		opt.Freq, opt.Interval = rrule.DAILY, 1
	case model.RecurWeekly:
		opt.Freq, opt.Interval = rrule.WEEKLY, 1
	case model.RecurEveryNDays:
		opt.Freq, opt.Interval = rrule.DAILY, ev.Recurrence.Interval
	default:
		t.Fatalf("naive reference does not cover %s", ev.Recurrence)
	}
	r, err := rrule.NewRRule(opt)
	require.NoError(t, err)

	end := today.AddDays(horizon)
	from := time.Date(today.Year, today.Month, today.Day, 0, 0, 0, 0, time.UTC)
	to := time.Date(end.Year, end.Month, end.Day, 0, 0, 0, 0, time.UTC)

	out := []string{}
	for _, occ := range r.Between(from, to, true) {
		out = append(out, occ.Format("2006-01-02"))
	}
	return out
}

func TestExpand_FastForwardMatchesReference(t *testing.T) {
	t.Parallel()

	today := d("2025-06-15")
	testCases := []struct {
		name    string
		ev      model.Event
		horizon int
	}{
		{name: "weekly 400 days ago", ev: event("1", today.AddDays(-400).String(), model.Weekly()), horizon: 14},
		{name: "weekly 399 days ago", ev: event("1", today.AddDays(-399).String(), model.Weekly()), horizon: 14},
		{name: "daily years ago", ev: event("1", "2019-01-01", model.Daily()), horizon: 30},
		{name: "every 3 days", ev: event("1", "2024-11-30", model.EveryNDays(3)), horizon: 21},
		{name: "every 13 days", ev: event("1", "2022-02-17", model.EveryNDays(13)), horizon: 90},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res, err := Expand([]model.Event{tc.ev}, Config{Today: today, HorizonDays: tc.horizon})
			require.NoError(t, err)
			assert.Equal(t, naive(t, tc.ev, today, tc.horizon), dates(res.Instances))
		})
	}
}

func TestExpand_FastForwardIsConstantSteps(t *testing.T) {
	t.Parallel()

	// A guard far below the number of weeks elapsed still yields the full
	// horizon, so the loop cannot be stepping from the base date.
	ev := event("1", d("2025-06-15").AddDays(-400).String(), model.Weekly())

	res, err := Expand([]model.Event{ev}, Config{Today: d("2025-06-15"), HorizonDays: 14, MaxIterations: 4})
	require.NoError(t, err)
	assert.Len(t, res.Instances, 2)
	assert.Empty(t, res.Truncated)
}
