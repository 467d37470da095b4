package ics

import (
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"eventcal/internal/dateutil"
	"eventcal/internal/model"
)

const productID = "-//eventcal//event calendar//EN"

// Export renders events as a VCALENDAR, one VEVENT per series. Start and end
// are written in UTC. Unknown cadences are exported as a single occurrence.
func Export(events []model.Event, loc *time.Location, now time.Time) string {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRTimezone(loc.String())

	for _, ev := range events {
		start := ev.BaseDate.At(ev.Time, loc)
		length := ev.LengthMinutes
		if length <= 0 {
			length = model.DefaultLengthMinutes
		}

		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(now)
		ve.SetStartAt(start)
		ve.SetEndAt(start.Add(time.Duration(length) * time.Minute))
		ve.SetSummary(ev.Name)
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.RegistrationLimit != nil {
			ve.SetProperty(PropertyCapacity, strconv.Itoa(*ev.RegistrationLimit))
		}
		if rule, ok := ruleFor(ev, loc); ok {
			ve.SetProperty(ical.ComponentPropertyRrule, rule)
		}
	}
	return cal.Serialize()
}

// ruleFor builds the RRULE that reproduces the expander's cadence. Monthly
// series on day 29-31 clamp to the month end, which RFC 5545 spells with a
// negative BYMONTHDAY.
func ruleFor(ev model.Event, loc *time.Location) (string, bool) {
	opt := rrule.ROption{Interval: 1}
	switch ev.Recurrence.Kind {
	case model.RecurDaily:
		opt.Freq = rrule.DAILY
	case model.RecurWeekly:
		opt.Freq = rrule.WEEKLY
	case model.RecurEveryNDays:
		if ev.Recurrence.Interval <= 0 {
			return "", false
		}
		opt.Freq = rrule.DAILY
		opt.Interval = ev.Recurrence.Interval
		if opt.Interval%7 == 0 {
			opt.Freq = rrule.WEEKLY
			opt.Interval /= 7
		}
	case model.RecurMonthly:
		opt.Freq = rrule.MONTHLY
		switch day := ev.BaseDate.Day; {
		case day == 31:
			opt.Bymonthday = []int{-1}
		case day > 28:
			opt.Bymonthday = []int{day, -1}
			opt.Bysetpos = []int{1}
		}
	default:
		return "", false
	}
	if ev.RecurrenceEnd != nil {
		opt.Until = ev.RecurrenceEnd.At(dateutil.Clock{Hour: 23, Minute: 59}, loc).UTC()
	}
	return opt.RRuleString(), true
}
