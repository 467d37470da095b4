// Package ics converts between iCalendar feeds and event series. Parse
// imports VEVENTs whose RRULE fits one of the supported cadences; Export
// publishes the current series as a subscribable calendar.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"eventcal/internal/dateutil"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// PropertyCapacity carries an event's registration limit. Events without
// it do not offer registration.
const PropertyCapacity = ical.ComponentProperty("X-EVENTCAL-CAPACITY")

const propertyRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")

// Parse reads a calendar body into event series. Date-times are converted
// to loc; floating times are read as loc wall-clock. VEVENTs that cannot be
// used are logged and skipped.
func Parse(body []byte, sourceID string, loc *time.Location) ([]model.Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", sourceID)
		return nil, err
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve, sourceID, loc)
		if perr != nil {
			appLog.Error("ics vevent skipped", perr, "id", sourceID)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", sourceID, "event_count", len(events))
	return events, nil
}

var errOverride = errors.New("recurrence override not supported")

func parseVEvent(ve *ical.VEvent, sourceID string, loc *time.Location) (model.Event, error) {
	ev := model.Event{
		LengthMinutes: model.DefaultLengthMinutes,
		Source:        sourceID,
	}

	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return ev, errors.New("missing UID")
	}
	ev.ID = uid
	ev.Name = propValue(ve, ical.ComponentPropertySummary)
	ev.Location = propValue(ve, ical.ComponentPropertyLocation)
	ev.Description = propValue(ve, ical.ComponentPropertyDescription)

	if ve.GetProperty(propertyRecurrenceID) != nil {
		return ev, fmt.Errorf("%s: %w", uid, errOverride)
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return ev, fmt.Errorf("%s: missing DTSTART", uid)
	}
	start, allDay, err := propTime(startProp, loc)
	if err != nil {
		return ev, fmt.Errorf("%s: DTSTART: %w", uid, err)
	}
	ev.BaseDate = dateutil.FromTime(start)
	if !allDay {
		ev.Time = dateutil.Clock{Hour: start.Hour(), Minute: start.Minute()}
	}

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		if end, _, err := propTime(endProp, loc); err == nil {
			if mins := int(end.Sub(start) / time.Minute); mins > 0 {
				ev.LengthMinutes = mins
			}
		}
	}

	if v := propValue(ve, PropertyCapacity); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ev.RegistrationLimit = &n
		}
	}

	if raw := propValue(ve, ical.ComponentPropertyRrule); raw != "" {
		rec, end := recurrenceFromRule(raw, ev.BaseDate, loc)
		ev.Recurrence = rec
		ev.RecurrenceEnd = end
		if rec.Kind == model.RecurUnknown {
			appLog.Warn("ics rrule not supported, keeping first occurrence only", "uid", uid, "rrule", raw)
		}
	}
	if len(ve.GetProperties(ical.ComponentPropertyExdate)) > 0 {
		appLog.Debug("ics EXDATE ignored", "uid", uid)
	}

	return ev, ev.Validate()
}

// recurrenceFromRule maps the RRULE shapes the expander can reproduce.
// Everything else becomes model.Unknown so the series shows once.
func recurrenceFromRule(raw string, base dateutil.Date, loc *time.Location) (model.Recurrence, *dateutil.Date) {
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return model.Unknown(raw), nil
	}
	interval := opt.Interval
	if interval <= 0 {
		interval = 1
	}
	if len(opt.Bymonth) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 ||
		len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 || len(opt.Byeaster) > 0 {
		return model.Unknown(raw), nil
	}

	var rec model.Recurrence
	switch opt.Freq {
	case rrule.DAILY:
		if len(opt.Byweekday) > 0 || len(opt.Bymonthday) > 0 || len(opt.Bysetpos) > 0 {
			return model.Unknown(raw), nil
		}
		rec = model.Daily()
		if interval > 1 {
			rec = model.EveryNDays(interval)
		}
	case rrule.WEEKLY:
		if len(opt.Bymonthday) > 0 || len(opt.Bysetpos) > 0 || !onlyWeekday(opt.Byweekday, base.Weekday()) {
			return model.Unknown(raw), nil
		}
		rec = model.Weekly()
		if interval > 1 {
			rec = model.EveryNDays(7 * interval)
		}
	case rrule.MONTHLY:
		if interval != 1 || len(opt.Byweekday) > 0 || !clampedMonthDay(opt.Bymonthday, opt.Bysetpos, base) {
			return model.Unknown(raw), nil
		}
		rec = model.Monthly()
	default:
		return model.Unknown(raw), nil
	}

	var end *dateutil.Date
	switch {
	case !opt.Until.IsZero():
		d := dateutil.FromTime(opt.Until.In(loc))
		end = &d
	case opt.Count > 0:
		d := lastByCount(rec, base, opt.Count)
		end = &d
	}
	return rec, end
}

func onlyWeekday(days []rrule.Weekday, want time.Weekday) bool {
	switch len(days) {
	case 0:
		return true
	case 1:
		// rrule counts Monday as 0.
		return days[0].N() == 0 && time.Weekday((days[0].Day()+1)%7) == want
	}
	return false
}

// clampedMonthDay accepts the BYMONTHDAY forms Export writes for a
// month-end clamped series, plus a plain restatement of the base day.
func clampedMonthDay(monthDays, setPos []int, base dateutil.Date) bool {
	switch {
	case len(monthDays) == 0 && len(setPos) == 0:
		return true
	case len(setPos) == 0 && len(monthDays) == 1 && monthDays[0] == base.Day:
		return base.Day <= 28
	case len(setPos) == 0 && len(monthDays) == 1 && monthDays[0] == -1:
		return base.Day == 31
	case len(setPos) == 1 && setPos[0] == 1 && len(monthDays) == 2:
		return monthDays[0] == base.Day && monthDays[1] == -1 && base.Day > 28
	}
	return false
}

func lastByCount(rec model.Recurrence, base dateutil.Date, count int) dateutil.Date {
	if rec.Kind == model.RecurMonthly {
		return base.AddMonths(count - 1)
	}
	return base.AddDays(rec.StepDays() * (count - 1))
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	prop := ve.GetProperty(p)
	if prop == nil {
		return ""
	}
	return strings.TrimSpace(prop.Value)
}

// propTime reads a DATE or DATE-TIME property. UTC values and TZID values
// are converted to loc; an unknown TZID is read as loc.
func propTime(prop *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	v := strings.TrimSpace(prop.Value)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	vs := prop.ICalParameters["VALUE"]
	if (len(vs) > 0 && strings.EqualFold(vs[0], "DATE")) || !strings.Contains(v, "T") {
		t, err := time.ParseInLocation("20060102", v[:min(len(v), 8)], loc)
		return t, true, err
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t.In(loc), false, err
	}

	in := loc
	if tz := prop.ICalParameters["TZID"]; len(tz) > 0 {
		if l, err := time.LoadLocation(strings.Trim(tz[0], `"`)); err == nil {
			in = l
		}
	}
	t, err := time.ParseInLocation("20060102T150405", v, in)
	return t.In(loc), false, err
}
