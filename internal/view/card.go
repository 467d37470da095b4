package view

import (
	"fmt"
	"time"

	"eventcal/internal/availability"
	"eventcal/internal/dateutil"
	"eventcal/internal/model"
	"eventcal/internal/regwindow"
)

// RegState is the registration state shown on a card.
type RegState string

const (
	// StateNone means the event does not take registrations.
	StateNone   RegState = "none"
	StateOpen   RegState = "open"
	StateClosed RegState = "closed"
	StateFull   RegState = "full"
)

// Action hands one occurrence to the registration form.
type Action struct {
	EventID      string        `json:"event_id"`
	InstanceDate dateutil.Date `json:"instance_date"`
}

// Card is one rendered Instance.
type Card struct {
	Key          string        `json:"key"`
	EventID      string        `json:"event_id"`
	InstanceDate dateutil.Date `json:"instance_date"`
	Name         string        `json:"name"`
	Location     string        `json:"location,omitempty"`
	Description  string        `json:"description,omitempty"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	DateLabel   string `json:"date_label"`
	MonthAbbr   string `json:"month_abbr"`
	DayOfMonth  int    `json:"day_of_month"`
	TimeLabel   string `json:"time_label"`
	LengthLabel string `json:"length_label"`
	RepeatLabel string `json:"repeat_label,omitempty"`

	State        RegState            `json:"state"`
	SpotsLabel   string              `json:"spots_label,omitempty"`
	Availability *model.Availability `json:"availability,omitempty"`
	Action       *Action             `json:"action,omitempty"`
}

// buildCard joins an instance with its availability (if known) and the
// registration window at now.
func buildCard(in model.Instance, avail availability.Map, policy regwindow.Policy, now time.Time, loc *time.Location) Card {
	start := in.InstanceDate.At(in.Time, loc)
	length := in.LengthMinutes
	if length <= 0 {
		length = model.DefaultLengthMinutes
	}

	c := Card{
		Key:          in.Key(),
		EventID:      in.ID,
		InstanceDate: in.InstanceDate,
		Name:         in.Name,
		Location:     in.Location,
		Description:  in.Description,
		Start:        start,
		End:          start.Add(time.Duration(length) * time.Minute),
		DateLabel:    FormatDate(in.InstanceDate),
		MonthAbbr:    in.InstanceDate.Month.String()[:3],
		DayOfMonth:   in.InstanceDate.Day,
		TimeLabel:    in.Time.Format12h(),
		LengthLabel:  FormatLength(length),
		RepeatLabel:  repeatLabel(in.Recurrence),
		State:        StateNone,
	}
	if !in.HasRegistration() {
		return c
	}

	a, known := avail.Lookup(in)
	if known {
		c.Availability = &a
		c.SpotsLabel = SpotsLabel(a)
	}

	switch {
	case !policy.IsOpen(in.Event, in.InstanceDate, now):
		c.State = StateClosed
	case known && a.IsFull:
		c.State = StateFull
	default:
		// Unknown availability still offers registration, without a count.
		c.State = StateOpen
		c.Action = &Action{EventID: in.ID, InstanceDate: in.InstanceDate}
	}
	return c
}

// FormatDate renders "Monday, June 9, 2025".
func FormatDate(d dateutil.Date) string {
	return fmt.Sprintf("%s, %s %d, %d", d.Weekday(), d.Month, d.Day, d.Year)
}

// FormatLength renders a duration in minutes as "3 hours", "1 hour 30
// minutes" or "45 minutes".
func FormatLength(minutes int) string {
	h, m := minutes/60, minutes%60
	unit := "hour"
	if h > 1 {
		unit = "hours"
	}
	switch {
	case h == 0:
		return fmt.Sprintf("%d minutes", m)
	case m == 0:
		return fmt.Sprintf("%d %s", h, unit)
	}
	return fmt.Sprintf("%d %s %d minutes", h, unit, m)
}

// SpotsLabel renders "Booked", "1 spot available" or "N spots available".
func SpotsLabel(a model.Availability) string {
	if a.IsFull {
		return "Booked"
	}
	if a.Available == 1 {
		return "1 spot available"
	}
	return fmt.Sprintf("%d spots available", a.Available)
}

func repeatLabel(r model.Recurrence) string {
	if l := r.Label(); l != "" {
		return "Repeats " + l
	}
	return ""
}
