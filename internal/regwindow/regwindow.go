// Package regwindow decides whether sign-ups for an event instance are still
// accepted.
package regwindow

import (
	"time"

	"eventcal/internal/dateutil"
	"eventcal/internal/model"
)

// DefaultCutoff closes registration this long before an instance starts.
const DefaultCutoff = 24 * time.Hour

// Policy is a pure function of (event, instance date, now).
type Policy struct {
	Cutoff time.Duration
	// Location interprets the event's wall-clock start time. If nil,
	// time.Local is used.
	Location *time.Location
}

func New(cutoff time.Duration, loc *time.Location) Policy {
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	return Policy{Cutoff: cutoff, Location: loc}
}

// IsOpen reports whether registration for the instance on date is open at
// now. Events without a registration limit are always open.
func (p Policy) IsOpen(ev model.Event, date dateutil.Date, now time.Time) bool {
	if !ev.HasRegistration() {
		return true
	}
	return now.Before(p.Closes(ev, date))
}

// Closes is the instant registration for the instance closes.
func (p Policy) Closes(ev model.Event, date dateutil.Date) time.Time {
	cutoff := p.Cutoff
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	return date.At(ev.Time, p.Location).Add(-cutoff)
}
