package model

import (
	"fmt"

	"eventcal/internal/dateutil"
)

// DefaultLengthMinutes applies when a source omits or garbles an event's length.
const DefaultLengthMinutes = 180

// Event is one logical event series after normalization at the source
// boundary. Downstream code never sees backend-specific record shapes.
type Event struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// BaseDate is the first/reference occurrence; it may lie in the past.
	BaseDate      dateutil.Date  `json:"base_date"`
	Time          dateutil.Clock `json:"time"`
	LengthMinutes int            `json:"length_minutes"`

	Location    string `json:"location"`
	Description string `json:"description"`

	// RegistrationLimit is nil when registration is not offered.
	RegistrationLimit *int `json:"registration_limit,omitempty"`

	Recurrence Recurrence `json:"recurrence"`
	// RecurrenceEnd, if set, bounds occurrences to dates on or before it.
	RecurrenceEnd *dateutil.Date `json:"recurrence_end,omitempty"`

	// Source names the adapter the event came from, for logging.
	Source string `json:"source,omitempty"`
}

// HasRegistration reports whether the event offers sign-ups at all.
func (e Event) HasRegistration() bool {
	return e.RegistrationLimit != nil
}

// Validate reports problems that make an event unusable for expansion.
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event %q: missing id", e.Name)
	}
	if e.BaseDate.IsZero() {
		return fmt.Errorf("event %s: missing date", e.ID)
	}
	if err := e.Recurrence.Validate(); err != nil {
		return fmt.Errorf("event %s: %w", e.ID, err)
	}
	if e.RegistrationLimit != nil && *e.RegistrationLimit <= 0 {
		return fmt.Errorf("event %s: registration limit must be positive, got %d", e.ID, *e.RegistrationLimit)
	}
	return nil
}

// Instance is one concrete dated occurrence of an Event. Instances are
// produced fresh by every expansion and never mutated afterwards.
type Instance struct {
	Event
	InstanceDate dateutil.Date `json:"instance_date"`
}

// Key identifies an occurrence across expansions: "{id}-{instanceDate}".
func (i Instance) Key() string {
	return InstanceKey(i.ID, i.InstanceDate)
}

func InstanceKey(eventID string, date dateutil.Date) string {
	return eventID + "-" + date.String()
}

// Availability is the remote seat count for one instance. It is joined with
// instances only at render time.
type Availability struct {
	Registered int  `json:"registered"`
	Capacity   int  `json:"capacity"`
	Available  int  `json:"available"`
	IsFull     bool `json:"isFull"`
}

// Normalize recomputes the derived fields. A zero capacity from the source
// falls back to the event's own limit.
func (a Availability) Normalize(limit *int) Availability {
	if a.Capacity <= 0 && limit != nil {
		a.Capacity = *limit
	}
	if a.Registered < 0 {
		a.Registered = 0
	}
	a.Available = a.Capacity - a.Registered
	if a.Available < 0 {
		a.Available = 0
	}
	a.IsFull = a.Registered >= a.Capacity
	return a
}
