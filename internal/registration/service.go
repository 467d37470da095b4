package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventcal/internal/dateutil"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
	"eventcal/internal/recur"
	"eventcal/internal/regwindow"
)

var (
	ErrInvalid      = errors.New("invalid registration")
	ErrUnknownEvent = errors.New("unknown event")
	ErrNoOccurrence = errors.New("event does not occur on that date")
	ErrNotOffered   = errors.New("event does not take registrations")
	ErrClosed       = errors.New("registration is closed")
	ErrFull         = errors.New("event is full")
	ErrRejected     = errors.New("registration rejected")
)

// EventStore is satisfied by *eventcache.Cache.
type EventStore interface {
	Events(ctx context.Context, force bool) ([]model.Event, error)
	Invalidate()
}

// Availability is satisfied by *availability.Fetcher.
type Availability interface {
	Fetch(ctx context.Context, ev model.Event, date dateutil.Date) (model.Availability, bool)
	Invalidate(ctx context.Context)
}

type Service struct {
	events EventStore
	avail  Availability
	sink   Sink
	policy regwindow.Policy
	now    func() time.Time
	newID  func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService wires the registration flow. avail may be nil.
func NewService(events EventStore, avail Availability, sink Sink, policy regwindow.Policy, opts ...Option) *Service {
	s := &Service{
		events: events,
		avail:  avail,
		sink:   sink,
		policy: policy,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register validates sub, checks that the occurrence exists and is open,
// forwards it to the sink and, on success, drops the cached events and
// availability so the next render shows the new counts.
func (s *Service) Register(ctx context.Context, sub Submission) (Receipt, error) {
	sub.Normalize()
	if err := sub.Validate(); err != nil {
		return Receipt{}, err
	}
	date, err := dateutil.Parse(sub.InstanceDate)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	ev, err := s.lookup(ctx, sub.EventID)
	if err != nil {
		return Receipt{}, err
	}
	if !ev.HasRegistration() {
		return Receipt{}, fmt.Errorf("%w: %s", ErrNotOffered, ev.ID)
	}
	if !occursOn(ev, date) {
		return Receipt{}, fmt.Errorf("%w: %s on %s", ErrNoOccurrence, ev.ID, date)
	}
	if !s.policy.IsOpen(ev, date, s.now()) {
		return Receipt{}, fmt.Errorf("%w: %s on %s", ErrClosed, ev.ID, date)
	}
	if s.avail != nil {
		if a, ok := s.avail.Fetch(ctx, ev, date); ok {
			if a.IsFull || a.Available < sub.NumberOfPeople {
				return Receipt{}, fmt.Errorf("%w: %d of %d seats left", ErrFull, a.Available, a.Capacity)
			}
		}
	}

	id := s.newID()
	rc, err := s.sink.Submit(ctx, id, sub)
	if err != nil {
		appLog.Error("registration failed", err, "event", ev.ID, "date", date.String(), "submission", id)
		return Receipt{}, err
	}

	s.events.Invalidate()
	if s.avail != nil {
		s.avail.Invalidate(ctx)
	}
	appLog.Info("registration accepted", "event", ev.ID, "date", date.String(),
		"submission", id, "people", rc.NumberOfPeople)
	return rc, nil
}

func (s *Service) lookup(ctx context.Context, id string) (model.Event, error) {
	events, err := s.events.Events(ctx, false)
	if err != nil {
		return model.Event{}, fmt.Errorf("registration: load events: %w", err)
	}
	for _, ev := range events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return model.Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, id)
}

// occursOn expands the single series over a one-day window.
func occursOn(ev model.Event, date dateutil.Date) bool {
	res, err := recur.Expand([]model.Event{ev}, recur.Config{Today: date, HorizonDays: 0})
	if err != nil {
		return false
	}
	for _, in := range res.Instances {
		if in.InstanceDate == date {
			return true
		}
	}
	return false
}
