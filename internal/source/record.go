package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"eventcal/internal/dateutil"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// record is the loose union of every backend's event shape: the database
// API (snake_case), the static list (camelCase) and the older calendar
// list (repeat/description/capacity). Spreadsheet endpoints emit either.
type record struct {
	ID   flexString `json:"id" yaml:"id"`
	Name flexString `json:"name" yaml:"name"`
	Date flexString `json:"date" yaml:"date"`
	Time flexString `json:"time" yaml:"time"`

	Length flexInt `json:"length" yaml:"length"`

	Location          flexString `json:"location" yaml:"location"`
	Description       flexString `json:"description" yaml:"description"`
	AdditionalDetails flexString `json:"additionalDetails" yaml:"additionalDetails"`

	Capacity            flexInt  `json:"capacity" yaml:"capacity"`
	RegistrationEnabled flexBool `json:"registration_enabled" yaml:"registration_enabled"`
	RegistrationLimit   flexInt  `json:"registrationLimit" yaml:"registrationLimit"`

	EventRepeats   flexString `json:"event_repeats" yaml:"event_repeats"`
	RepeatInterval flexInt    `json:"repeat_interval" yaml:"repeat_interval"`
	EventRepeatsJS flexString `json:"eventRepeats" yaml:"eventRepeats"`
	Repeat         flexString `json:"repeat" yaml:"repeat"`

	RepeatEnds   flexString `json:"repeat_ends" yaml:"repeat_ends"`
	RepeatEndsJS flexString `json:"repeatEnds" yaml:"repeatEnds"`
}

// Raw is a backend record flattened to strings, before validation.
type Raw struct {
	ID          string
	Name        string
	Date        string
	Time        string
	Length      *int
	Location    string
	Description string
	// Limit is nil when the record does not offer registration.
	Limit *int
	// RepeatInterval, when positive, wins over RepeatTag.
	RepeatInterval int
	RepeatTag      string
	RepeatEnds     string
}

func (r record) raw() Raw {
	out := Raw{
		ID:          r.ID.String(),
		Name:        r.Name.String(),
		Date:        r.Date.String(),
		Time:        r.Time.String(),
		Length:      r.Length.Ptr(),
		Location:    r.Location.String(),
		Description: firstNonEmpty(r.Description.String(), r.AdditionalDetails.String()),
		RepeatTag:   firstNonEmpty(r.EventRepeats.String(), r.EventRepeatsJS.String(), r.Repeat.String()),
		RepeatEnds:  firstNonEmpty(r.RepeatEnds.String(), r.RepeatEndsJS.String()),
	}
	if n := r.RepeatInterval.Ptr(); n != nil {
		out.RepeatInterval = *n
	}

	switch {
	case r.RegistrationEnabled.set:
		if r.RegistrationEnabled.v {
			out.Limit = r.Capacity.Ptr()
		}
	case r.RegistrationLimit.Ptr() != nil:
		out.Limit = r.RegistrationLimit.Ptr()
	default:
		out.Limit = r.Capacity.Ptr()
	}
	return out
}

// Normalize validates a Raw record into the canonical Event. Dates and
// times in alternate forms are interpreted in loc.
func Normalize(r Raw, origin string, loc *time.Location) (model.Event, error) {
	ev := model.Event{
		ID:            strings.TrimSpace(r.ID),
		Name:          strings.TrimSpace(r.Name),
		LengthMinutes: model.DefaultLengthMinutes,
		Location:      strings.TrimSpace(r.Location),
		Description:   strings.TrimSpace(r.Description),
		Source:        origin,
	}
	if ev.ID == "" {
		return ev, fmt.Errorf("event %q: missing id", ev.Name)
	}

	date, err := dateutil.ParseIn(r.Date, loc)
	if err != nil {
		return ev, fmt.Errorf("event %s: date: %w", ev.ID, err)
	}
	ev.BaseDate = date

	clock, err := dateutil.ParseClockIn(r.Time, loc)
	if err != nil {
		return ev, fmt.Errorf("event %s: time: %w", ev.ID, err)
	}
	ev.Time = clock

	if r.Length != nil && *r.Length > 0 {
		ev.LengthMinutes = *r.Length
	}

	if r.Limit != nil && *r.Limit > 0 {
		limit := *r.Limit
		ev.RegistrationLimit = &limit
	}

	switch {
	case r.RepeatInterval > 0:
		ev.Recurrence = model.EveryNDays(r.RepeatInterval)
	case r.RepeatInterval < 0:
		return ev, fmt.Errorf("event %s: %w: %d", ev.ID, model.ErrInvalidInterval, r.RepeatInterval)
	default:
		rec, err := model.ParseRecurrence(r.RepeatTag)
		if err != nil {
			return ev, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		ev.Recurrence = rec
	}

	if strings.TrimSpace(r.RepeatEnds) != "" {
		end, err := dateutil.ParseIn(r.RepeatEnds, loc)
		if err != nil {
			return ev, fmt.Errorf("event %s: repeat end: %w", ev.ID, err)
		}
		ev.RecurrenceEnd = &end
	}

	return ev, nil
}

// normalizeAll converts records, logging and skipping the malformed ones.
func normalizeAll(raws []Raw, origin string, loc *time.Location) []model.Event {
	events := make([]model.Event, 0, len(raws))
	for _, r := range raws {
		ev, err := Normalize(r, origin, loc)
		if err != nil {
			appLog.Error("event record skipped", err, "source", origin)
			continue
		}
		events = append(events, ev)
	}
	return events
}

type payloadFormat int

const (
	formatJSON payloadFormat = iota
	formatYAML
)

type envelope struct {
	Events []record `json:"events" yaml:"events"`
	Data   []record `json:"data" yaml:"data"`
	Error  string   `json:"error" yaml:"error"`
}

// decodePayload accepts {"events": [...]}, {"data": [...]} or a bare array.
func decodePayload(body []byte, format payloadFormat) ([]Raw, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty payload")
	}

	unmarshal := json.Unmarshal
	if format == formatYAML {
		unmarshal = yaml.Unmarshal
	}

	var records []record
	if body[0] == '[' || (format == formatYAML && body[0] == '-') {
		if err := unmarshal(body, &records); err != nil {
			return nil, err
		}
	} else {
		var env envelope
		if err := unmarshal(body, &env); err != nil {
			return nil, err
		}
		if env.Error != "" {
			return nil, fmt.Errorf("backend error: %s", env.Error)
		}
		records = env.Events
		if len(records) == 0 {
			records = env.Data
		}
	}

	raws := make([]Raw, 0, len(records))
	for _, r := range records {
		raws = append(raws, r.raw())
	}
	return raws, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// flexString accepts strings, numbers and null.
type flexString struct {
	v string
}

func (f flexString) String() string { return f.v }

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &f.v)
	}
	f.v = string(b)
	return nil
}

func (f *flexString) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", n.Line)
	}
	if n.Tag == "!!null" {
		return nil
	}
	f.v = n.Value
	return nil
}

// flexInt accepts numbers, numeric strings, empty strings and null. Values
// that are not numbers leave it unset; callers then apply their defaults.
type flexInt struct {
	v   int
	set bool
}

func (f flexInt) Ptr() *int {
	if !f.set {
		return nil
	}
	v := f.v
	return &v
}

func (f *flexInt) parse(s string) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return
		}
		n = int(fl)
	}
	f.v, f.set = n, true
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		f.parse(s)
		return nil
	}
	f.parse(string(b))
	return nil
}

func (f *flexInt) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", n.Line)
	}
	f.parse(n.Value)
	return nil
}

// flexBool accepts booleans and the strings spreadsheets produce.
type flexBool struct {
	v   bool
	set bool
}

func (f *flexBool) parse(s string) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "on":
		f.v, f.set = true, true
	case "false", "no", "n", "0", "off":
		f.v, f.set = false, true
	}
}

func (f *flexBool) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		f.parse(s)
		return nil
	}
	f.parse(string(b))
	return nil
}

func (f *flexBool) UnmarshalYAML(n *yaml.Node) error {
	f.parse(n.Value)
	return nil
}
