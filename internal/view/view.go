// Package view renders expanded event instances as a list, a week grid or a
// month grid. A Renderer owns the view state (mode and anchor date) so that
// switching views and navigating re-render from the cached events.
package view

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"eventcal/internal/availability"
	"eventcal/internal/dateutil"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
	"eventcal/internal/recur"
	"eventcal/internal/regwindow"
)

type Mode string

const (
	ModeList  Mode = "list"
	ModeWeek  Mode = "week"
	ModeMonth Mode = "month"
)

var ErrUnknownMode = errors.New("unknown view mode")

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeList, ModeWeek, ModeMonth:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

type Direction int

const (
	Previous Direction = -1
	Next     Direction = 1
)

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "next":
		return Next, nil
	case "previous", "prev":
		return Previous, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// PageKind picks the default horizon for list rendering.
type PageKind string

const (
	PageHome     PageKind = "home"
	PageCalendar PageKind = "calendar"
)

const (
	DefaultHomeHorizonDays     = 14
	DefaultCalendarHorizonDays = 180
	DefaultMonthCellLimit      = 3
)

const (
	MsgUnavailable = "Unable to load events."
	msgNoneFound   = "No upcoming events found."
	msgNoneWeek    = "No events this week."
	msgNoneMonth   = "No events this month."
)

// EventLoader is satisfied by *eventcache.Cache.
type EventLoader interface {
	Events(ctx context.Context, force bool) ([]model.Event, error)
}

// AvailabilityLookup is satisfied by *availability.Fetcher.
type AvailabilityLookup interface {
	FetchAll(ctx context.Context, instances []model.Instance) availability.Map
}

type Config struct {
	Location  *time.Location
	WeekStart time.Weekday

	HomeHorizonDays     int
	CalendarHorizonDays int
	MonthCellLimit      int

	Policy regwindow.Policy
	Now    func() time.Time
}

// Request corresponds to one displayEvents call. Zero Mode and Anchor keep
// the renderer's current state; zero HorizonDays uses the page default.
type Request struct {
	Page        PageKind
	Filter      Filter
	Mode        Mode
	Anchor      dateutil.Date
	HorizonDays int
	ForceReload bool
}

// State is the renderer's view state.
type State struct {
	Mode   Mode          `json:"mode"`
	Anchor dateutil.Date `json:"anchor,omitzero"`
}

// Page is a rendered view. Exactly one of Cards, Week or Month is set,
// according to Mode.
type Page struct {
	Kind       PageKind      `json:"page"`
	Mode       Mode          `json:"mode"`
	Title      string        `json:"title"`
	Today      dateutil.Date `json:"today"`
	Anchor     dateutil.Date `json:"anchor"`
	RangeStart dateutil.Date `json:"range_start"`
	RangeEnd   dateutil.Date `json:"range_end"`

	Cards []Card     `json:"cards,omitempty"`
	Week  []Day      `json:"week,omitempty"`
	Month *MonthGrid `json:"month,omitempty"`

	Empty       bool   `json:"empty"`
	Unavailable bool   `json:"unavailable,omitempty"`
	Message     string `json:"message,omitempty"`

	// Truncated lists event ids whose expansion hit the iteration guard.
	Truncated   []string  `json:"truncated,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

type Renderer struct {
	events EventLoader
	avail  AvailabilityLookup
	cfg    Config

	mu    sync.Mutex
	state State
	last  Request
}

// NewRenderer wires a renderer. avail may be nil, in which case every
// instance renders with unknown availability.
func NewRenderer(events EventLoader, avail AvailabilityLookup, cfg Config) *Renderer {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.HomeHorizonDays <= 0 {
		cfg.HomeHorizonDays = DefaultHomeHorizonDays
	}
	if cfg.CalendarHorizonDays <= 0 {
		cfg.CalendarHorizonDays = DefaultCalendarHorizonDays
	}
	if cfg.MonthCellLimit <= 0 {
		cfg.MonthCellLimit = DefaultMonthCellLimit
	}
	if cfg.Policy.Cutoff <= 0 {
		cfg.Policy = regwindow.New(regwindow.DefaultCutoff, cfg.Location)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Renderer{
		events: events,
		avail:  avail,
		cfg:    cfg,
		state:  State{Mode: ModeList},
		last:   Request{Page: PageCalendar},
	}
}

func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Display renders req and makes it the current state.
func (r *Renderer) Display(ctx context.Context, req Request) (*Page, error) {
	if req.Mode != "" {
		if _, err := ParseMode(string(req.Mode)); err != nil {
			return nil, err
		}
	}
	if req.Page == "" {
		req.Page = PageCalendar
	}

	r.mu.Lock()
	if req.Mode == "" {
		req.Mode = r.state.Mode
	}
	if req.Anchor.IsZero() {
		req.Anchor = r.state.Anchor
	}
	r.state = State{Mode: req.Mode, Anchor: req.Anchor}
	r.last = req
	r.last.ForceReload = false
	r.mu.Unlock()

	return r.render(ctx, req)
}

// Render renders req without touching the view state. A zero Mode means
// list. The HTML calendar and the snapshot use it.
func (r *Renderer) Render(ctx context.Context, req Request) (*Page, error) {
	if req.Mode == "" {
		req.Mode = ModeList
	} else if _, err := ParseMode(string(req.Mode)); err != nil {
		return nil, err
	}
	if req.Page == "" {
		req.Page = PageCalendar
	}
	return r.render(ctx, req)
}

// SwitchView re-renders the last request in another mode. The event cache
// is left alone.
func (r *Renderer) SwitchView(ctx context.Context, mode Mode) (*Page, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.state.Mode = mode
	req := r.last
	req.Mode = mode
	req.Anchor = r.state.Anchor
	r.last = req
	r.mu.Unlock()

	return r.render(ctx, req)
}

// Reload re-renders the current view from freshly fetched events.
func (r *Renderer) Reload(ctx context.Context) (*Page, error) {
	r.mu.Lock()
	req := r.last
	req.Mode = r.state.Mode
	req.Anchor = r.state.Anchor
	r.mu.Unlock()

	req.ForceReload = true
	return r.render(ctx, req)
}

// Navigate moves the anchor one week or one month, depending on the mode.
// In list mode it only re-renders.
func (r *Renderer) Navigate(ctx context.Context, dir Direction) (*Page, error) {
	if dir != Next && dir != Previous {
		return nil, fmt.Errorf("invalid direction %d", dir)
	}
	today := dateutil.Today(r.cfg.Now(), r.cfg.Location)

	r.mu.Lock()
	anchor := r.state.Anchor
	if anchor.IsZero() {
		anchor = today
	}
	switch r.state.Mode {
	case ModeWeek:
		anchor = anchor.AddDays(7 * int(dir))
	case ModeMonth:
		anchor = anchor.StartOfMonth().AddMonths(int(dir))
	}
	r.state.Anchor = anchor
	req := r.last
	req.Mode = r.state.Mode
	req.Anchor = anchor
	r.last = req
	r.mu.Unlock()

	return r.render(ctx, req)
}

func (r *Renderer) horizon(req Request) int {
	switch {
	case req.HorizonDays > 0:
		return req.HorizonDays
	case req.Page == PageHome:
		return r.cfg.HomeHorizonDays
	}
	return r.cfg.CalendarHorizonDays
}

func (r *Renderer) render(ctx context.Context, req Request) (*Page, error) {
	now := r.cfg.Now()
	loc := r.cfg.Location
	today := dateutil.Today(now, loc)
	anchor := req.Anchor
	if anchor.IsZero() {
		anchor = today
	}
	horizon := r.horizon(req)

	page := &Page{
		Kind:        req.Page,
		Mode:        req.Mode,
		Today:       today,
		Anchor:      anchor,
		GeneratedAt: now,
	}

	switch req.Mode {
	case ModeWeek:
		page.RangeStart, page.RangeEnd = weekRange(anchor, r.cfg.WeekStart)
		page.Title = "Week of " + FormatMonthDay(page.RangeStart)
	case ModeMonth:
		page.RangeStart, page.RangeEnd = monthRange(anchor)
		page.Title = fmt.Sprintf("%s %d", page.RangeStart.Month, page.RangeStart.Year)
	default:
		page.RangeStart, page.RangeEnd = today, today.AddDays(horizon)
		page.Title = "Upcoming Events"
	}

	events, err := r.events.Events(ctx, req.ForceReload)
	if err != nil {
		appLog.Error("view: events unavailable", err, "mode", req.Mode, "page", req.Page)
		page.Unavailable = true
		page.Empty = true
		page.Message = MsgUnavailable
		r.fill(page, req.Mode, anchor, today, nil)
		return page, nil
	}
	events = applyFilter(events, req.Filter)

	var visible []model.Instance
	// Periods entirely before today have nothing to show.
	if !page.RangeEnd.Before(today) {
		// Expand only the visible part of the period, so far-ahead pages cost
		// the same as the current one.
		from := today
		if page.RangeStart.After(today) {
			from = page.RangeStart
		}
		res, err := recur.Expand(events, recur.Config{
			Today:       from,
			HorizonDays: from.DaysUntil(page.RangeEnd),
		})
		if err != nil {
			return nil, fmt.Errorf("view: expand: %w", err)
		}
		page.Truncated = res.Truncated
		for _, in := range res.Instances {
			if !in.InstanceDate.Before(page.RangeStart) && !in.InstanceDate.After(page.RangeEnd) {
				visible = append(visible, in)
			}
		}
	}

	avail := availability.Map{}
	if r.avail != nil && len(visible) > 0 {
		avail = r.avail.FetchAll(ctx, visible)
	}

	cards := make([]Card, 0, len(visible))
	for _, in := range visible {
		cards = append(cards, buildCard(in, avail, r.cfg.Policy, now, loc))
	}

	r.fill(page, req.Mode, anchor, today, cards)
	if len(cards) == 0 {
		page.Empty = true
		page.Message = r.emptyMessage(req, horizon)
	}

	appLog.Debug("view rendered", "mode", req.Mode, "page", req.Page, "anchor", anchor.String(), "cards", len(cards))
	return page, nil
}

func (r *Renderer) fill(page *Page, mode Mode, anchor, today dateutil.Date, cards []Card) {
	switch mode {
	case ModeWeek:
		page.Week = buildWeek(page.RangeStart, today, cards)
	case ModeMonth:
		page.Month = buildMonth(anchor, today, r.cfg.WeekStart, r.cfg.MonthCellLimit, cards)
	default:
		page.Cards = cards
	}
}

func (r *Renderer) emptyMessage(req Request, horizon int) string {
	switch req.Mode {
	case ModeWeek:
		return msgNoneWeek
	case ModeMonth:
		return msgNoneMonth
	}
	if req.Page == PageHome {
		return "No upcoming events in the next " + spanLabel(horizon) + "."
	}
	return msgNoneFound
}

// spanLabel renders 14 as "2 weeks" and 10 as "10 days".
func spanLabel(days int) string {
	switch {
	case days == 7:
		return "week"
	case days%7 == 0:
		return fmt.Sprintf("%d weeks", days/7)
	case days == 1:
		return "day"
	}
	return fmt.Sprintf("%d days", days)
}

// FormatMonthDay renders "June 8, 2025".
func FormatMonthDay(d dateutil.Date) string {
	return fmt.Sprintf("%s %d, %d", d.Month, d.Day, d.Year)
}
