package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"eventcal/internal/dateutil"
	"eventcal/internal/ics"
	appLog "eventcal/internal/log"
	"eventcal/internal/registration"
	"eventcal/internal/view"
)

// handleEvents renders a view.
//
// GET /api/events?page=home&view=week&date=2025-06-09&filter=training&days=14&force=1
//   - page:   home | calendar (default calendar); picks the list horizon
//   - view:   list | week | month; empty keeps the current view
//   - date:   anchor date for week/month views
//   - filter: "training" or a name substring
//   - days:   list horizon override
//   - force:  bypass the event cache
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := view.Request{
		Page:        view.PageCalendar,
		Filter:      view.FilterByName(q.Get("filter")),
		HorizonDays: parseIntDefault(q.Get("days"), 0),
		ForceReload: parseBool(q.Get("force")),
	}
	if strings.EqualFold(q.Get("page"), string(view.PageHome)) {
		req.Page = view.PageHome
	}
	if v := q.Get("view"); v != "" {
		mode, err := view.ParseMode(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		req.Mode = mode
	}
	if d := q.Get("date"); d != "" {
		anchor, err := dateutil.Parse(d)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		req.Anchor = anchor
	}

	page, err := s.deps.Renderer.Display(r.Context(), req)
	s.writePage(w, r, page, err)
}

// handleSwitchView handles POST /api/view/{mode}.
func (s *Server) handleSwitchView(w http.ResponseWriter, r *http.Request) {
	mode, err := view.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.deps.Renderer.SwitchView(r.Context(), mode)
	s.writePage(w, r, page, err)
}

// handleNavigate handles POST /api/view/navigate?dir=next|previous.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	dir, err := view.ParseDirection(r.URL.Query().Get("dir"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.deps.Renderer.Navigate(r.Context(), dir)
	s.writePage(w, r, page, err)
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, page *view.Page, err error) {
	if err != nil {
		if errors.Is(err, view.ErrUnknownMode) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		appLog.Error("render failed", err)
		writeError(w, r, http.StatusInternalServerError, "failed to render events")
		return
	}
	writeJSON(w, r, http.StatusOK, page)
}

type registerResponse struct {
	Receipt registration.Receipt `json:"receipt"`
	Page    *view.Page           `json:"page,omitempty"`
}

// handleRegister forwards a registration and answers with the receipt and
// the current view re-rendered from fresh events.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registrations == nil {
		writeError(w, r, http.StatusServiceUnavailable, "registrations are not configured")
		return
	}

	var sub registration.Submission
	if err := render.DecodeJSON(r.Body, &sub); err != nil {
		writeError(w, r, http.StatusBadRequest, "failed to decode request")
		return
	}

	rc, err := s.deps.Registrations.Register(r.Context(), sub)
	if err != nil {
		s.writeRegisterError(w, r, err)
		return
	}

	resp := registerResponse{Receipt: rc}
	page, err := s.deps.Renderer.Reload(r.Context())
	if err != nil {
		appLog.Error("re-render after registration failed", err)
	} else {
		resp.Page = page
	}
	writeJSON(w, r, http.StatusCreated, resp)
}

func (s *Server) writeRegisterError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *registration.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, r, http.StatusUnprocessableEntity, errResp{Error: "invalid registration", Fields: ve.Messages()})
	case errors.Is(err, registration.ErrInvalid):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, registration.ErrUnknownEvent), errors.Is(err, registration.ErrNoOccurrence):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, registration.ErrNotOffered),
		errors.Is(err, registration.ErrClosed),
		errors.Is(err, registration.ErrFull):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, registration.ErrRejected):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, r, http.StatusBadGateway, "registration service unavailable")
	}
}

type refreshResponse struct {
	Events      int       `json:"events"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// handleRefresh forces an event reload and drops memoized availability.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := s.deps.Events.Events(ctx, true)
	if err != nil {
		appLog.Error("manual refresh failed", err)
		writeError(w, r, http.StatusServiceUnavailable, view.MsgUnavailable)
		return
	}
	if s.deps.Availability != nil {
		s.deps.Availability.Invalidate(ctx)
	}
	writeJSON(w, r, http.StatusOK, refreshResponse{Events: len(events), RefreshedAt: s.deps.Now()})
}

// handleICS exports the current series as an iCalendar feed.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	events, err := s.deps.Events.Events(r.Context(), false)
	if err != nil {
		appLog.Error("ics export: events unavailable", err)
		http.Error(w, view.MsgUnavailable, http.StatusServiceUnavailable)
		return
	}
	body := ics.Export(events, s.location(), s.deps.Now())

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="events.ics"`)
	_, _ = w.Write([]byte(body))
}

func (s *Server) location() *time.Location {
	if s.cfg == nil {
		return time.Local
	}
	return s.cfg.Location()
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
