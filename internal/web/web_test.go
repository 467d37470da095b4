package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcal/internal/config"
	"eventcal/internal/dateutil"
	"eventcal/internal/eventcache"
	"eventcal/internal/model"
	"eventcal/internal/registration"
	"eventcal/internal/view"
)

// Monday 2025-06-09 08:00 UTC.
var testNow = time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)

type fakeRegistrar struct {
	err error
}

func (f *fakeRegistrar) Register(_ context.Context, sub registration.Submission) (registration.Receipt, error) {
	if f.err != nil {
		return registration.Receipt{}, f.err
	}
	return registration.Receipt{SubmissionID: "sub-1", NumberOfPeople: 1, Email: sub.Email}, nil
}

type countingInvalidator struct{ n atomic.Int32 }

func (c *countingInvalidator) Invalidate(context.Context) { c.n.Add(1) }

type testEnv struct {
	srv   *Server
	loads *atomic.Int32
	avail *countingInvalidator
	reg   *fakeRegistrar
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	limit := 10
	events := []model.Event{
		{
			ID:                "42",
			Name:              "Forklift Training",
			BaseDate:          dateutil.MustParse("2025-06-03"),
			Time:              dateutil.MustParseClock("09:00"),
			LengthMinutes:     120,
			Location:          "Main Hall",
			Recurrence:        model.Weekly(),
			RegistrationLimit: &limit,
		},
		{
			ID:            "7",
			Name:          "Board Meeting",
			BaseDate:      dateutil.MustParse("2025-06-20"),
			Time:          dateutil.MustParseClock("18:30"),
			LengthMinutes: 60,
		},
	}

	loads := &atomic.Int32{}
	cache := eventcache.New(func(context.Context) ([]model.Event, error) {
		loads.Add(1)
		return events, nil
	}, time.Hour, eventcache.WithClock(func() time.Time { return testNow }))

	renderer := view.NewRenderer(cache, nil, view.Config{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}

	preview := filepath.Join(t.TempDir(), "calendar.png")
	require.NoError(t, os.WriteFile(preview, []byte("\x89PNG fake"), 0o644))

	env := &testEnv{loads: loads, avail: &countingInvalidator{}, reg: &fakeRegistrar{}}
	env.srv = NewServer(cfg, Deps{
		Renderer:      renderer,
		Events:        cache,
		Availability:  env.avail,
		Registrations: env.reg,
		PreviewPath:   preview,
		Now:           func() time.Time { return testNow },
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/events?page=home", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode(t, rec)
	assert.Equal(t, "list", page["mode"])
	assert.Equal(t, "home", page["page"])
	// Weekly on Tuesdays: 06-10 and 06-17 inside 14 days, plus the meeting on 06-20.
	assert.Len(t, page["cards"], 3)

	rec = env.do(t, http.MethodGet, "/api/events?view=week&date=2025-06-16&filter=training", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode(t, rec)
	assert.Equal(t, "week", page["mode"])
	assert.Equal(t, "Week of June 15, 2025", page["title"])

	rec = env.do(t, http.MethodGet, "/api/events?view=agenda", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/events?date=June", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, int32(1), env.loads.Load())
	env.do(t, http.MethodGet, "/api/events?force=true", "")
	assert.Equal(t, int32(2), env.loads.Load())
}

func TestSwitchViewAndNavigate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/view/month", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "June 2025", decode(t, rec)["title"])

	rec = env.do(t, http.MethodPost, "/api/view/navigate?dir=next", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode(t, rec)
	assert.Equal(t, "July 2025", page["title"])
	assert.Equal(t, "2025-07-01", page["anchor"])

	rec = env.do(t, http.MethodPost, "/api/view/navigate?dir=sideways", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/view/agenda", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

const submission = `{"eventId":"42","instanceDate":"2025-06-17","firstName":"Ada","lastName":"Lovelace",
"email":"ada@example.org","phone":"555-0100","reasonForTraining":"Company Requirement"}`

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/events?page=home&filter=training", "")
	require.Equal(t, int32(1), env.loads.Load())

	rec := env.do(t, http.MethodPost, "/api/registrations", submission)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "sub-1", out["receipt"].(map[string]any)["submission_id"])
	page := out["page"].(map[string]any)
	assert.Len(t, page["cards"], 2, "the filtered home view is kept")
	assert.Equal(t, int32(2), env.loads.Load(), "the page is re-rendered from a forced reload")

	rec = env.do(t, http.MethodPost, "/api/registrations", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister_ErrorStatus(t *testing.T) {
	sub := registration.Submission{Email: "x"}
	verr := sub.Validate()
	require.Error(t, verr)

	cases := []struct {
		err  error
		want int
	}{
		{verr, http.StatusUnprocessableEntity},
		{registration.ErrUnknownEvent, http.StatusNotFound},
		{registration.ErrNoOccurrence, http.StatusNotFound},
		{registration.ErrClosed, http.StatusConflict},
		{registration.ErrFull, http.StatusConflict},
		{registration.ErrNotOffered, http.StatusConflict},
		{errors.Join(registration.ErrRejected, errors.New("duplicate")), http.StatusUnprocessableEntity},
		{errors.New("dial tcp: refused"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		env := newTestEnv(t)
		env.reg.err = tc.err
		rec := env.do(t, http.MethodPost, "/api/registrations", submission)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestRefresh_BasicAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["events"])
	assert.Equal(t, int32(1), env.loads.Load())
	assert.Equal(t, int32(1), env.avail.n.Load())

	// Public endpoints stay open.
	rec = env.do(t, http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCalendarHTML(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/calendar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "June 2025")
	assert.Contains(t, body, "Forklift Training")
	assert.Contains(t, body, "Board Meeting")

	rec = env.do(t, http.MethodGet, "/calendar?view=list", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Upcoming Events")

	rec = env.do(t, http.MethodGet, "/calendar?view=year", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendarICS(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/calendar.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Forklift Training")
	assert.Contains(t, body, "RRULE:FREQ=WEEKLY")
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/preview.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\x89PNG fake", rec.Body.String())
}

func TestWeekRows(t *testing.T) {
	cells := make([]view.Day, 33)
	rows := weekRows(cells)
	require.Len(t, rows, 5)
	assert.Len(t, rows[4], 5)
}
