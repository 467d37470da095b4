package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"eventcal/internal/config"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
	"eventcal/internal/registration"
	"eventcal/internal/view"
)

// EventStore is satisfied by *eventcache.Cache.
type EventStore interface {
	Events(ctx context.Context, force bool) ([]model.Event, error)
}

// Invalidator drops memoized availability. Satisfied by *availability.Fetcher.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Registrar is satisfied by *registration.Service.
type Registrar interface {
	Register(ctx context.Context, sub registration.Submission) (registration.Receipt, error)
}

// Deps are the components the HTTP surface drives. Availability and
// Registrations may be nil.
type Deps struct {
	Renderer      *view.Renderer
	Events        EventStore
	Availability  Invalidator
	Registrations Registrar
	// PreviewPath is the PNG written by the snapshot job.
	PreviewPath string
	Now         func() time.Time
}

// Server exposes the rendered views, the iCalendar export, registrations
// and an admin refresh over HTTP.
type Server struct {
	cfg    *config.Config
	deps   Deps
	router chi.Router
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{cfg: cfg, deps: deps}
	s.router = s.routes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/calendar", s.handleCalendar)
	r.Get("/calendar.ics", s.handleICS)
	r.Get("/preview.png", s.handlePreview)

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Post("/view/navigate", s.handleNavigate)
		r.Post("/view/{mode}", s.handleSwitchView)
		r.Post("/registrations", s.handleRegister)

		r.Group(func(r chi.Router) {
			if s.cfg != nil && s.cfg.BasicAuthEnabled() {
				appLog.Info("HTTP basic auth enabled for admin endpoints")
				r.Use(s.basicAuth)
			}
			r.Post("/refresh", s.handleRefresh)
		})
	})
	return r
}

// requestLogger writes one line per request through appLog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			appLog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).Round(time.Microsecond).String(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="eventcal", charset="UTF-8"`)
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last snapshot written by the capture job.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.deps.PreviewPath == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, s.deps.PreviewPath)
}

type errResp struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errResp{Error: msg})
}
