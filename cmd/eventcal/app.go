package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventcal/internal/availability"
	"eventcal/internal/config"
	"eventcal/internal/eventcache"
	"eventcal/internal/feed"
	appLog "eventcal/internal/log"
	"eventcal/internal/registration"
	"eventcal/internal/regwindow"
	"eventcal/internal/source"
	"eventcal/internal/view"
	"eventcal/internal/web"
)

const feedTimeout = 20 * time.Second

// app holds the wired components for one process.
type app struct {
	cfg      *config.Config
	events   *eventcache.Cache
	avail    *availability.Fetcher
	renderer *view.Renderer
	server   *web.Server

	closers []func() error
}

// buildSources maps the configured backends to sources, in order. Entries
// that cannot be built are logged and skipped.
func buildSources(cfg *config.Config, fetcher *feed.Fetcher) []source.Source {
	loc := cfg.Location()
	out := make([]source.Source, 0, len(cfg.Sources))
	for i, sc := range cfg.Sources {
		switch sc.Type {
		case "api":
			base := sc.URL
			if base == "" {
				base = cfg.APIBaseURL
			}
			if base == "" {
				appLog.Warn("api source has no base URL; skipping", "index", i)
				continue
			}
			out = append(out, source.NewAPISource(base, fetcher, loc))
		case "script":
			out = append(out, source.NewScriptSource(sc.URL, sc.Callback, fetcher, loc))
		case "static":
			out = append(out, source.NewStaticSource(sc.Path, loc))
		case "csv":
			out = append(out, source.NewCSVSource(sc.Path, loc))
		case "ics":
			out = append(out, source.NewICSSource(sc.ID, sc.URL, fetcher, loc))
		default:
			appLog.Warn("unknown source type; skipping", "index", i, "type", sc.Type)
		}
	}
	return out
}

// buildMemo prefers Redis when configured and reachable.
func buildMemo(ctx context.Context, cfg *config.Config) (availability.Memo, func() error) {
	rc := cfg.Availability.Redis
	if rc == nil || rc.Addr == "" {
		return availability.NewMemoryMemo(), nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	memo, err := availability.NewRedisMemo(pingCtx, rc.Addr, rc.Password, rc.DB)
	if err != nil {
		appLog.Error("redis unavailable; using in-process availability memo", err, "addr", rc.Addr)
		return availability.NewMemoryMemo(), nil
	}
	appLog.Info("availability memo on redis", "addr", rc.Addr, "db", rc.DB)
	return memo, memo.Close
}

func newApp(ctx context.Context, cfg *config.Config, previewPath string) (*app, error) {
	loc := cfg.Location()
	a := &app{cfg: cfg}

	fetcher := feed.NewFetcher(cfg.CacheDir, feedTimeout)
	sources := buildSources(cfg, fetcher)
	if len(sources) == 0 {
		return nil, source.ErrEmpty
	}
	chain := source.NewFallback(sources...)
	a.events = eventcache.New(chain.Fetch, time.Duration(cfg.Events.CacheMinutes)*time.Minute)

	var lookup view.AvailabilityLookup
	var regAvail registration.Availability
	var invalidator web.Invalidator
	if base := cfg.AvailabilityBaseURL(); base != "" {
		memo, closeMemo := buildMemo(ctx, cfg)
		if closeMemo != nil {
			a.closers = append(a.closers, closeMemo)
		}
		a.avail = availability.NewFetcher(
			availability.NewHTTPSource(base, time.Duration(cfg.Availability.TimeoutSeconds)*time.Second),
			availability.WithMemo(memo, time.Duration(cfg.Availability.MemoSeconds)*time.Second),
			availability.WithConcurrency(cfg.Availability.Concurrency),
		)
		lookup, regAvail, invalidator = a.avail, a.avail, a.avail
	} else {
		appLog.Warn("no availability base URL; seat counts are unknown")
	}

	policy := regwindow.New(time.Duration(cfg.Registration.CutoffHours)*time.Hour, loc)
	a.renderer = view.NewRenderer(a.events, lookup, view.Config{
		Location:            loc,
		WeekStart:           cfg.WeekStartDay(),
		HomeHorizonDays:     cfg.Events.HomeHorizonDays,
		CalendarHorizonDays: cfg.Events.CalendarHorizonDays,
		MonthCellLimit:      cfg.Events.MonthCellLimit,
		Policy:              policy,
	})

	var registrar web.Registrar
	if base := cfg.RegistrationBaseURL(); base != "" {
		sink := registration.NewHTTPSink(base, time.Duration(cfg.Registration.TimeoutSeconds)*time.Second)
		registrar = registration.NewService(a.events, regAvail, sink, policy)
	} else {
		appLog.Warn("no registration base URL; registrations are disabled")
	}

	a.server = web.NewServer(cfg, web.Deps{
		Renderer:      a.renderer,
		Events:        a.events,
		Availability:  invalidator,
		Registrations: registrar,
		PreviewPath:   previewPath,
	})

	appLog.Info("sources configured", "chain", chain.Name())
	return a, nil
}

// refresh force-reloads the event cache and drops memoized availability.
func (a *app) refresh(ctx context.Context) error {
	events, err := a.events.Events(ctx, true)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if a.avail != nil {
		a.avail.Invalidate(ctx)
	}
	appLog.Info("events refreshed", "count", len(events))
	return nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
