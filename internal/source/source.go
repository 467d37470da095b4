// Package source adapts the event backends (database API, spreadsheet
// script endpoint, static list, CSV export, iCalendar feed) to one canonical
// model.Event list. Nothing downstream sees a backend's record shape.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"eventcal/internal/feed"
	"eventcal/internal/ics"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// ErrEmpty means no source was configured.
var ErrEmpty = errors.New("no event sources configured")

// Source produces normalized events.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]model.Event, error)
}

// APISource reads GET {base}/events from the registration backend.
type APISource struct {
	baseURL string
	fetcher *feed.Fetcher
	loc     *time.Location
}

func NewAPISource(baseURL string, fetcher *feed.Fetcher, loc *time.Location) *APISource {
	return &APISource{baseURL: strings.TrimRight(baseURL, "/"), fetcher: fetcher, loc: loc}
}

func (s *APISource) Name() string { return "api" }

func (s *APISource) Fetch(ctx context.Context) ([]model.Event, error) {
	res, err := s.fetcher.Fetch(ctx, s.baseURL+"/events", "application/json")
	if err != nil {
		return nil, fmt.Errorf("api source: %w", err)
	}
	raws, err := decodePayload(res.Body, formatJSON)
	if err != nil {
		return nil, fmt.Errorf("api source: decode: %w", err)
	}
	return normalizeAll(raws, s.Name(), s.loc), nil
}

// ScriptSource reads a spreadsheet-backed script endpoint that answers with
// the JSON payload wrapped in a callback invocation: cb({...});
type ScriptSource struct {
	endpoint string
	callback string
	fetcher  *feed.Fetcher
	loc      *time.Location
}

const defaultCallback = "handleEvents"

func NewScriptSource(endpoint, callback string, fetcher *feed.Fetcher, loc *time.Location) *ScriptSource {
	if callback == "" {
		callback = defaultCallback
	}
	return &ScriptSource{endpoint: endpoint, callback: callback, fetcher: fetcher, loc: loc}
}

func (s *ScriptSource) Name() string { return "script" }

func (s *ScriptSource) Fetch(ctx context.Context) ([]model.Event, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("script source: %w", err)
	}
	q := u.Query()
	q.Set("action", "getEvents")
	q.Set("callback", s.callback)
	u.RawQuery = q.Encode()

	res, err := s.fetcher.Fetch(ctx, u.String(), "")
	if err != nil {
		return nil, fmt.Errorf("script source: %w", err)
	}
	payload, err := UnwrapCallback(res.Body, s.callback)
	if err != nil {
		return nil, fmt.Errorf("script source: %w", err)
	}
	raws, err := decodePayload(payload, formatJSON)
	if err != nil {
		return nil, fmt.Errorf("script source: decode: %w", err)
	}
	return normalizeAll(raws, s.Name(), s.loc), nil
}

var callbackRe = regexp.MustCompile(`^\s*(?:/\*\*/\s*)?([A-Za-z_$][\w$.]*)\s*\(([\s\S]*)\)\s*;?\s*$`)

// UnwrapCallback strips a `name(...)` wrapper. Bodies that are already bare
// JSON pass through. A wrapper with a different name is an error.
func UnwrapCallback(body []byte, name string) ([]byte, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return []byte(trimmed), nil
	}
	m := callbackRe.FindStringSubmatch(trimmed)
	if m == nil {
		return nil, errors.New("response is neither JSON nor a callback invocation")
	}
	if name != "" && m[1] != name {
		return nil, fmt.Errorf("unexpected callback %q", m[1])
	}
	return []byte(strings.TrimSpace(m[2])), nil
}

// StaticSource reads the hand-maintained fallback list from a YAML or JSON
// file.
type StaticSource struct {
	path string
	loc  *time.Location
}

func NewStaticSource(path string, loc *time.Location) *StaticSource {
	return &StaticSource{path: path, loc: loc}
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Fetch(context.Context) ([]model.Event, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("static source: %w", err)
	}
	format := formatYAML
	if strings.EqualFold(filepath.Ext(s.path), ".json") {
		format = formatJSON
	}
	raws, err := decodePayload(data, format)
	if err != nil {
		return nil, fmt.Errorf("static source: decode %s: %w", s.path, err)
	}
	return normalizeAll(raws, s.Name(), s.loc), nil
}

// ICSSource reads an iCalendar subscription.
type ICSSource struct {
	id      string
	url     string
	fetcher *feed.Fetcher
	loc     *time.Location
}

func NewICSSource(id, feedURL string, fetcher *feed.Fetcher, loc *time.Location) *ICSSource {
	if id == "" {
		id = "ics"
	}
	return &ICSSource{id: id, url: feedURL, fetcher: fetcher, loc: loc}
}

func (s *ICSSource) Name() string { return s.id }

func (s *ICSSource) Fetch(ctx context.Context) ([]model.Event, error) {
	res, err := s.fetcher.Fetch(ctx, s.url, "text/calendar")
	if err != nil {
		return nil, fmt.Errorf("ics source %s: %w", s.id, err)
	}
	events, err := ics.Parse(res.Body, s.id, s.loc)
	if err != nil {
		return nil, fmt.Errorf("ics source %s: %w", s.id, err)
	}
	return events, nil
}

// Fallback tries sources in order and returns the first non-empty list.
type Fallback struct {
	sources []Source
}

func NewFallback(sources ...Source) *Fallback {
	return &Fallback{sources: sources}
}

func (f *Fallback) Name() string {
	names := make([]string, 0, len(f.sources))
	for _, s := range f.sources {
		names = append(names, s.Name())
	}
	return strings.Join(names, ">")
}

func (f *Fallback) Fetch(ctx context.Context) ([]model.Event, error) {
	var (
		errs     []error
		answered bool
	)
	for _, s := range f.sources {
		events, err := s.Fetch(ctx)
		switch {
		case err != nil:
			appLog.Error("event source failed, trying next", err, "source", s.Name())
			errs = append(errs, err)
			continue
		case len(events) == 0:
			appLog.Warn("event source returned no events, trying next", "source", s.Name())
			answered = true
			continue
		}
		appLog.Info("events loaded", "source", s.Name(), "count", len(events))
		return events, nil
	}
	// An empty calendar is a normal state, not a failure.
	if answered {
		return []model.Event{}, nil
	}
	if len(errs) == 0 {
		return nil, ErrEmpty
	}
	return nil, errors.Join(errs...)
}
