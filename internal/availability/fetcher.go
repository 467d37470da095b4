// Package availability fetches per-instance seat counts. Every occurrence of
// a repeating event has its own roster, so lookups are keyed by
// "{id}-{instanceDate}" and never shared between occurrences.
package availability

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"eventcal/internal/dateutil"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

const (
	DefaultConcurrency = 8
	DefaultMemoTTL     = time.Minute
)

// Map holds known availability by instance key. A missing key means the
// lookup failed and availability is unknown.
type Map map[string]model.Availability

// Lookup returns the availability for an instance, if known.
func (m Map) Lookup(in model.Instance) (model.Availability, bool) {
	a, ok := m[in.Key()]
	return a, ok
}

// Fetcher batches and memoizes Source lookups.
type Fetcher struct {
	src         Source
	memo        Memo
	memoTTL     time.Duration
	concurrency int
}

type Option func(*Fetcher)

func WithMemo(m Memo, ttl time.Duration) Option {
	return func(f *Fetcher) {
		f.memo = m
		if ttl > 0 {
			f.memoTTL = ttl
		}
	}
}

func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

func NewFetcher(src Source, opts ...Option) *Fetcher {
	f := &Fetcher{
		src:         src,
		memo:        NewMemoryMemo(),
		memoTTL:     DefaultMemoTTL,
		concurrency: DefaultConcurrency,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch looks up one instance. ok is false when availability is unknown.
func (f *Fetcher) Fetch(ctx context.Context, ev model.Event, date dateutil.Date) (model.Availability, bool) {
	key := model.InstanceKey(ev.ID, date)
	if a, ok := f.memo.Get(ctx, key); ok {
		return a, true
	}

	a, err := f.src.Lookup(ctx, ev.ID, date)
	if err != nil {
		appLog.Debug("availability lookup failed", "key", key, "err", err)
		return model.Availability{}, false
	}
	a = a.Normalize(ev.RegistrationLimit)
	f.memo.Set(ctx, key, a, f.memoTTL)
	return a, true
}

// FetchAll looks up every distinct instance with a registration limit
// concurrently and waits for all of them. A slow or failing lookup does not
// affect the others.
func (f *Fetcher) FetchAll(ctx context.Context, instances []model.Instance) Map {
	out := make(Map)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	seen := make(map[string]struct{})
	failed := 0
	for _, in := range instances {
		if !in.HasRegistration() {
			continue
		}
		key := in.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		in := in
		g.Go(func() error {
			a, ok := f.Fetch(gctx, in.Event, in.InstanceDate)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				out[key] = a
			} else {
				failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 {
		appLog.Warn("availability unknown for some instances", "failed", failed, "requested", len(seen))
	}
	return out
}

// Invalidate forgets every memoized lookup.
func (f *Fetcher) Invalidate(ctx context.Context) {
	f.memo.Flush(ctx)
}
