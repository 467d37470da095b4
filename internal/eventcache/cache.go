package eventcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// DefaultTTL is how long a fetched event list stays valid.
const DefaultTTL = 15 * time.Minute

// Loader fetches a fresh, normalized event list.
type Loader func(ctx context.Context) ([]model.Event, error)

// Snapshot is a cached event list and the time it was fetched.
type Snapshot struct {
	Events    []model.Event
	FetchedAt time.Time
}

// Cache holds the last normalized event list for the whole process. Reads
// are cheap; refreshes are shared so that renders triggered while a fetch is
// in flight wait for it instead of starting another one.
type Cache struct {
	load Loader
	ttl  time.Duration
	now  func() time.Time

	mu   sync.RWMutex
	snap *Snapshot
	// seq numbers loads by start order; snapSeq is the load that wrote snap.
	seq     uint64
	snapSeq uint64

	group singleflight.Group
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(load Loader, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		load: load,
		ttl:  ttl,
		now:  time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached snapshot regardless of age.
func (c *Cache) Get() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return Snapshot{}, false
	}
	return *c.snap, true
}

// Put records events as fetched now.
func (c *Cache) Put(events []model.Event) {
	c.mu.Lock()
	c.seq++
	c.snapSeq = c.seq
	c.snap = &Snapshot{Events: events, FetchedAt: c.now()}
	c.mu.Unlock()
}

func (c *Cache) beginLoad() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// store keeps events from load seq unless a later-started load already
// stored its result.
func (c *Cache) store(seq uint64, events []model.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.snapSeq {
		return false
	}
	c.snapSeq = seq
	c.snap = &Snapshot{Events: events, FetchedAt: c.now()}
	return true
}

// IsValid reports whether a snapshot exists and is younger than the TTL.
func (c *Cache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validLocked()
}

func (c *Cache) validLocked() bool {
	return c.snap != nil && c.now().Sub(c.snap.FetchedAt) < c.ttl
}

// Invalidate expires the snapshot so the next read refetches. The events
// are kept as a stale fallback.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	if c.snap != nil {
		c.snap.FetchedAt = time.Time{}
	}
	c.mu.Unlock()
}

// Events returns the cached list while valid, otherwise loads a fresh one.
// force bypasses validity. When a refresh fails but an older snapshot
// exists, the stale list is returned and the failure logged.
func (c *Cache) Events(ctx context.Context, force bool) ([]model.Event, error) {
	if !force {
		c.mu.RLock()
		if c.validLocked() {
			events := c.snap.Events
			c.mu.RUnlock()
			return events, nil
		}
		c.mu.RUnlock()
	}

	// Forced loads never join a plain refresh, which may have started
	// before whatever change prompted the force.
	key := "events"
	if force {
		key = "events:force"
	}
	ch := c.group.DoChan(key, func() (any, error) {
		// A load that finished between our check and joining the group
		// already refreshed the snapshot.
		if !force && c.IsValid() {
			snap, _ := c.Get()
			return snap.Events, nil
		}
		seq := c.beginLoad()
		events, err := c.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if !c.store(seq, events) {
			// A newer load won; hand out its result instead.
			snap, _ := c.Get()
			return snap.Events, nil
		}
		appLog.Info("event cache refreshed", "events", len(events), "forced", force)
		return events, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			return res.Val.([]model.Event), nil
		}
		if snap, ok := c.Get(); ok {
			appLog.Error("event cache refresh failed, serving stale events", res.Err,
				"age", c.now().Sub(snap.FetchedAt).Round(time.Second))
			return snap.Events, nil
		}
		return nil, errors.Join(ErrUnavailable, res.Err)
	}
}

// ErrUnavailable means no events could be loaded and nothing was cached.
var ErrUnavailable = errors.New("events unavailable")
