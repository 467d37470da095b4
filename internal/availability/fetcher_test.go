package availability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcal/internal/dateutil"
	"eventcal/internal/model"
)

type fakeSource struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
	data  map[string]model.Availability
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls: make(map[string]int),
		fail:  make(map[string]bool),
		data:  make(map[string]model.Availability),
	}
}

func (f *fakeSource) Lookup(_ context.Context, id string, date dateutil.Date) (model.Availability, error) {
	key := model.InstanceKey(id, date)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	if f.fail[key] {
		return model.Availability{}, errors.New("unreachable")
	}
	return f.data[key], nil
}

func limited(id string, limit int) model.Event {
	return model.Event{ID: id, Name: id, RegistrationLimit: &limit}
}

func inst(ev model.Event, date string) model.Instance {
	return model.Instance{Event: ev, InstanceDate: dateutil.MustParse(date)}
}

func TestFetcher_FetchAllPerInstance(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	weekly := limited("7", 20)
	src.data["7-2025-06-02"] = model.Availability{Registered: 5}
	src.data["7-2025-06-09"] = model.Availability{Registered: 20}
	src.fail["7-2025-06-16"] = true
	open := model.Event{ID: "8", Name: "no registration"}

	f := NewFetcher(src, WithConcurrency(2))
	got := f.FetchAll(context.Background(), []model.Instance{
		inst(weekly, "2025-06-02"),
		inst(weekly, "2025-06-09"),
		inst(weekly, "2025-06-16"),
		inst(weekly, "2025-06-02"),
		inst(open, "2025-06-03"),
	})

	require.Len(t, got, 2)

	a, ok := got.Lookup(inst(weekly, "2025-06-02"))
	require.True(t, ok)
	assert.Equal(t, model.Availability{Registered: 5, Capacity: 20, Available: 15, IsFull: false}, a)

	a, ok = got.Lookup(inst(weekly, "2025-06-09"))
	require.True(t, ok)
	assert.True(t, a.IsFull)
	assert.Equal(t, 0, a.Available)

	_, ok = got.Lookup(inst(weekly, "2025-06-16"))
	assert.False(t, ok, "failed lookup is unknown")

	assert.Equal(t, 1, src.calls["7-2025-06-02"], "duplicate instance looked up once")
	assert.Zero(t, src.calls["8-2025-06-03"], "events without a limit are not looked up")
}

func TestFetcher_MemoAndInvalidate(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	ev := limited("1", 10)
	src.data["1-2025-06-02"] = model.Availability{Registered: 1}

	f := NewFetcher(src)
	ctx := context.Background()

	_, ok := f.Fetch(ctx, ev, dateutil.MustParse("2025-06-02"))
	require.True(t, ok)
	_, ok = f.Fetch(ctx, ev, dateutil.MustParse("2025-06-02"))
	require.True(t, ok)
	assert.Equal(t, 1, src.calls["1-2025-06-02"])

	f.Invalidate(ctx)
	src.data["1-2025-06-02"] = model.Availability{Registered: 2}
	a, ok := f.Fetch(ctx, ev, dateutil.MustParse("2025-06-02"))
	require.True(t, ok)
	assert.Equal(t, 2, a.Registered)
	assert.Equal(t, 2, src.calls["1-2025-06-02"])
}

func TestMemoryMemo_Expiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryMemo()
	m.now = func() time.Time { return now }

	m.Set(context.Background(), "k", model.Availability{Registered: 3}, time.Minute)
	_, ok := m.Get(context.Background(), "k")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = m.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestFetcher_SourceOverridesCapacity(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.data["1-2025-06-02"] = model.Availability{Registered: 25, Capacity: 30}

	a, ok := NewFetcher(src).Fetch(context.Background(), limited("1", 20), dateutil.MustParse("2025-06-02"))
	require.True(t, ok)
	assert.Equal(t, 30, a.Capacity)
	assert.Equal(t, 5, a.Available)
	assert.False(t, a.IsFull)
}

func TestHTTPSource_Lookup(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch {
		case r.URL.Path == "/api/events/12/availability" && r.URL.Query().Get("instanceDate") == "2025-06-02":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"registered": 4, "capacity": 10, "available": 6, "isFull": false,
			})
		case strings.HasSuffix(r.URL.Path, "/wrapped/availability"):
			_, _ = w.Write([]byte(`{"availability":{"registered":10,"capacity":10}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/api/", time.Second)

	a, err := src.Lookup(context.Background(), "12", dateutil.MustParse("2025-06-02"))
	require.NoError(t, err)
	assert.Equal(t, 4, a.Registered)
	assert.Equal(t, 10, a.Capacity)

	a, err = src.Lookup(context.Background(), "wrapped", dateutil.MustParse("2025-06-02"))
	require.NoError(t, err)
	assert.Equal(t, 10, a.Registered)

	_, err = src.Lookup(context.Background(), "12", dateutil.MustParse("2025-06-03"))
	require.Error(t, err)

	_, err = src.Lookup(context.Background(), "", dateutil.MustParse("2025-06-03"))
	require.Error(t, err)
	assert.EqualValues(t, 3, hits.Load())
}
