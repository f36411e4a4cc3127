package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pricedash/pricedash/internal/query"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingFetch struct {
	calls atomic.Int32
	err   error
}

func (f *countingFetch) Fetch(_ context.Context, table string) (query.Dataset, error) {
	f.calls.Add(1)
	if f.err != nil {
		return query.EmptyDataset(), f.err
	}
	return query.Dataset{
		Columns: []string{"SET_NAME", "DATE_DIFF", "AVG_USD"},
		Rows:    [][]any{{table, int64(0), 1.0}},
	}, nil
}

func TestGetWithinTTLFetchesOnce(t *testing.T) {
	clock := newFakeClock()
	fetch := &countingFetch{}
	c := New(fetch.Fetch, Options{Clock: clock.Now})

	first := c.Get(context.Background(), "price_after_launch")
	clock.Advance(23 * time.Hour)
	second := c.Get(context.Background(), "price_after_launch")

	if got := fetch.calls.Load(); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}
	if !first.FetchedAt.Equal(second.FetchedAt) {
		t.Fatalf("FetchedAt changed: %v -> %v", first.FetchedAt, second.FetchedAt)
	}

	clock.Advance(time.Hour)
	third := c.Get(context.Background(), "price_after_launch")
	if got := fetch.calls.Load(); got != 2 {
		t.Fatalf("fetches after expiry = %d, want 2", got)
	}
	if !third.FetchedAt.Equal(clock.Now()) {
		t.Fatalf("FetchedAt = %v, want %v", third.FetchedAt, clock.Now())
	}
}

func TestGetKeysByTable(t *testing.T) {
	fetch := &countingFetch{}
	c := New(fetch.Fetch, Options{})

	c.Get(context.Background(), "price_after_launch")
	c.Get(context.Background(), "price_after_launch_foil")
	c.Get(context.Background(), "price_after_launch_foil")
	if got := fetch.calls.Load(); got != 2 {
		t.Fatalf("fetches = %d, want 2", got)
	}
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var calls atomic.Int32
	c := New(func(context.Context, string) (query.Dataset, error) {
		calls.Add(1)
		started <- struct{}{}
		<-release
		return query.Dataset{Columns: []string{"x"}, Rows: [][]any{{1}}}, nil
	}, Options{})

	var wg sync.WaitGroup
	results := make([]Entry, 8)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = c.Get(context.Background(), "price_after_launch")
	}()
	<-started
	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Get(context.Background(), "price_after_launch")
		}()
	}
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}
	for i, entry := range results {
		if entry.Data.Len() != 1 {
			t.Fatalf("results[%d] rows = %d", i, entry.Data.Len())
		}
	}
}

func TestCacheFailuresStoresDegradedResult(t *testing.T) {
	clock := newFakeClock()
	fetch := &countingFetch{err: errors.New("query failed after 3 attempts")}
	c := New(fetch.Fetch, Options{Clock: clock.Now, CacheFailures: true})

	entry := c.Get(context.Background(), "price_after_launch")
	if !entry.Failed() || !entry.Data.Empty() {
		t.Fatalf("entry = %+v, want failed empty entry", entry)
	}
	clock.Advance(time.Hour)
	c.Get(context.Background(), "price_after_launch")
	if got := fetch.calls.Load(); got != 1 {
		t.Fatalf("fetches = %d, want 1 while failure is cached", got)
	}

	statuses := c.Entries()
	if len(statuses) != 1 || statuses[0].Error == "" || !statuses[0].Fresh {
		t.Fatalf("Entries() = %+v", statuses)
	}
}

func TestWithoutCacheFailuresRefetchesAfterFailure(t *testing.T) {
	fetch := &countingFetch{err: errors.New("warehouse suspended")}
	c := New(fetch.Fetch, Options{CacheFailures: false})

	first := c.Get(context.Background(), "price_after_launch")
	if !first.Failed() {
		t.Fatal("expected failed entry")
	}
	fetch.err = nil
	second := c.Get(context.Background(), "price_after_launch")
	if second.Failed() || second.Data.Len() != 1 {
		t.Fatalf("second = %+v, want fresh data", second)
	}
	if got := fetch.calls.Load(); got != 2 {
		t.Fatalf("fetches = %d, want 2", got)
	}
}

func TestWarmLoadsAllTablesOnce(t *testing.T) {
	fetch := &countingFetch{}
	c := New(fetch.Fetch, Options{WarmConcurrency: 2})

	tables := []string{"price_after_launch", "price_after_launch_foil", "price_after_launch"}
	entries, err := c.Warm(context.Background(), tables)
	if err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if len(entries) != len(tables) {
		t.Fatalf("entries = %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Table != tables[i] {
			t.Fatalf("entries[%d].Table = %q, want %q", i, entry.Table, tables[i])
		}
	}
	if got := fetch.calls.Load(); got != 2 {
		t.Fatalf("fetches = %d, want 2", got)
	}

	if _, err := c.Warm(context.Background(), tables[:2]); err != nil {
		t.Fatalf("second Warm() error = %v", err)
	}
	if got := fetch.calls.Load(); got != 2 {
		t.Fatalf("fetches after rewarm = %d, want 2", got)
	}
}

func TestWarmStopsOnCancelledContext(t *testing.T) {
	fetch := &countingFetch{}
	c := New(fetch.Fetch, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Warm(ctx, []string{"price_after_launch"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Warm() error = %v, want context.Canceled", err)
	}
	if got := fetch.calls.Load(); got != 0 {
		t.Fatalf("fetches = %d, want 0", got)
	}
}

func TestRefreshRefetches(t *testing.T) {
	fetch := &countingFetch{}
	var mu sync.Mutex
	var hooked []string
	c := New(fetch.Fetch, Options{OnFetch: func(_ context.Context, entry Entry) {
		mu.Lock()
		hooked = append(hooked, entry.Table)
		mu.Unlock()
	}})

	c.Get(context.Background(), "price_after_launch")
	c.Refresh(context.Background(), "price_after_launch")
	if got := fetch.calls.Load(); got != 2 {
		t.Fatalf("fetches = %d, want 2", got)
	}
	if err := c.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(hooked) != 2 {
		t.Fatalf("OnFetch calls = %d, want 2", len(hooked))
	}

	c.Purge()
	if len(c.Entries()) != 0 {
		t.Fatal("expected empty cache after Purge")
	}
}

func TestGetDoesNotWaitForFetchHook(t *testing.T) {
	fetch := &countingFetch{}
	release := make(chan struct{})
	var finished atomic.Bool
	c := New(fetch.Fetch, Options{OnFetch: func(ctx context.Context, _ Entry) {
		<-release
		if ctx.Err() != nil {
			t.Errorf("hook context cancelled: %v", ctx.Err())
		}
		finished.Store(true)
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	entry := c.Get(ctx, "price_after_launch")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Get() took %s while the hook was blocked", elapsed)
	}
	if entry.Data.Len() != 1 {
		t.Fatalf("rows = %d, want 1", entry.Data.Len())
	}
	if finished.Load() {
		t.Fatal("hook finished before it was released")
	}

	short, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()
	if err := c.Drain(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain() with blocked hook error = %v, want DeadlineExceeded", err)
	}

	<-ctx.Done()
	close(release)
	if err := c.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if !finished.Load() {
		t.Fatal("hook did not run")
	}
}
