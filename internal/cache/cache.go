// Package cache memoizes full-table fetches per table name for a fixed TTL.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/observability"
	"github.com/pricedash/pricedash/internal/query"
)

const (
	DefaultTTL             = 24 * time.Hour
	defaultWarmConcurrency = 2
)

// FetchFunc loads a whole table. On failure it returns an empty Dataset
// together with the error.
type FetchFunc func(ctx context.Context, table string) (query.Dataset, error)

// Entry is one cached fetch. Err is set when the fetch degraded to an empty dataset.
type Entry struct {
	Table     string
	Data      query.Dataset
	FetchedAt time.Time
	Err       error
}

func (e Entry) Failed() bool { return e.Err != nil }

type Options struct {
	TTL time.Duration
	// CacheFailures keeps degraded empty results for the full TTL instead of
	// refetching on the next read.
	CacheFailures   bool
	WarmConcurrency int
	Clock           func() time.Time
	// OnFetch runs after every fetch in its own goroutine, on a context
	// detached from the caller. Drain waits for pending calls.
	OnFetch func(ctx context.Context, entry Entry)
	Logger  *slog.Logger
}

func OptionsFromConfig(cfg config.CacheConfig, logger *slog.Logger) Options {
	return Options{
		TTL:             cfg.TTL,
		CacheFailures:   cfg.CacheFailures,
		WarmConcurrency: cfg.WarmConcurrency,
		Logger:          logger,
	}
}

type TableCache struct {
	fetch           FetchFunc
	ttl             time.Duration
	cacheFailures   bool
	warmConcurrency int
	now             func() time.Time
	onFetch         func(ctx context.Context, entry Entry)
	logger          *slog.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]Entry
	hooks   sync.WaitGroup
}

func New(fetch FetchFunc, opts Options) *TableCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.WarmConcurrency <= 0 {
		opts.WarmConcurrency = defaultWarmConcurrency
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &TableCache{
		fetch:           fetch,
		ttl:             opts.TTL,
		cacheFailures:   opts.CacheFailures,
		warmConcurrency: opts.WarmConcurrency,
		now:             opts.Clock,
		onFetch:         opts.OnFetch,
		logger:          observability.Component(opts.Logger, "cache"),
		entries:         map[string]Entry{},
	}
}

// ExecutorFetch adapts an executor to a FetchFunc issuing SELECT * FROM <table>.
func ExecutorFetch(executor *query.Executor) FetchFunc {
	return func(ctx context.Context, table string) (query.Dataset, error) {
		sqlText, err := query.SelectAll(table)
		if err != nil {
			return query.EmptyDataset(), err
		}
		return executor.Execute(ctx, sqlText)
	}
}

func (c *TableCache) TTL() time.Duration { return c.ttl }

// Get returns the cached entry for table, fetching it when missing or expired.
// Concurrent misses for one table share a single fetch.
func (c *TableCache) Get(ctx context.Context, table string) Entry {
	if entry, ok := c.lookup(table); ok {
		observability.ObserveCacheLookup(table, true)
		return entry
	}
	observability.ObserveCacheLookup(table, false)

	// The flight outlives any single caller.
	flightCtx := context.WithoutCancel(ctx)
	result, _, _ := c.group.Do(table, func() (any, error) {
		if entry, ok := c.lookup(table); ok {
			return entry, nil
		}
		return c.load(flightCtx, table), nil
	})
	return result.(Entry)
}

// Refresh drops the cached entry for table and fetches it again.
func (c *TableCache) Refresh(ctx context.Context, table string) Entry {
	c.Invalidate(table)
	return c.Get(ctx, table)
}

// Warm loads every table that has no fresh entry, a few at a time, and
// returns the entries in the order given.
func (c *TableCache) Warm(ctx context.Context, tables []string) ([]Entry, error) {
	entries := make([]Entry, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.warmConcurrency)
	for i, table := range tables {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries[i] = c.Get(gctx, table)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return entries, err
	}
	return entries, nil
}

func (c *TableCache) Invalidate(table string) {
	c.mu.Lock()
	delete(c.entries, table)
	c.mu.Unlock()
}

func (c *TableCache) Purge() {
	c.mu.Lock()
	c.entries = map[string]Entry{}
	c.mu.Unlock()
}

type Status struct {
	Table     string    `json:"table"`
	Rows      int       `json:"rows"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Fresh     bool      `json:"fresh"`
	Error     string    `json:"error,omitempty"`
}

// Entries lists what the cache holds, sorted by table name.
func (c *TableCache) Entries() []Status {
	now := c.now()
	c.mu.RLock()
	out := make([]Status, 0, len(c.entries))
	for table, entry := range c.entries {
		status := Status{
			Table:     table,
			Rows:      entry.Data.Len(),
			FetchedAt: entry.FetchedAt,
			ExpiresAt: entry.FetchedAt.Add(c.ttl),
			Fresh:     c.fresh(entry, now),
		}
		if entry.Err != nil {
			status.Error = entry.Err.Error()
		}
		out = append(out, status)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out
}

func (c *TableCache) lookup(table string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[table]
	c.mu.RUnlock()
	if !ok || !c.fresh(entry, c.now()) {
		return Entry{}, false
	}
	return entry, true
}

func (c *TableCache) fresh(entry Entry, now time.Time) bool {
	return now.Sub(entry.FetchedAt) < c.ttl
}

func (c *TableCache) load(ctx context.Context, table string) Entry {
	data, err := c.fetch(ctx, table)
	if data.Rows == nil {
		data = query.EmptyDataset()
	}
	entry := Entry{Table: table, Data: data, FetchedAt: c.now(), Err: err}
	observability.ObserveCacheFetch(table, err != nil)

	switch {
	case err == nil:
		c.store(entry)
		c.logger.DebugContext(ctx, "table cached", slog.String("table", table), slog.Int("rows", data.Len()))
	case c.cacheFailures:
		c.store(entry)
		c.logger.WarnContext(ctx, "caching degraded result until ttl expires",
			slog.String("table", table),
			slog.Duration("ttl", c.ttl),
			slog.Any("error", err),
		)
	default:
		c.Invalidate(table)
		c.logger.WarnContext(ctx, "fetch failed, result not cached", slog.String("table", table), slog.Any("error", err))
	}

	if c.onFetch != nil {
		c.hooks.Add(1)
		go func() {
			defer c.hooks.Done()
			c.onFetch(ctx, entry)
		}()
	}
	return entry
}

// Drain waits for in-flight OnFetch calls, or for ctx to end.
func (c *TableCache) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.hooks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *TableCache) store(entry Entry) {
	c.mu.Lock()
	c.entries[entry.Table] = entry
	c.mu.Unlock()
}
