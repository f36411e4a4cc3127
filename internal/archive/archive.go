// Package archive keeps Parquet snapshots of every successful table fetch in
// an object store, retaining the newest few per table.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/pricedash/pricedash/internal/cache"
	"github.com/pricedash/pricedash/internal/observability"
	"github.com/pricedash/pricedash/internal/query"
	"github.com/pricedash/pricedash/internal/storage"
)

const (
	DefaultKeepSnapshots = 7
	defaultSaveTimeout   = 30 * time.Second
)

var (
	ErrInvalidTable    = errors.New("invalid table name")
	ErrInvalidSnapshot = errors.New("invalid snapshot name")
)

type Snapshot struct {
	Table     string    `json:"table"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Size      int64     `json:"size_bytes"`
	FetchedAt time.Time `json:"fetched_at"`
}

type Archive struct {
	store       storage.ObjectStore
	keep        int
	saveTimeout time.Duration
	logger      *slog.Logger
}

func New(store storage.ObjectStore, keep int, logger *slog.Logger) *Archive {
	if keep <= 0 {
		keep = DefaultKeepSnapshots
	}
	return &Archive{
		store:       store,
		keep:        keep,
		saveTimeout: defaultSaveTimeout,
		logger:      observability.Component(logger, "archive"),
	}
}

// Save writes data as a new snapshot of table and prunes snapshots beyond the
// retention count. It returns the number of pruned snapshots.
func (a *Archive) Save(ctx context.Context, table string, data query.Dataset, fetchedAt time.Time) (Snapshot, int, error) {
	key, err := storage.BuildSnapshotPath(table, fetchedAt)
	if err != nil {
		return Snapshot{}, 0, err
	}
	encoded, err := EncodeDataset(data)
	if err != nil {
		return Snapshot{}, 0, fmt.Errorf("encode snapshot of %q: %w", table, err)
	}
	info, err := a.store.Put(ctx, key, bytes.NewReader(encoded), int64(len(encoded)), storage.PutOptions{ContentType: ContentType})
	if err != nil {
		return Snapshot{}, 0, err
	}

	pruned, err := a.prune(ctx, table)
	if err != nil {
		return Snapshot{}, 0, err
	}
	return Snapshot{
		Table:     table,
		Name:      path.Base(key),
		Key:       key,
		Size:      info.Size,
		FetchedAt: fetchedAt.UTC(),
	}, pruned, nil
}

// Snapshots lists stored snapshots of table, oldest first.
func (a *Archive) Snapshots(ctx context.Context, table string) ([]Snapshot, error) {
	prefix, err := storage.SnapshotPrefix(table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	objects, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	snapshots := make([]Snapshot, 0, len(objects))
	for _, object := range objects {
		fetchedAt, err := storage.ParseSnapshotTime(object.Key)
		if err != nil {
			a.logger.WarnContext(ctx, "skipping foreign object in snapshot prefix", slog.String("key", object.Key))
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Table:     table,
			Name:      path.Base(object.Key),
			Key:       object.Key,
			Size:      object.Size,
			FetchedAt: fetchedAt,
		})
	}
	return snapshots, nil
}

// Open streams one snapshot file. name is the base name returned by Snapshots.
func (a *Archive) Open(ctx context.Context, table, name string) (io.ReadCloser, error) {
	if _, err := storage.ParseSnapshotTime(name); err != nil || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w %q", ErrInvalidSnapshot, name)
	}
	prefix, err := storage.SnapshotPrefix(table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	return a.store.Get(ctx, prefix+name)
}

// OnFetch archives successful, non-empty fetches. It is meant to be
// installed as the table cache's fetch hook.
func (a *Archive) OnFetch(ctx context.Context, entry cache.Entry) {
	if entry.Failed() || entry.Data.Empty() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, a.saveTimeout)
	defer cancel()

	snapshot, pruned, err := a.Save(ctx, entry.Table, entry.Data, entry.FetchedAt)
	observability.ObserveArchiveSnapshot(err, pruned)
	if err != nil {
		a.logger.ErrorContext(ctx, "snapshot failed", slog.String("table", entry.Table), slog.Any("error", err))
		return
	}
	a.logger.InfoContext(ctx, "snapshot stored",
		slog.String("table", entry.Table),
		slog.String("key", snapshot.Key),
		slog.Int64("size_bytes", snapshot.Size),
		slog.Int("pruned", pruned),
	)
}

func (a *Archive) prune(ctx context.Context, table string) (int, error) {
	snapshots, err := a.Snapshots(ctx, table)
	if err != nil {
		return 0, err
	}
	excess := len(snapshots) - a.keep
	if excess <= 0 {
		return 0, nil
	}
	for _, snapshot := range snapshots[:excess] {
		if err := a.store.Delete(ctx, snapshot.Key); err != nil {
			return 0, fmt.Errorf("prune snapshot %q: %w", snapshot.Key, err)
		}
	}
	return excess, nil
}
