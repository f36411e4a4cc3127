package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const snapshotRoot = "snapshots"

// snapshotTimeLayout sorts lexicographically in time order.
const snapshotTimeLayout = "20060102T150405.000000000Z"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

func BuildSnapshotPath(table string, fetchedAt time.Time) (string, error) {
	prefix, err := SnapshotPrefix(table)
	if err != nil {
		return "", err
	}
	return prefix + fetchedAt.UTC().Format(snapshotTimeLayout) + ".parquet", nil
}

// SnapshotPrefix is the key prefix, with trailing slash, of every snapshot of table.
func SnapshotPrefix(table string) (string, error) {
	if err := validatePathComponent(strings.ToLower(table), "table name"); err != nil {
		return "", err
	}
	return path.Join(snapshotRoot, strings.ToLower(table)) + "/", nil
}

// ParseSnapshotTime recovers the fetch time encoded in a snapshot key.
func ParseSnapshotTime(key string) (time.Time, error) {
	name := strings.TrimSuffix(path.Base(key), ".parquet")
	ts, err := time.Parse(snapshotTimeLayout, name)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse snapshot key %q: %w", key, err)
	}
	return ts, nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
