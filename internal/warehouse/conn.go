// Package warehouse acquires live connections to the analytical data source.
//
// A Provider walks an ordered list of strategies (the hosting environment's
// ambient session first, then explicit credentials) and hands back the first
// connection that answers a liveness probe. It never retries and never pools;
// retry policy belongs to the query executor.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Conn is a probed connection handed out by a Provider. Callers must Release it.
type Conn struct {
	Strategy string

	db      *sql.DB
	release func() error
	once    sync.Once
	err     error
}

// NewConn wraps db. release runs once on Release; nil means the handle is shared
// and outlives this Conn.
func NewConn(strategy string, db *sql.DB, release func() error) *Conn {
	return &Conn{Strategy: strategy, db: db, release: release}
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c == nil || c.db == nil {
		return nil, fmt.Errorf("connection is not open")
	}
	return c.db.QueryContext(ctx, query, args...)
}

func (c *Conn) Release() error {
	if c == nil {
		return nil
	}
	c.once.Do(func() {
		if c.release != nil {
			c.err = c.release()
		}
	})
	return c.err
}

func (c *Conn) probe(ctx context.Context) error {
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("liveness probe: %w", err)
	}
	return nil
}
