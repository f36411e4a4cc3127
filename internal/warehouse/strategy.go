package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/snowflakedb/gosnowflake"
)

var ErrNoAmbientSession = errors.New("no ambient session available")

// Strategy opens one kind of connection. Open returns an unprobed Conn.
type Strategy interface {
	Name() string
	Open(ctx context.Context) (*Conn, error)
}

// Credentials is the explicit connection bundle read from configuration.
type Credentials struct {
	Account   string
	User      string
	Password  string
	Warehouse string
	Database  string
	Schema    string
}

type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// AmbientStrategy reuses a session that the hosting environment already holds.
// The session is shared: releasing a Conn from it does not close it.
type AmbientStrategy struct {
	driver string
	dsn    string
	open   OpenFunc

	mu     sync.Mutex
	db     *sql.DB
	owned  bool
	closed bool
}

// NewAmbientSession wraps a handle owned by the host. A nil db means no session.
func NewAmbientSession(db *sql.DB) *AmbientStrategy {
	return &AmbientStrategy{db: db}
}

// NewAmbientDSN opens driver/dsn on first use and keeps it for the process lifetime.
// An empty dsn means the environment provides no ambient session.
func NewAmbientDSN(driver, dsn string, open OpenFunc) *AmbientStrategy {
	if open == nil {
		open = sql.Open
	}
	return &AmbientStrategy{driver: driver, dsn: strings.TrimSpace(dsn), open: open}
}

func (s *AmbientStrategy) Name() string { return "ambient" }

func (s *AmbientStrategy) Open(_ context.Context) (*Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrNoAmbientSession
	}
	if s.db == nil {
		if s.dsn == "" || s.open == nil {
			return nil, ErrNoAmbientSession
		}
		db, err := s.open(driverName(s.driver), s.dsn)
		if err != nil {
			return nil, fmt.Errorf("open ambient session: %w", err)
		}
		s.db = db
		s.owned = true
	}
	return NewConn(s.Name(), s.db, nil), nil
}

// Close closes the session if this strategy opened it.
func (s *AmbientStrategy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.db == nil || !s.owned {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// CredentialStrategy builds a fresh connection from Credentials on every Open.
type CredentialStrategy struct {
	Driver      string
	Credentials Credentials
	OpenDB      OpenFunc
}

func (s *CredentialStrategy) Name() string { return "credentials" }

func (s *CredentialStrategy) Open(_ context.Context) (*Conn, error) {
	dsn, err := BuildDSN(s.Driver, s.Credentials)
	if err != nil {
		return nil, err
	}
	open := s.OpenDB
	if open == nil {
		open = sql.Open
	}
	db, err := open(driverName(s.Driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", s.Driver, err)
	}
	return NewConn(s.Name(), db, db.Close), nil
}

// BuildDSN renders the credential bundle as a DSN for driver.
func BuildDSN(driver string, creds Credentials) (string, error) {
	switch driver {
	case "snowflake":
		if creds.Account == "" || creds.User == "" {
			return "", fmt.Errorf("snowflake account and user are required")
		}
		dsn, err := gosnowflake.DSN(&gosnowflake.Config{
			Account:   creds.Account,
			User:      creds.User,
			Password:  creds.Password,
			Warehouse: creds.Warehouse,
			Database:  creds.Database,
			Schema:    creds.Schema,
		})
		if err != nil {
			return "", fmt.Errorf("build snowflake dsn: %w", err)
		}
		return dsn, nil
	case "postgres":
		if creds.Account == "" {
			return "", fmt.Errorf("postgres host (account) is required")
		}
		dsn := url.URL{
			Scheme: "postgres",
			Host:   creds.Account,
			Path:   "/" + creds.Database,
		}
		if creds.User != "" {
			dsn.User = url.UserPassword(creds.User, creds.Password)
		}
		params := url.Values{}
		if creds.Schema != "" {
			params.Set("search_path", creds.Schema)
		}
		if creds.Warehouse != "" {
			params.Set("application_name", creds.Warehouse)
		}
		dsn.RawQuery = params.Encode()
		return dsn.String(), nil
	case "duckdb":
		// The database field is a file path; empty means in-memory.
		if creds.Database == "" {
			return "", nil
		}
		return creds.Database + "?access_mode=read_only", nil
	default:
		return "", fmt.Errorf("unsupported warehouse driver %q", driver)
	}
}

func driverName(driver string) string {
	switch driver {
	case "postgres":
		return "pgx"
	default:
		return driver
	}
}
