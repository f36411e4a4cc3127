package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/observability"
	"github.com/pricedash/pricedash/internal/warehouse"
)

const (
	DefaultMaxRetries = 2
	DefaultBackoff    = time.Second
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

type Acquirer interface {
	Acquire(ctx context.Context) (*warehouse.Conn, error)
}

// QueryError is returned alongside an empty Dataset once every attempt failed.
type QueryError struct {
	Query    string
	Attempts int
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Reporter surfaces exhausted queries to the user. It is called once per failed Execute.
type Reporter interface {
	ReportQueryError(ctx context.Context, err *QueryError)
}

type ReporterFunc func(ctx context.Context, err *QueryError)

func (f ReporterFunc) ReportQueryError(ctx context.Context, err *QueryError) { f(ctx, err) }

type logReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) Reporter {
	return logReporter{logger: observability.Component(logger, "query")}
}

func (r logReporter) ReportQueryError(ctx context.Context, err *QueryError) {
	r.logger.ErrorContext(ctx, "query failed",
		slog.String("query", err.Query),
		slog.Int("attempts", err.Attempts),
		slog.Any("error", err.Err),
	)
}

type Executor struct {
	Connections Acquirer
	MaxRetries  int
	Backoff     time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
	Reporter    Reporter

	logger *slog.Logger
}

func NewExecutor(connections Acquirer, cfg config.QueryConfig, reporter Reporter, logger *slog.Logger) *Executor {
	if reporter == nil {
		reporter = NewLogReporter(logger)
	}
	return &Executor{
		Connections: connections,
		MaxRetries:  cfg.MaxRetries,
		Backoff:     cfg.Backoff,
		Sleep:       sleepContext,
		Reporter:    reporter,
		logger:      observability.Component(logger, "query"),
	}
}

func (e *Executor) Execute(ctx context.Context, sqlText string) (Dataset, error) {
	return e.ExecuteWithRetries(ctx, sqlText, e.MaxRetries)
}

// ExecuteWithRetries makes maxRetries+1 attempts with a fixed backoff between
// them. When all fail it reports a *QueryError and returns it together with
// an empty Dataset, so callers can render from the result either way.
func (e *Executor) ExecuteWithRetries(ctx context.Context, sqlText string, maxRetries int) (Dataset, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return e.fail(ctx, &QueryError{Query: sqlText, Err: fmt.Errorf("sql is required")})
	}

	start := time.Now()
	attempts := 0
	var lastErr error
	for {
		attempts++
		data, err := e.attempt(ctx, sqlText)
		observability.ObserveQueryAttempt(err == nil)
		if err == nil {
			observability.ObserveQuerySuccess(time.Since(start))
			return data, nil
		}
		lastErr = err
		if attempts > maxRetries {
			break
		}

		e.logger.WarnContext(ctx, "query attempt failed, retrying",
			slog.Int("attempt", attempts),
			slog.Duration("backoff", e.Backoff),
			slog.Any("error", err),
		)
		if err := e.wait(ctx); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}
	return e.fail(ctx, &QueryError{Query: sqlText, Attempts: attempts, Err: lastErr})
}

func (e *Executor) attempt(ctx context.Context, sqlText string) (Dataset, error) {
	if e.Connections == nil {
		return Dataset{}, fmt.Errorf("no connection provider configured")
	}
	conn, err := e.Connections.Acquire(ctx)
	if err != nil {
		return Dataset{}, err
	}
	defer func() { _ = conn.Release() }()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return Dataset{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return ScanRows(rows)
}

func (e *Executor) wait(ctx context.Context) error {
	if e.Backoff <= 0 {
		return ctx.Err()
	}
	sleep := e.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return sleep(ctx, e.Backoff)
}

func (e *Executor) fail(ctx context.Context, queryErr *QueryError) (Dataset, error) {
	observability.IncrementQueryExhausted()
	if e.Reporter != nil {
		e.Reporter.ReportQueryError(ctx, queryErr)
	}
	return EmptyDataset(), queryErr
}

// SelectAll builds the full-table fetch. Table names are validated, not quoted,
// so warehouse case folding applies as written.
func SelectAll(table string) (string, error) {
	table = strings.TrimSpace(table)
	if !identifierPattern.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return "SELECT * FROM " + table, nil
}

// ValidTableName reports whether SelectAll accepts table.
func ValidTableName(table string) bool {
	return identifierPattern.MatchString(table)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
