package query

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/warehouse"
)

const priceQuery = "SELECT * FROM price_after_launch"

type fakeAcquirer struct {
	db       *sql.DB
	failures []error
	calls    int
}

func (f *fakeAcquirer) Acquire(context.Context) (*warehouse.Conn, error) {
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	return warehouse.NewConn("test", f.db, nil), nil
}

type recordingReporter struct {
	reports []*QueryError
}

func (r *recordingReporter) ReportQueryError(_ context.Context, err *QueryError) {
	r.reports = append(r.reports, err)
}

func newTestExecutor(acquirer Acquirer, reporter Reporter, sleeps *[]time.Duration) *Executor {
	executor := NewExecutor(acquirer, config.QueryConfig{MaxRetries: DefaultMaxRetries, Backoff: DefaultBackoff}, reporter, nil)
	executor.Sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return executor
}

func TestExecuteSucceedsOnThirdAttempt(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(priceQuery).WillReturnError(errors.New("warehouse suspended"))
	mock.ExpectQuery(priceQuery).WillReturnError(errors.New("warehouse suspended"))
	mock.ExpectQuery(priceQuery).WillReturnRows(
		sqlmock.NewRows([]string{"SET_NAME", "DATE_DIFF", "AVG_USD"}).
			AddRow("Alpha", int64(0), 2.5).
			AddRow([]byte("Beta"), int64(1), 4.75),
	)

	reporter := &recordingReporter{}
	var sleeps []time.Duration
	executor := newTestExecutor(&fakeAcquirer{db: db}, reporter, &sleeps)

	data, err := executor.Execute(context.Background(), priceQuery)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if data.Len() != 2 {
		t.Fatalf("rows = %d, want 2", data.Len())
	}
	if data.Rows[1][0] != "Beta" {
		t.Fatalf("[]byte value = %#v, want string", data.Rows[1][0])
	}
	if len(reporter.reports) != 0 {
		t.Fatalf("reports = %d, want 0", len(reporter.reports))
	}
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != time.Second {
		t.Fatalf("sleeps = %v, want two fixed 1s waits", sleeps)
	}
	assertSQLMock(t, mock)
}

func TestExecuteDegradesToEmptyAndReportsOnce(t *testing.T) {
	db, mock := newSQLMock(t)
	for i := 0; i < 3; i++ {
		mock.ExpectQuery(priceQuery).WillReturnError(errors.New("warehouse suspended"))
	}

	reporter := &recordingReporter{}
	var sleeps []time.Duration
	executor := newTestExecutor(&fakeAcquirer{db: db}, reporter, &sleeps)

	data, err := executor.Execute(context.Background(), priceQuery+";")
	if !data.Empty() || data.Rows == nil {
		t.Fatalf("Execute() data = %#v, want empty non-nil dataset", data)
	}
	var queryErr *QueryError
	if !errors.As(err, &queryErr) {
		t.Fatalf("Execute() error = %v, want *QueryError", err)
	}
	if queryErr.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", queryErr.Attempts)
	}
	if queryErr.Query != priceQuery {
		t.Fatalf("Query = %q", queryErr.Query)
	}
	if len(reporter.reports) != 1 {
		t.Fatalf("reports = %d, want exactly 1", len(reporter.reports))
	}
	if len(sleeps) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(sleeps))
	}
	assertSQLMock(t, mock)
}

func TestExecuteReacquiresConnectionPerAttempt(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(priceQuery).WillReturnRows(sqlmock.NewRows([]string{"X"}).AddRow(1))

	connErr := &warehouse.ConnectionError{Failures: []warehouse.StrategyFailure{{Strategy: "credentials", Err: errors.New("timeout")}}}
	acquirer := &fakeAcquirer{db: db, failures: []error{connErr}}
	reporter := &recordingReporter{}
	var sleeps []time.Duration

	data, err := newTestExecutor(acquirer, reporter, &sleeps).Execute(context.Background(), priceQuery)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if data.Len() != 1 || acquirer.calls != 2 {
		t.Fatalf("rows = %d, acquires = %d", data.Len(), acquirer.calls)
	}
	assertSQLMock(t, mock)
}

func TestExecuteWithZeroRetriesMakesOneAttempt(t *testing.T) {
	connErr := errors.New("no route to warehouse")
	acquirer := &fakeAcquirer{failures: []error{connErr, connErr}}
	reporter := &recordingReporter{}
	var sleeps []time.Duration

	_, err := newTestExecutor(acquirer, reporter, &sleeps).ExecuteWithRetries(context.Background(), priceQuery, 0)
	if !errors.Is(err, connErr) {
		t.Fatalf("error = %v, want wrapped cause", err)
	}
	if acquirer.calls != 1 || len(sleeps) != 0 {
		t.Fatalf("acquires = %d, sleeps = %d", acquirer.calls, len(sleeps))
	}
}

func TestExecuteStopsRetryingWhenContextEnds(t *testing.T) {
	acquirer := &fakeAcquirer{failures: []error{errors.New("down"), errors.New("down"), errors.New("down")}}
	reporter := &recordingReporter{}
	executor := NewExecutor(acquirer, config.QueryConfig{MaxRetries: 2, Backoff: time.Hour}, reporter, nil)

	ctx, cancel := context.WithCancel(context.Background())
	executor.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := executor.Execute(ctx, priceQuery)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if acquirer.calls != 1 || len(reporter.reports) != 1 {
		t.Fatalf("acquires = %d, reports = %d", acquirer.calls, len(reporter.reports))
	}
}

func TestExecuteRejectsEmptySQL(t *testing.T) {
	reporter := &recordingReporter{}
	var sleeps []time.Duration
	data, err := newTestExecutor(&fakeAcquirer{}, reporter, &sleeps).Execute(context.Background(), " ; ")
	if err == nil || !data.Empty() {
		t.Fatalf("Execute() = %v, %v", data, err)
	}
	if len(reporter.reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reporter.reports))
	}
}

func TestSelectAll(t *testing.T) {
	got, err := SelectAll("MTG.PRICES.price_after_launch")
	if err != nil || got != "SELECT * FROM MTG.PRICES.price_after_launch" {
		t.Fatalf("SelectAll() = %q, %v", got, err)
	}
	for _, bad := range []string{"", "prices; DROP TABLE x", "1table", "a.b.c.d", `"quoted"`} {
		if _, err := SelectAll(bad); err == nil {
			t.Fatalf("SelectAll(%q) expected error", bad)
		}
	}
}

func TestDatasetColumnIndex(t *testing.T) {
	data := Dataset{Columns: []string{"SET_NAME", "AVG_PRICE"}}
	if data.ColumnIndex("AVG_PRICE") != 1 || data.ColumnIndex("missing") != -1 {
		t.Fatalf("ColumnIndex() mismatch")
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
