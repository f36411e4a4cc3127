package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pricedash/pricedash/internal/analysis"
	"github.com/pricedash/pricedash/internal/cache"
	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/pages"
	"github.com/pricedash/pricedash/internal/query"
)

type fakeWarehouse struct {
	mu     sync.Mutex
	tables map[string]query.Dataset
	err    error
	calls  map[string]int
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		tables: map[string]query.Dataset{
			"price_after_launch": {
				Columns: []string{"SET_NAME", "DATE_DIFF", "AVG_USD"},
				Rows: [][]any{
					{"A", int64(1), 2.5},
					{"B", int64(1), 4.5},
					{"B", int64(2), 5.0},
				},
			},
			"price_after_launch_foil": query.EmptyDataset(),
		},
		calls: map[string]int{},
	}
}

func (f *fakeWarehouse) Fetch(_ context.Context, table string) (query.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[table]++
	if f.err != nil {
		return query.EmptyDataset(), f.err
	}
	return f.tables[table], nil
}

func (f *fakeWarehouse) Calls(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[table]
}

func newTestService(warehouse *fakeWarehouse, policy config.LoadPolicy) *Service {
	tables := cache.New(warehouse.Fetch, cache.Options{CacheFailures: true})
	return NewService(pages.Default(), tables, policy, nil)
}

func TestRenderPageLazyFetchesOnlyItsTable(t *testing.T) {
	warehouse := newFakeWarehouse()
	svc := newTestService(warehouse, config.LoadPolicyLazy)

	page, err := svc.RenderPage(context.Background(), "regular")
	if err != nil {
		t.Fatalf("RenderPage() error = %v", err)
	}
	if page.Report.IsEmpty() {
		t.Fatalf("unexpected empty state %+v", page.Report.Empty)
	}
	if page.XLabel != "Days After Launch" || page.Headings.Groups != "Sets Tracked" {
		t.Fatalf("page chrome = %+v", page)
	}
	if got := page.Report.Insights[1].Value; got != "B ($4.75)" {
		t.Fatalf("highest set = %q", got)
	}
	if warehouse.Calls("price_after_launch") != 1 || warehouse.Calls("price_after_launch_foil") != 0 {
		t.Fatalf("calls = %v", warehouse.calls)
	}

	if _, err := svc.RenderPage(context.Background(), "regular"); err != nil {
		t.Fatalf("second RenderPage() error = %v", err)
	}
	if warehouse.Calls("price_after_launch") != 1 {
		t.Fatalf("cached page refetched: %v", warehouse.calls)
	}
}

func TestRenderPageBatchWarmsEveryTable(t *testing.T) {
	warehouse := newFakeWarehouse()
	svc := newTestService(warehouse, config.LoadPolicyBatch)

	page, err := svc.RenderPage(context.Background(), "foil")
	if err != nil {
		t.Fatalf("RenderPage() error = %v", err)
	}
	if !page.Report.IsEmpty() || page.Report.Empty.Reason != analysis.ReasonNoData {
		t.Fatalf("foil report = %+v, want no_data", page.Report)
	}
	if warehouse.Calls("price_after_launch") != 1 || warehouse.Calls("price_after_launch_foil") != 1 {
		t.Fatalf("calls = %v, want one fetch per table", warehouse.calls)
	}
}

func TestRenderPageDegradedFetchShowsError(t *testing.T) {
	warehouse := newFakeWarehouse()
	warehouse.err = &query.QueryError{Query: "SELECT * FROM price_after_launch", Attempts: 3, Err: errors.New("warehouse suspended")}
	svc := newTestService(warehouse, config.LoadPolicyLazy)

	page, err := svc.RenderPage(context.Background(), "regular")
	if err != nil {
		t.Fatalf("RenderPage() error = %v", err)
	}
	if !page.Report.IsEmpty() {
		t.Fatal("expected empty state for degraded fetch")
	}
	if page.Error == "" {
		t.Fatal("expected user-facing error")
	}
}

func TestRenderPageUnknownSlug(t *testing.T) {
	svc := newTestService(newFakeWarehouse(), config.LoadPolicyLazy)
	if _, err := svc.RenderPage(context.Background(), "mythic"); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("RenderPage() error = %v, want ErrPageNotFound", err)
	}
	if _, _, err := svc.Entry(context.Background(), "mythic"); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("Entry() error = %v, want ErrPageNotFound", err)
	}
}

func TestRenderAllKeepsMenuOrder(t *testing.T) {
	svc := newTestService(newFakeWarehouse(), config.LoadPolicyLazy)
	board := svc.RenderAll(context.Background())
	if board.Title != "MTG Price Analysis" || len(board.Pages) != 2 {
		t.Fatalf("RenderAll() = %+v", board)
	}
	if board.Pages[0].Slug != "regular" || board.Pages[1].Slug != "foil" {
		t.Fatalf("page order = %s, %s", board.Pages[0].Slug, board.Pages[1].Slug)
	}
}

func TestRefresh(t *testing.T) {
	warehouse := newFakeWarehouse()
	svc := newTestService(warehouse, config.LoadPolicyLazy)
	ctx := context.Background()

	if _, err := svc.RenderPage(ctx, "regular"); err != nil {
		t.Fatalf("RenderPage() error = %v", err)
	}
	statuses, err := svc.Refresh(ctx, "price_after_launch")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if warehouse.Calls("price_after_launch") != 2 || len(statuses) != 1 {
		t.Fatalf("calls = %v, statuses = %+v", warehouse.calls, statuses)
	}

	if _, err := svc.Refresh(ctx, ""); err != nil {
		t.Fatalf("Refresh(all) error = %v", err)
	}
	if warehouse.Calls("price_after_launch") != 3 || warehouse.Calls("price_after_launch_foil") != 1 {
		t.Fatalf("calls = %v", warehouse.calls)
	}
	if len(svc.CacheStatus()) != 2 {
		t.Fatalf("CacheStatus() = %+v", svc.CacheStatus())
	}

	if _, err := svc.Refresh(ctx, "secret_table"); !errors.Is(err, ErrTableNotFound) {
		t.Fatalf("Refresh(unknown) error = %v", err)
	}
}
