package analysis

import (
	"reflect"
	"testing"

	"github.com/pricedash/pricedash/internal/pages"
	"github.com/pricedash/pricedash/internal/query"
)

func regularPage() pages.Descriptor {
	page, _ := pages.Default().Lookup("regular")
	return page
}

func priceData(rows ...[]any) query.Dataset {
	return query.Dataset{Columns: []string{"SET_NAME", "DATE_DIFF", "AVG_USD"}, Rows: rows}
}

func TestRenderZeroRowsIsEmptyState(t *testing.T) {
	for _, data := range []query.Dataset{query.EmptyDataset(), priceData(), {}} {
		report := Render(regularPage(), data)
		if !report.IsEmpty() {
			t.Fatalf("Render(%#v) = %+v, want empty state", data, report)
		}
		if report.Empty.Reason != ReasonNoData {
			t.Fatalf("Reason = %q, want %q", report.Empty.Reason, ReasonNoData)
		}
		if report.Empty.Message != "Unable to load regular price analysis data." || report.Empty.Hint != "Please try refreshing the page." {
			t.Fatalf("Empty = %+v", report.Empty)
		}
	}
}

func TestRenderSchemaMismatchIsEmptyState(t *testing.T) {
	data := query.Dataset{
		Columns: []string{"SET_NAME", "DAY", "AVG_USD"},
		Rows:    [][]any{{"A", int64(1), 1.0}},
	}
	report := Render(regularPage(), data)
	if !report.IsEmpty() || report.Empty.Reason != ReasonSchemaMismatch {
		t.Fatalf("Render() = %+v, want schema mismatch", report)
	}
	if !reflect.DeepEqual(report.Empty.MissingColumns, []string{"DATE_DIFF"}) {
		t.Fatalf("MissingColumns = %v", report.Empty.MissingColumns)
	}
}

func TestPivotShapeAndOrder(t *testing.T) {
	data := priceData(
		[]any{"Zendikar", int64(3), 2.0},
		[]any{"Alpha", int64(1), 1.0},
		[]any{"Alpha", int64(3), 3.0},
		[]any{"Zendikar", int64(2), 5.0},
		[]any{"Beta", int64(2), 4.0},
	)
	report := Render(regularPage(), data)
	if report.IsEmpty() {
		t.Fatalf("unexpected empty state %+v", report.Empty)
	}

	pivot := report.Pivot
	if !reflect.DeepEqual(pivot.Groups, []string{"Alpha", "Beta", "Zendikar"}) {
		t.Fatalf("Groups = %v", pivot.Groups)
	}
	if len(pivot.Rows) != 3 {
		t.Fatalf("rows = %d, want 3 distinct x values", len(pivot.Rows))
	}
	for i, want := range []float64{1, 2, 3} {
		if pivot.Rows[i].X != want {
			t.Fatalf("Rows[%d].X = %v, want %v", i, pivot.Rows[i].X, want)
		}
		if len(pivot.Rows[i].Values) != 3 {
			t.Fatalf("Rows[%d] has %d columns, want 3", i, len(pivot.Rows[i].Values))
		}
	}
	if got := cells(pivot.Rows[0]); !reflect.DeepEqual(got, []any{1.0, nil, nil}) {
		t.Fatalf("row x=1 = %v", got)
	}
	if got := cells(pivot.Rows[2]); !reflect.DeepEqual(got, []any{3.0, nil, 2.0}) {
		t.Fatalf("row x=3 = %v", got)
	}
}

func TestPivotDuplicatePairsLastWriteWins(t *testing.T) {
	data := priceData(
		[]any{"Alpha", int64(1), 1.0},
		[]any{"Alpha", int64(1), 7.5},
	)
	report := Render(regularPage(), data)
	if got := cells(report.Pivot.Rows[0]); !reflect.DeepEqual(got, []any{7.5}) {
		t.Fatalf("cell = %v, want last value 7.5", got)
	}
	// Both duplicates still count toward the group mean.
	if report.GroupStats[0].Formatted != "$4.25" {
		t.Fatalf("group mean = %q", report.GroupStats[0].Formatted)
	}
}

func TestPivotLaterNonNumericDuplicateClearsCell(t *testing.T) {
	data := priceData(
		[]any{"Alpha", int64(1), 2.0},
		[]any{"Alpha", int64(1), nil},
		[]any{"Beta", int64(1), 3.0},
		[]any{"Beta", int64(1), "n/a"},
	)
	report := Render(regularPage(), data)
	if len(report.Pivot.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(report.Pivot.Rows))
	}
	if got := cells(report.Pivot.Rows[0]); !reflect.DeepEqual(got, []any{nil, nil}) {
		t.Fatalf("cells = %v, want both cleared", got)
	}
}

func TestGroupStatsMeansSortedByGroup(t *testing.T) {
	data := priceData(
		[]any{"B", int64(1), 4.5},
		[]any{"A", int64(1), 1.0},
		[]any{"B", int64(2), 5.0},
		[]any{"A", int64(2), 3.0},
	)
	report := Render(regularPage(), data)
	want := []struct {
		group string
		value string
	}{{"A", "$2.00"}, {"B", "$4.75"}}
	if len(report.GroupStats) != len(want) {
		t.Fatalf("GroupStats = %+v", report.GroupStats)
	}
	for i, w := range want {
		got := report.GroupStats[i]
		if got.Group != w.group || got.Formatted != w.value || got.Rows != 2 {
			t.Fatalf("GroupStats[%d] = %+v, want %s %s", i, got, w.group, w.value)
		}
	}
}

func TestPanelStats(t *testing.T) {
	rows := make([][]any, 0, 1200)
	for i := 0; i < 1200; i++ {
		rows = append(rows, []any{[]string{"A", "B", "C"}[i%3], int64(i / 3), 1.0})
	}
	report := Render(regularPage(), priceData(rows...))

	want := []LabeledValue{
		{Label: "Total data points", Value: "1,200"},
		{Label: "Tracking period", Value: "1-300 days after release"},
		{Label: "Card rarities", Value: "Mythic & Rare only"},
		{Label: "Sets analyzed", Value: "3 expansion sets"},
	}
	if !reflect.DeepEqual(report.Panel, want) {
		t.Fatalf("Panel = %+v", report.Panel)
	}
}

func TestInsights(t *testing.T) {
	data := priceData(
		[]any{"A", int64(1), 2.5},
		[]any{"B", int64(1), 4.5},
		[]any{"B", int64(2), 5.0},
	)
	report := Render(regularPage(), data)
	want := []LabeledValue{
		{Label: "Overall average price", Value: "$4.00"},
		{Label: "Highest average set", Value: "B ($4.75)"},
	}
	if !reflect.DeepEqual(report.Insights, want) {
		t.Fatalf("Insights = %+v", report.Insights)
	}
}

func TestMaxGroupAverageTieGoesToFirstGroup(t *testing.T) {
	data := priceData(
		[]any{"Mirage", int64(1), 3.0},
		[]any{"Ice Age", int64(1), 3.0},
		[]any{"Alpha", int64(1), 1.0},
	)
	report := Render(regularPage(), data)
	if got := report.Insights[1].Value; got != "Ice Age ($3.00)" {
		t.Fatalf("max_group_avg = %q, want Ice Age ($3.00)", got)
	}
}

func TestNonNumericValuesAreSkipped(t *testing.T) {
	data := priceData(
		[]any{"A", int64(1), nil},
		[]any{"A", "2", "3.5"},
		[]any{nil, int64(3), 9.0},
		[]any{"B", "soon", 1.0},
	)
	report := Render(regularPage(), data)

	if !reflect.DeepEqual(report.Pivot.Groups, []string{"A", "B"}) {
		t.Fatalf("Groups = %v", report.Pivot.Groups)
	}
	if len(report.Pivot.Rows) != 2 {
		t.Fatalf("pivot rows = %d, want 2", len(report.Pivot.Rows))
	}
	if got := cells(report.Pivot.Rows[0]); !reflect.DeepEqual(got, []any{nil, nil}) {
		t.Fatalf("row x=1 = %v", got)
	}
	if report.GroupStats[0].Formatted != "$3.50" || report.GroupStats[0].Rows != 2 {
		t.Fatalf("GroupStats[0] = %+v", report.GroupStats[0])
	}
	if report.Panel[0].Value != "4" {
		t.Fatalf("count_rows = %q, want 4", report.Panel[0].Value)
	}
}

func TestInsightWithoutNumbersIsNotAvailable(t *testing.T) {
	data := priceData([]any{"A", int64(1), "unknown"})
	report := Render(regularPage(), data)
	for _, insight := range report.Insights {
		if insight.Value != "n/a" {
			t.Fatalf("insight %q = %q, want n/a", insight.Label, insight.Value)
		}
	}
	if report.GroupStats[0].Mean != nil {
		t.Fatalf("Mean = %v, want nil", *report.GroupStats[0].Mean)
	}
}

func TestRenderIsDeterministicAndDoesNotMutateInput(t *testing.T) {
	data := priceData(
		[]any{"B", int64(2), 4.0},
		[]any{"A", int64(1), []byte("x")},
		[]any{"A", int64(2), 1.5},
		[]any{"C", int64(1), 2.25},
	)
	before := cloneDataset(data)

	first := Render(regularPage(), data)
	second := Render(regularPage(), data)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Render() not deterministic:\n%+v\n%+v", first, second)
	}
	if !reflect.DeepEqual(data, before) {
		t.Fatalf("Render() mutated input: %+v", data)
	}
}

func cells(row PivotRow) []any {
	out := make([]any, len(row.Values))
	for i, value := range row.Values {
		if value != nil {
			out[i] = *value
		}
	}
	return out
}

func cloneDataset(data query.Dataset) query.Dataset {
	clone := query.Dataset{Columns: append([]string(nil), data.Columns...)}
	for _, row := range data.Rows {
		clone.Rows = append(clone.Rows, append([]any(nil), row...))
	}
	return clone
}
