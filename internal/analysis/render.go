// Package analysis turns a page descriptor and a fetched dataset into the
// values a dashboard shows: a pivoted chart table, per-group averages, the
// overview panel and insights.
//
// Render is pure. It never modifies the dataset and returns identical output
// for identical input.
package analysis

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pricedash/pricedash/internal/pages"
	"github.com/pricedash/pricedash/internal/query"
)

type Reason string

const (
	ReasonNoData         Reason = "no_data"
	ReasonSchemaMismatch Reason = "schema_mismatch"
)

const (
	defaultEmptyMessage = "No data available for this page."
	defaultEmptyHint    = "Please try refreshing the page."
	notAvailable        = "n/a"
)

// EmptyState is a normal outcome: there is nothing to chart.
type EmptyState struct {
	Reason         Reason   `json:"reason"`
	Message        string   `json:"message"`
	Hint           string   `json:"hint"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

type PivotRow struct {
	X      float64    `json:"x"`
	Values []*float64 `json:"values"`
}

// Pivot has one row per distinct x value, ascending, and one value per group
// in Groups order. A nil value means no observation for that pair.
type Pivot struct {
	Groups []string   `json:"groups"`
	Rows   []PivotRow `json:"rows"`
}

type GroupStat struct {
	Group     string   `json:"group"`
	Rows      int      `json:"rows"`
	Mean      *float64 `json:"mean"`
	Formatted string   `json:"formatted"`
}

type LabeledValue struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Report is either Empty or fully populated.
type Report struct {
	Empty      *EmptyState    `json:"empty_state,omitempty"`
	Pivot      Pivot          `json:"pivot"`
	GroupStats []GroupStat    `json:"group_stats"`
	Panel      []LabeledValue `json:"panel"`
	Insights   []LabeledValue `json:"insights"`
}

func (r Report) IsEmpty() bool { return r.Empty != nil }

func Render(desc pages.Descriptor, data query.Dataset) Report {
	if data.Empty() {
		return Report{Empty: emptyState(desc, ReasonNoData, nil)}
	}
	if missing := missingColumns(desc, data); len(missing) > 0 {
		return Report{Empty: emptyState(desc, ReasonSchemaMismatch, missing)}
	}

	x := data.ColumnIndex(desc.XColumn)
	y := data.ColumnIndex(desc.YColumn)
	group := data.ColumnIndex(desc.GroupColumn)
	printer := message.NewPrinter(language.English)

	return Report{
		Pivot:      pivot(data, x, y, group),
		GroupStats: groupStats(data, y, group),
		Panel:      panel(printer, desc.Panel, data, group),
		Insights:   insights(desc.Insights, data),
	}
}

func emptyState(desc pages.Descriptor, reason Reason, missing []string) *EmptyState {
	state := &EmptyState{
		Reason:  reason,
		Message: desc.EmptyMessage,
		Hint:    desc.EmptyHint,
	}
	if state.Message == "" {
		state.Message = defaultEmptyMessage
	}
	if state.Hint == "" {
		state.Hint = defaultEmptyHint
	}
	if reason == ReasonSchemaMismatch {
		state.MissingColumns = missing
		state.Message = fmt.Sprintf("Table %s is missing column(s) %s.", desc.Table, strings.Join(missing, ", "))
	}
	return state
}

func missingColumns(desc pages.Descriptor, data query.Dataset) []string {
	var missing []string
	for _, column := range desc.RequiredColumns() {
		if data.ColumnIndex(column) < 0 {
			missing = append(missing, column)
		}
	}
	return missing
}

func pivot(data query.Dataset, x, y, group int) Pivot {
	cells := map[float64]map[string]*float64{}
	groupSet := map[string]bool{}
	for _, row := range data.Rows {
		label, ok := groupLabel(row[group])
		if !ok {
			continue
		}
		groupSet[label] = true

		xValue, ok := query.Float64(row[x])
		if !ok {
			continue
		}
		byGroup, ok := cells[xValue]
		if !ok {
			byGroup = map[string]*float64{}
			cells[xValue] = byGroup
		}
		// Duplicate (x, group) pairs: the later row wins, and a later
		// non-numeric y clears the cell.
		if yValue, ok := query.Float64(row[y]); ok {
			byGroup[label] = &yValue
		} else {
			byGroup[label] = nil
		}
	}

	groups := sortedKeys(groupSet)
	xs := make([]float64, 0, len(cells))
	for xValue := range cells {
		xs = append(xs, xValue)
	}
	sort.Float64s(xs)

	rows := make([]PivotRow, 0, len(xs))
	for _, xValue := range xs {
		values := make([]*float64, len(groups))
		for i, label := range groups {
			values[i] = cells[xValue][label]
		}
		rows = append(rows, PivotRow{X: xValue, Values: values})
	}
	return Pivot{Groups: groups, Rows: rows}
}

func groupStats(data query.Dataset, y, group int) []GroupStat {
	means := groupMeans(data, y, group)
	stats := make([]GroupStat, 0, len(means.order))
	for _, label := range means.order {
		acc := means.byGroup[label]
		stat := GroupStat{Group: label, Rows: acc.rows, Formatted: notAvailable}
		if mean, ok := acc.mean(); ok {
			stat.Mean = &mean
			stat.Formatted = formatCurrency(mean)
		}
		stats = append(stats, stat)
	}
	return stats
}

func panel(printer *message.Printer, entries []pages.PanelStat, data query.Dataset, group int) []LabeledValue {
	out := make([]LabeledValue, 0, len(entries))
	for _, entry := range entries {
		var value string
		switch stat := entry.Stat.(type) {
		case pages.CountRows:
			value = printer.Sprintf("%d", data.Len())
		case pages.CountUniqueGroups:
			value = strings.TrimSpace(printer.Sprintf("%d", countDistinct(data, group)) + " " + stat.Unit)
		case pages.Static:
			value = stat.Text
		}
		out = append(out, LabeledValue{Label: entry.Label, Value: value})
	}
	return out
}

func insights(entries []pages.PanelInsight, data query.Dataset) []LabeledValue {
	out := make([]LabeledValue, 0, len(entries))
	for _, entry := range entries {
		value := notAvailable
		switch insight := entry.Insight.(type) {
		case pages.Mean:
			var acc accumulator
			column := data.ColumnIndex(insight.Column)
			for _, row := range data.Rows {
				acc.add(row[column])
			}
			if mean, ok := acc.mean(); ok {
				value = formatCurrency(mean)
			}
		case pages.MaxGroupAverage:
			means := groupMeans(data, data.ColumnIndex(insight.ValueColumn), data.ColumnIndex(insight.GroupColumn))
			if label, mean, ok := means.max(); ok {
				value = fmt.Sprintf("%s (%s)", label, formatCurrency(mean))
			}
		}
		out = append(out, LabeledValue{Label: entry.Label, Value: value})
	}
	return out
}

func countDistinct(data query.Dataset, column int) int {
	seen := map[string]bool{}
	for _, row := range data.Rows {
		if label, ok := groupLabel(row[column]); ok {
			seen[label] = true
		}
	}
	return len(seen)
}

func formatCurrency(value float64) string {
	return fmt.Sprintf("$%.2f", value)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
