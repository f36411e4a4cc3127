// Package pages holds the declarative page descriptors. Adding a page means
// adding a Descriptor; statistics and insights come from a closed set of kinds.
package pages

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pricedash/pricedash/internal/query"
)

// Stat is one entry of a page's dataset overview panel.
// Implementations: CountRows, CountUniqueGroups, Static.
type Stat interface {
	Kind() string
	isStat()
}

type CountRows struct{}

// CountUniqueGroups counts distinct group-column values, shown with Unit.
type CountUniqueGroups struct {
	Unit string
}

// Static is shown as written.
type Static struct {
	Text string
}

func (CountRows) Kind() string         { return "count_rows" }
func (CountUniqueGroups) Kind() string { return "count_unique_groups" }
func (Static) Kind() string            { return "static" }

func (CountRows) isStat()         {}
func (CountUniqueGroups) isStat() {}
func (Static) isStat()            {}

// Insight is a computed dataset-level observation.
// Implementations: Mean, MaxGroupAverage.
type Insight interface {
	Kind() string
	Columns() []string
	isInsight()
}

type Mean struct {
	Column string
}

// MaxGroupAverage names the group with the highest mean of ValueColumn.
type MaxGroupAverage struct {
	ValueColumn string
	GroupColumn string
}

func (Mean) Kind() string            { return "mean" }
func (MaxGroupAverage) Kind() string { return "max_group_avg" }

func (m Mean) Columns() []string            { return []string{m.Column} }
func (m MaxGroupAverage) Columns() []string { return []string{m.ValueColumn, m.GroupColumn} }

func (Mean) isInsight()            {}
func (MaxGroupAverage) isInsight() {}

type PanelStat struct {
	Label string
	Stat  Stat
}

type PanelInsight struct {
	Label   string
	Insight Insight
}

type Descriptor struct {
	Slug  string
	Title string
	Table string

	XColumn     string
	YColumn     string
	GroupColumn string
	XLabel      string
	YLabel      string

	AnalysisHeading string
	GroupHeading    string
	PanelHeading    string
	InsightsHeading string

	Panel    []PanelStat
	Insights []PanelInsight

	EmptyMessage string
	EmptyHint    string
}

// RequiredColumns lists every dataset column the descriptor reads, without duplicates.
func (d Descriptor) RequiredColumns() []string {
	seen := map[string]bool{}
	var out []string
	add := func(columns ...string) {
		for _, column := range columns {
			if column != "" && !seen[column] {
				seen[column] = true
				out = append(out, column)
			}
		}
	}
	add(d.XColumn, d.YColumn, d.GroupColumn)
	for _, insight := range d.Insights {
		if insight.Insight != nil {
			add(insight.Insight.Columns()...)
		}
	}
	return out
}

// Set is the full navigation: dashboard chrome plus pages in menu order.
type Set struct {
	Title    string
	Subtitle string
	Footer   string
	Pages    []Descriptor
}

func (s Set) Lookup(slug string) (Descriptor, bool) {
	for _, page := range s.Pages {
		if page.Slug == slug {
			return page, true
		}
	}
	return Descriptor{}, false
}

// Tables returns the distinct tables in page order.
func (s Set) Tables() []string {
	seen := map[string]bool{}
	tables := make([]string, 0, len(s.Pages))
	for _, page := range s.Pages {
		if seen[page.Table] {
			continue
		}
		seen[page.Table] = true
		tables = append(tables, page.Table)
	}
	return tables
}

func (s Set) Validate() error {
	if len(s.Pages) == 0 {
		return fmt.Errorf("page set has no pages")
	}
	var errs []error
	slugs := map[string]bool{}
	for i, page := range s.Pages {
		if err := page.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("page %d: %w", i, err))
			continue
		}
		if slugs[page.Slug] {
			errs = append(errs, fmt.Errorf("page %d: duplicate slug %q", i, page.Slug))
		}
		slugs[page.Slug] = true
	}
	return errors.Join(errs...)
}

func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Slug) == "" {
		return fmt.Errorf("slug is required")
	}
	if strings.ContainsAny(d.Slug, "/ ") {
		return fmt.Errorf("slug %q must not contain slashes or spaces", d.Slug)
	}
	if !query.ValidTableName(d.Table) {
		return fmt.Errorf("page %q: invalid table name %q", d.Slug, d.Table)
	}
	if d.XColumn == "" || d.YColumn == "" || d.GroupColumn == "" {
		return fmt.Errorf("page %q: x, y and group columns are required", d.Slug)
	}
	for _, entry := range d.Panel {
		if entry.Label == "" {
			return fmt.Errorf("page %q: panel stat label is required", d.Slug)
		}
		if entry.Stat == nil {
			return fmt.Errorf("page %q: panel stat %q has no kind", d.Slug, entry.Label)
		}
	}
	for _, entry := range d.Insights {
		if entry.Label == "" {
			return fmt.Errorf("page %q: insight label is required", d.Slug)
		}
		if entry.Insight == nil {
			return fmt.Errorf("page %q: insight %q has no kind", d.Slug, entry.Label)
		}
		for _, column := range entry.Insight.Columns() {
			if column == "" {
				return fmt.Errorf("page %q: insight %q is missing a column", d.Slug, entry.Label)
			}
		}
	}
	return nil
}

// Default is the built-in MTG price dashboard.
func Default() Set {
	return Set{
		Title:    "MTG Price Analysis",
		Subtitle: "Average price trends of cards over the first 300 days after set release",
		Footer:   "Data updates once daily and is cached for 24 hours to optimize performance.",
		Pages: []Descriptor{
			{
				Slug:            "regular",
				Title:           "Regular Card Prices",
				Table:           "price_after_launch",
				XColumn:         "DATE_DIFF",
				YColumn:         "AVG_USD",
				GroupColumn:     "SET_NAME",
				XLabel:          "Days After Launch",
				YLabel:          "Average USD Price",
				AnalysisHeading: "Regular Card Analysis",
				GroupHeading:    "Sets Tracked",
				PanelHeading:    "Dataset Overview",
				InsightsHeading: "Key Insights",
				Panel: []PanelStat{
					{Label: "Total data points", Stat: CountRows{}},
					{Label: "Tracking period", Stat: Static{Text: "1-300 days after release"}},
					{Label: "Card rarities", Stat: Static{Text: "Mythic & Rare only"}},
					{Label: "Sets analyzed", Stat: CountUniqueGroups{Unit: "expansion sets"}},
				},
				Insights: []PanelInsight{
					{Label: "Overall average price", Insight: Mean{Column: "AVG_USD"}},
					{Label: "Highest average set", Insight: MaxGroupAverage{ValueColumn: "AVG_USD", GroupColumn: "SET_NAME"}},
				},
				EmptyMessage: "Unable to load regular price analysis data.",
				EmptyHint:    "Please try refreshing the page.",
			},
			{
				Slug:            "foil",
				Title:           "Foil Card Prices",
				Table:           "price_after_launch_foil",
				XColumn:         "DATE_DIFF",
				YColumn:         "AVG_USD_FOIL",
				GroupColumn:     "SET_NAME",
				XLabel:          "Days After Launch",
				YLabel:          "Average USD Foil Price",
				AnalysisHeading: "Foil Card Analysis",
				GroupHeading:    "Sets Tracked",
				PanelHeading:    "Dataset Overview",
				InsightsHeading: "Key Insights",
				Panel: []PanelStat{
					{Label: "Total data points", Stat: CountRows{}},
					{Label: "Tracking period", Stat: Static{Text: "1-300 days after release"}},
					{Label: "Card type", Stat: Static{Text: "All expansion cards"}},
					{Label: "Sets analyzed", Stat: CountUniqueGroups{Unit: "expansion sets"}},
				},
				Insights: []PanelInsight{
					{Label: "Overall average foil price", Insight: Mean{Column: "AVG_USD_FOIL"}},
					{Label: "Highest average set", Insight: MaxGroupAverage{ValueColumn: "AVG_USD_FOIL", GroupColumn: "SET_NAME"}},
				},
				EmptyMessage: "Unable to load foil price analysis data.",
				EmptyHint:    "Please try refreshing the page. If the problem persists, there may be an issue with the data source.",
			},
		},
	}
}
