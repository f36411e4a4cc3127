// Package dashboard composes page descriptors, the table cache and the
// analysis engine into rendered pages.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/pricedash/pricedash/internal/analysis"
	"github.com/pricedash/pricedash/internal/cache"
	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/observability"
	"github.com/pricedash/pricedash/internal/pages"
)

var (
	ErrPageNotFound  = errors.New("page not found")
	ErrTableNotFound = errors.New("table not found")
)

type Headings struct {
	Analysis string `json:"analysis,omitempty"`
	Groups   string `json:"groups,omitempty"`
	Panel    string `json:"panel,omitempty"`
	Insights string `json:"insights,omitempty"`
}

// Page is a rendered page ready for a presentation surface.
type Page struct {
	Slug      string          `json:"slug"`
	Title     string          `json:"title"`
	Table     string          `json:"table"`
	XLabel    string          `json:"x_label"`
	YLabel    string          `json:"y_label"`
	Headings  Headings        `json:"headings"`
	FetchedAt time.Time       `json:"fetched_at"`
	Error     string          `json:"error,omitempty"`
	Report    analysis.Report `json:"report"`
}

type Dashboard struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Footer   string `json:"footer,omitempty"`
	Pages    []Page `json:"pages"`
}

type Service struct {
	pages  pages.Set
	tables *cache.TableCache
	policy config.LoadPolicy
	logger *slog.Logger
}

func NewService(set pages.Set, tables *cache.TableCache, policy config.LoadPolicy, logger *slog.Logger) *Service {
	if policy == "" {
		policy = config.LoadPolicyLazy
	}
	return &Service{
		pages:  set,
		tables: tables,
		policy: policy,
		logger: observability.Component(logger, "dashboard"),
	}
}

func (s *Service) Pages() pages.Set { return s.pages }

func (s *Service) Policy() config.LoadPolicy { return s.policy }

// RenderPage loads the page's table (warming every table first under the
// batch policy) and renders it. Only an unknown slug is an error; data source
// faults come back as an empty state plus Page.Error.
func (s *Service) RenderPage(ctx context.Context, slug string) (Page, error) {
	desc, ok := s.pages.Lookup(slug)
	if !ok {
		return Page{}, fmt.Errorf("%w: %q", ErrPageNotFound, slug)
	}
	s.prepare(ctx)
	return s.render(ctx, desc), nil
}

// RenderAll renders every page in menu order.
func (s *Service) RenderAll(ctx context.Context) Dashboard {
	s.prepare(ctx)
	out := Dashboard{
		Title:    s.pages.Title,
		Subtitle: s.pages.Subtitle,
		Footer:   s.pages.Footer,
		Pages:    make([]Page, 0, len(s.pages.Pages)),
	}
	for _, desc := range s.pages.Pages {
		out.Pages = append(out.Pages, s.render(ctx, desc))
	}
	return out
}

// Entry returns the cached table behind a page, fetching it if needed.
func (s *Service) Entry(ctx context.Context, slug string) (pages.Descriptor, cache.Entry, error) {
	desc, ok := s.pages.Lookup(slug)
	if !ok {
		return pages.Descriptor{}, cache.Entry{}, fmt.Errorf("%w: %q", ErrPageNotFound, slug)
	}
	return desc, s.tables.Get(ctx, desc.Table), nil
}

func (s *Service) CacheStatus() []cache.Status {
	return s.tables.Entries()
}

// Refresh refetches one table, or every page table when table is empty.
func (s *Service) Refresh(ctx context.Context, table string) ([]cache.Status, error) {
	tables := s.pages.Tables()
	if table != "" {
		if !slices.Contains(tables, table) {
			return nil, fmt.Errorf("%w: %q", ErrTableNotFound, table)
		}
		tables = []string{table}
	}
	for _, name := range tables {
		entry := s.tables.Refresh(ctx, name)
		s.logger.InfoContext(ctx, "table refreshed",
			slog.String("table", name),
			slog.Int("rows", entry.Data.Len()),
			slog.Bool("failed", entry.Failed()),
		)
	}
	return s.tables.Entries(), nil
}

func (s *Service) prepare(ctx context.Context) {
	if s.policy != config.LoadPolicyBatch {
		return
	}
	if _, err := s.tables.Warm(ctx, s.pages.Tables()); err != nil {
		s.logger.WarnContext(ctx, "batch warm interrupted", slog.Any("error", err))
	}
}

func (s *Service) render(ctx context.Context, desc pages.Descriptor) Page {
	entry := s.tables.Get(ctx, desc.Table)
	report := analysis.Render(desc, entry.Data)

	page := Page{
		Slug:   desc.Slug,
		Title:  desc.Title,
		Table:  desc.Table,
		XLabel: desc.XLabel,
		YLabel: desc.YLabel,
		Headings: Headings{
			Analysis: desc.AnalysisHeading,
			Groups:   desc.GroupHeading,
			Panel:    desc.PanelHeading,
			Insights: desc.InsightsHeading,
		},
		FetchedAt: entry.FetchedAt,
		Report:    report,
	}
	if entry.Err != nil {
		page.Error = entry.Err.Error()
	}

	outcome := "ok"
	switch {
	case entry.Failed():
		outcome = "degraded"
	case report.IsEmpty():
		outcome = string(report.Empty.Reason)
		if report.Empty.Reason == analysis.ReasonSchemaMismatch {
			s.logger.WarnContext(ctx, "page columns missing from table",
				slog.String("page", desc.Slug),
				slog.String("table", desc.Table),
				slog.Any("missing", report.Empty.MissingColumns),
			)
		}
	}
	observability.ObservePageRender(desc.Slug, outcome)
	return page
}
