package pricedashctl

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pricedash/pricedash/internal/cache"
	"github.com/pricedash/pricedash/internal/dashboard"
)

type pageList struct {
	Title string `json:"title"`
	Pages []struct {
		Slug  string `json:"slug"`
		Title string `json:"title"`
		Table string `json:"table"`
	} `json:"pages"`
}

func renderPageList(w io.Writer, body []byte) error {
	var list pageList
	if err := json.Unmarshal(body, &list); err != nil {
		return err
	}
	if list.Title != "" {
		_, _ = fmt.Fprintln(w, list.Title)
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Slug", "Title", "Table"})
	for _, page := range list.Pages {
		t.AppendRow(table.Row{page.Slug, page.Title, page.Table})
	}
	t.Render()
	return nil
}

func renderPage(w io.Writer, body []byte) error {
	var page dashboard.Page
	if err := json.Unmarshal(body, &page); err != nil {
		return err
	}
	writePage(w, page)
	return nil
}

func renderDashboard(w io.Writer, body []byte) error {
	var board dashboard.Dashboard
	if err := json.Unmarshal(body, &board); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, board.Title)
	if board.Subtitle != "" {
		_, _ = fmt.Fprintln(w, board.Subtitle)
	}
	for _, page := range board.Pages {
		_, _ = fmt.Fprintln(w)
		writePage(w, page)
	}
	if board.Footer != "" {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, board.Footer)
	}
	return nil
}

func writePage(w io.Writer, page dashboard.Page) {
	_, _ = fmt.Fprintf(w, "== %s (%s) ==\n", page.Title, page.Table)
	if page.Error != "" {
		_, _ = fmt.Fprintf(w, "warning: %s\n", page.Error)
	}
	report := page.Report
	if report.Empty != nil {
		_, _ = fmt.Fprintln(w, report.Empty.Message)
		_, _ = fmt.Fprintln(w, report.Empty.Hint)
		return
	}

	if len(report.Panel) > 0 {
		t := newTable(w)
		t.SetTitle(headingOr(page.Headings.Panel, "Overview"))
		for _, item := range report.Panel {
			t.AppendRow(table.Row{item.Label, item.Value})
		}
		t.Render()
	}

	t := newTable(w)
	t.SetTitle(headingOr(page.Headings.Groups, "Averages"))
	t.AppendHeader(table.Row{"Group", "Rows", "Average"})
	for _, stat := range report.GroupStats {
		t.AppendRow(table.Row{stat.Group, stat.Rows, stat.Formatted})
	}
	t.Render()

	if len(report.Insights) > 0 {
		t := newTable(w)
		t.SetTitle(headingOr(page.Headings.Insights, "Insights"))
		for _, item := range report.Insights {
			t.AppendRow(table.Row{item.Label, item.Value})
		}
		t.Render()
	}
}

func renderCache(w io.Writer, body []byte) error {
	var payload struct {
		Entries []cache.Status `json:"entries"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return err
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Table", "Rows", "Fetched", "Expires", "Fresh", "Error"})
	for _, entry := range payload.Entries {
		t.AppendRow(table.Row{
			entry.Table,
			entry.Rows,
			formatTime(entry.FetchedAt),
			formatTime(entry.ExpiresAt),
			strconv.FormatBool(entry.Fresh),
			entry.Error,
		})
	}
	t.Render()
	return nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func headingOr(heading, fallback string) string {
	if heading != "" {
		return heading
	}
	return fallback
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
