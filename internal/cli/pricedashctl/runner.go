// Package pricedashctl implements the pricedashctl command line client.
package pricedashctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type command struct {
	method string
	path   string
	// render prints a successful response body; nil means pretty JSON.
	render func(w io.Writer, body []byte) error
	raw    bool
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("pricedashctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "pricedash API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 10s)")
	format := fs.String("format", "table", "output format for page, dashboard and cache: table or json")
	output := fs.String("o", "", "file to write export/snapshot downloads to (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}
	if *format != "table" && *format != "json" {
		_, _ = fmt.Fprintf(stderr, "invalid -format %q\n", *format)
		return 2
	}

	cmd, err := resolveCommand(fs.Args(), *format == "table")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	endpoint := strings.TrimRight(*baseURL, "/") + cmd.path
	code, responseBody, err := doRequest(ctx, client, cmd.method, endpoint, *apiKey)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if cmd.raw {
		if err := writeDownload(stdout, *output, responseBody); err != nil {
			_, _ = fmt.Fprintf(stderr, "write output: %v\n", err)
			return 1
		}
		return 0
	}
	if cmd.render != nil {
		if err := cmd.render(stdout, responseBody); err != nil {
			_, _ = fmt.Fprintf(stderr, "render response: %v\n", err)
			return 1
		}
		return 0
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func resolveCommand(args []string, tabular bool) (command, error) {
	name := strings.TrimSpace(args[0])
	operand := func() (string, error) {
		if len(args) < 2 || strings.TrimSpace(args[1]) == "" {
			return "", fmt.Errorf("%s requires an argument", name)
		}
		return url.PathEscape(strings.TrimSpace(args[1])), nil
	}
	pick := func(renderer func(io.Writer, []byte) error) func(io.Writer, []byte) error {
		if tabular {
			return renderer
		}
		return nil
	}

	switch name {
	case "health":
		return command{method: http.MethodGet, path: "/v1/health"}, nil
	case "ready":
		return command{method: http.MethodGet, path: "/v1/ready"}, nil
	case "pages":
		return command{method: http.MethodGet, path: "/v1/pages", render: pick(renderPageList)}, nil
	case "page":
		slug, err := operand()
		if err != nil {
			return command{}, err
		}
		return command{method: http.MethodGet, path: "/v1/pages/" + slug, render: pick(renderPage)}, nil
	case "dashboard":
		return command{method: http.MethodGet, path: "/v1/dashboard", render: pick(renderDashboard)}, nil
	case "export":
		slug, err := operand()
		if err != nil {
			return command{}, err
		}
		return command{method: http.MethodGet, path: "/v1/pages/" + slug + "/export", raw: true}, nil
	case "cache":
		return command{method: http.MethodGet, path: "/v1/cache", render: pick(renderCache)}, nil
	case "refresh":
		path := "/v1/cache/refresh"
		if len(args) > 1 && strings.TrimSpace(args[1]) != "" {
			path += "?table=" + url.QueryEscape(strings.TrimSpace(args[1]))
		}
		return command{method: http.MethodPost, path: path, render: pick(renderCache)}, nil
	case "snapshots":
		table, err := operand()
		if err != nil {
			return command{}, err
		}
		return command{method: http.MethodGet, path: "/v1/archive/" + table}, nil
	case "snapshot":
		table, err := operand()
		if err != nil {
			return command{}, err
		}
		if len(args) < 3 || strings.TrimSpace(args[2]) == "" {
			return command{}, fmt.Errorf("snapshot requires a table and a snapshot name")
		}
		return command{method: http.MethodGet, path: "/v1/archive/" + table + "/" + url.PathEscape(strings.TrimSpace(args[2])), raw: true}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q", name)
	}
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func writeDownload(stdout io.Writer, path string, body []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(body)
		return err
	}
	return os.WriteFile(path, body, 0o644)
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: pricedashctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                    GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                     GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  pages                     GET /v1/pages")
	_, _ = fmt.Fprintln(w, "  page <slug>               GET /v1/pages/{page}")
	_, _ = fmt.Fprintln(w, "  dashboard                 GET /v1/dashboard")
	_, _ = fmt.Fprintln(w, "  export <slug>             GET /v1/pages/{page}/export")
	_, _ = fmt.Fprintln(w, "  cache                     GET /v1/cache")
	_, _ = fmt.Fprintln(w, "  refresh [table]           POST /v1/cache/refresh")
	_, _ = fmt.Fprintln(w, "  snapshots <table>         GET /v1/archive/{table}")
	_, _ = fmt.Fprintln(w, "  snapshot <table> <name>   GET /v1/archive/{table}/{snapshot}")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
