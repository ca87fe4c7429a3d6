package querybridgectl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	SessionID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type flags struct {
	sessionID     string
	rowLimit      int
	raw           bool
	account       string
	database      string
	engine        string
	skipDiscovery bool
	pause         time.Duration
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

	fs := flag.NewFlagSet("querybridgectl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "QueryBridge API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 120*time.Second), "HTTP timeout (e.g. 30s)")
	var opts flags
	fs.StringVar(&opts.sessionID, "session", defaults.SessionID, "session id returned by connect")
	fs.IntVar(&opts.rowLimit, "row-limit", 0, "maximum rows to return (0 uses the server default)")
	fs.BoolVar(&opts.raw, "json", false, "print raw JSON instead of tables")
	fs.StringVar(&opts.account, "account", "", "Firebolt account for connect")
	fs.StringVar(&opts.database, "database", "", "database for connect")
	fs.StringVar(&opts.engine, "engine", "", "Firebolt engine for connect")
	fs.BoolVar(&opts.skipDiscovery, "skip-discovery", false, "connect without schema discovery")
	fs.DurationVar(&opts.pause, "pause", time.Second, "pause between stress prompts")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}
	api := &apiClient{http: client, baseURL: strings.TrimRight(*baseURL, "/"), apiKey: strings.TrimSpace(*apiKey)}

	command := strings.TrimSpace(fs.Arg(0))
	text := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))

	var (
		method, path string
		body         any
		render       func(io.Writer, []byte) error
	)
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "connect":
		method, path = http.MethodPost, "/v1/sessions"
		body = map[string]any{
			"account":        opts.account,
			"database":       opts.database,
			"engine":         opts.engine,
			"skip_discovery": opts.skipDiscovery,
		}
	case "validate":
		if text == "" {
			return usageError(stderr, "validate requires a SQL statement")
		}
		method, path = http.MethodPost, "/v1/sql/validate"
		body = map[string]any{"sql": text}
	case "disconnect", "schema", "translate", "query", "ask", "engine-time", "stress":
		if strings.TrimSpace(opts.sessionID) == "" {
			return usageError(stderr, command+" requires -session")
		}
		sessionPath := "/v1/sessions/" + url.PathEscape(strings.TrimSpace(opts.sessionID))
		switch command {
		case "disconnect":
			method, path = http.MethodDelete, sessionPath
		case "schema":
			method, path = http.MethodGet, sessionPath+"/schema"
			if !opts.raw {
				render = renderSchema
			}
		case "translate":
			if text == "" {
				return usageError(stderr, "translate requires a question")
			}
			method, path = http.MethodPost, sessionPath+"/translate"
			body = map[string]any{"question": text}
		case "query":
			if text == "" {
				return usageError(stderr, "query requires a SQL statement")
			}
			method, path = http.MethodPost, sessionPath+"/query"
			body = map[string]any{"sql": text, "row_limit": opts.rowLimit}
			if !opts.raw {
				render = renderQuery
			}
		case "ask":
			if text == "" {
				return usageError(stderr, "ask requires a question")
			}
			method, path = http.MethodPost, sessionPath+"/ask"
			body = map[string]any{"question": text, "row_limit": opts.rowLimit}
			if !opts.raw {
				render = renderAsk
			}
		case "engine-time":
			method, path = http.MethodPost, sessionPath+"/engine-time"
		case "stress":
			return runStress(ctx, api, sessionPath, opts, stdout, stderr)
		}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	code, responseBody, err := api.do(ctx, method, path, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if render != nil {
		if err := render(stdout, responseBody); err != nil {
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

type apiClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func (c *apiClient) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
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

// postJSON decodes a successful response into dst. Error responses surface
// the server message so callers can classify them.
func (c *apiClient) postJSON(ctx context.Context, path string, payload, dst any) error {
	code, body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if code >= 400 {
		var apiErr struct {
			Code    string `json:"error_code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("http %d %s: %s", code, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, dst)
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

func usageError(w io.Writer, message string) int {
	_, _ = fmt.Fprintf(w, "%s\n\n", message)
	writeUsage(w)
	return 2
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: querybridgectl [flags] <command> [text]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health               GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  connect              POST /v1/sessions")
	_, _ = fmt.Fprintln(w, "  disconnect           DELETE /v1/sessions/{id}")
	_, _ = fmt.Fprintln(w, "  schema               GET /v1/sessions/{id}/schema")
	_, _ = fmt.Fprintln(w, "  translate <question> POST /v1/sessions/{id}/translate")
	_, _ = fmt.Fprintln(w, "  query <sql>          POST /v1/sessions/{id}/query")
	_, _ = fmt.Fprintln(w, "  ask <question>       POST /v1/sessions/{id}/ask")
	_, _ = fmt.Fprintln(w, "  engine-time          POST /v1/sessions/{id}/engine-time")
	_, _ = fmt.Fprintln(w, "  validate <sql>       POST /v1/sql/validate")
	_, _ = fmt.Fprintln(w, "  stress               run the curated prompt set against a session")
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
