package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/querybridge/querybridge/internal/query"
)

const (
	DefaultImage = "ghcr.io/firebolt-db/mcp-server:0.4.0"

	EnvClientID     = "FIREBOLT_MCP_CLIENT_ID"
	EnvClientSecret = "FIREBOLT_MCP_CLIENT_SECRET"
	EnvAccount      = "FIREBOLT_MCP_ACCOUNT"
	EnvDatabase     = "FIREBOLT_MCP_DATABASE"
	EnvEngine       = "FIREBOLT_MCP_ENGINE"

	toolDocs    = "firebolt_docs"
	toolConnect = "firebolt_connect"
	toolQuery   = "firebolt_query"
)

type Config struct {
	ClientID     string
	ClientSecret string
	Account      string
	Database     string
	Engine       string

	// Command overrides the docker launch. It receives the credentials as
	// environment variables instead of -e flags.
	Command string
	Args    []string
	Image   string
}

func (c Config) missing() []string {
	missing := make([]string, 0)
	for _, field := range []struct {
		env   string
		value string
	}{
		{EnvClientID, c.ClientID},
		{EnvClientSecret, c.ClientSecret},
		{EnvAccount, c.Account},
		{EnvDatabase, c.Database},
		{EnvEngine, c.Engine},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.env)
		}
	}
	return missing
}

func (c Config) launchSpec() LaunchSpec {
	credentials := []string{
		EnvClientID + "=" + c.ClientID,
		EnvClientSecret + "=" + c.ClientSecret,
	}
	if strings.TrimSpace(c.Command) != "" {
		return LaunchSpec{Command: c.Command, Args: append([]string(nil), c.Args...), Env: credentials}
	}
	image := c.Image
	if strings.TrimSpace(image) == "" {
		image = DefaultImage
	}
	return LaunchSpec{
		Command: "docker",
		Args: []string{
			"run", "-i", "--rm",
			"-e", credentials[0],
			"-e", credentials[1],
			image,
		},
	}
}

func (c Config) target() map[string]any {
	return map[string]any{
		"account":  c.Account,
		"database": c.Database,
		"engine":   c.Engine,
	}
}

// Bridge executes one statement per call against Firebolt through a freshly
// launched MCP query server. Nothing is shared between calls.
type Bridge struct {
	cfg      Config
	launcher Launcher
	logger   *slog.Logger
}

func New(cfg Config, launcher Launcher, logger *slog.Logger) *Bridge {
	if launcher == nil {
		launcher = MCPLauncher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{cfg: cfg, launcher: launcher, logger: logger}
}

func (b *Bridge) Run(ctx context.Context, sql string) ([]query.Record, error) {
	_, rows, err := b.run(ctx, sql)
	return rows, err
}

func (b *Bridge) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	start := time.Now()
	columns, rows, err := b.run(ctx, request.SQL)
	if err != nil {
		return query.Result{}, err
	}
	rows, truncated := query.Limit(rows, request.RowLimit)
	return query.Result{
		Backend:   query.BackendFirebolt,
		Columns:   columns,
		Rows:      rows,
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}

func (b *Bridge) run(ctx context.Context, sql string) (columns []string, rows []query.Record, err error) {
	if missing := b.cfg.missing(); len(missing) > 0 {
		return nil, nil, &Error{
			Kind:    KindMissingConfiguration,
			Message: "missing " + strings.Join(missing, ", "),
		}
	}
	if strings.TrimSpace(sql) == "" {
		return nil, nil, &Error{Kind: KindQueryFailed, Message: "sql is required"}
	}
	defer func() {
		if err != nil {
			err = classify(err)
		}
	}()

	spec := b.cfg.launchSpec()
	session, err := b.launcher.Launch(ctx, spec)
	if err != nil {
		return nil, nil, &Error{Kind: KindBridgeUnavailable, Message: "could not start query server " + spec.Command, Err: err}
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			b.logger.Warn("query server shutdown failed", slog.String("error", closeErr.Error()))
		}
	}()

	if err := session.Initialize(ctx); err != nil {
		return nil, nil, &Error{Kind: KindSessionInitFailed, Message: "initialize failed", Err: err}
	}

	docs, err := session.CallTool(ctx, toolDocs, map[string]any{})
	if err != nil {
		return nil, nil, &Error{Kind: KindProofNotFound, Message: "docs tool call failed", Err: err}
	}
	if docs.IsError {
		return nil, nil, &Error{Kind: KindProofNotFound, Message: docs.Text}
	}
	proof, ok := extractProof(docs.Text)
	if !ok {
		return nil, nil, &Error{Kind: KindProofNotFound, Message: "no docs proof token in docs response"}
	}

	connectArgs := b.cfg.target()
	connectArgs["docs_proof"] = proof
	connected, err := session.CallTool(ctx, toolConnect, connectArgs)
	if err != nil {
		return nil, nil, &Error{Kind: KindConnectFailed, Message: "connect tool call failed", Err: err}
	}
	if connected.IsError {
		return nil, nil, &Error{Kind: KindConnectFailed, Message: connected.Text}
	}

	queryArgs := b.cfg.target()
	queryArgs["query"] = sql
	result, err := session.CallTool(ctx, toolQuery, queryArgs)
	if err != nil {
		return nil, nil, &Error{Kind: KindQueryFailed, Message: "query tool call failed", Err: err}
	}
	if result.IsError {
		return nil, nil, &Error{Kind: KindQueryFailed, Message: result.Text}
	}

	columns, rows = decodeRows(result.Text)
	b.logger.Debug("firebolt query complete", slog.Int("rows", len(rows)))
	return columns, rows, nil
}

func classify(err error) error {
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return err
	}
	return &Error{Kind: KindUnknown, Message: fmt.Sprint(err), Err: err}
}
