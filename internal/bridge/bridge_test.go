package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/querybridge/querybridge/internal/query"
)

func validConfig() Config {
	return Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Account:      "acme",
		Database:     "adtech",
		Engine:       "analytics",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunMissingConfigurationNeverLaunches(t *testing.T) {
	fields := []func(*Config){
		func(c *Config) { c.ClientID = "" },
		func(c *Config) { c.ClientSecret = "" },
		func(c *Config) { c.Account = " " },
		func(c *Config) { c.Database = "" },
		func(c *Config) { c.Engine = "" },
	}
	for i, clear := range fields {
		cfg := validConfig()
		clear(&cfg)
		launcher := &fakeLauncher{}
		_, err := New(cfg, launcher, quietLogger()).Run(context.Background(), "SELECT 1")
		if KindOf(err) != KindMissingConfiguration {
			t.Fatalf("case %d: Run() error = %v", i, err)
		}
		if launcher.launches != 0 {
			t.Fatalf("case %d: launcher invoked %d times", i, launcher.launches)
		}
	}
}

func TestRunHappyPathSequence(t *testing.T) {
	session := &fakeSession{responses: map[string]ToolResult{
		toolDocs:    {Text: "Firebolt docs ... proof: " + knownProofToken + " ..."},
		toolConnect: {Text: "connected"},
		toolQuery:   {Text: `[{"campaign_type":"search","total":12},{"campaign_type":"video","total":3.5}]`},
	}}
	launcher := &fakeLauncher{session: session}

	rows, err := New(validConfig(), launcher, quietLogger()).Run(context.Background(), "SELECT campaign_type, COUNT(*) AS total FROM ad_events GROUP BY 1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rows) != 2 || rows[0]["campaign_type"] != "search" || rows[0]["total"] != int64(12) || rows[1]["total"] != 3.5 {
		t.Fatalf("rows = %#v", rows)
	}

	wantCalls := []string{"initialize", toolDocs, toolConnect, toolQuery, "close"}
	if !reflect.DeepEqual(session.calls, wantCalls) {
		t.Fatalf("calls = %v, want %v", session.calls, wantCalls)
	}
	connectArgs := session.args[toolConnect]
	if connectArgs["docs_proof"] != knownProofToken || connectArgs["account"] != "acme" || connectArgs["engine"] != "analytics" {
		t.Fatalf("connect args = %v", connectArgs)
	}
	queryArgs := session.args[toolQuery]
	if queryArgs["database"] != "adtech" || !strings.HasPrefix(queryArgs["query"].(string), "SELECT campaign_type") {
		t.Fatalf("query args = %v", queryArgs)
	}
}

func TestRunDefaultLaunchSpecUsesDocker(t *testing.T) {
	launcher := &fakeLauncher{session: happySession(`[]`)}
	if _, err := New(validConfig(), launcher, quietLogger()).Run(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{"run", "-i", "--rm", "-e", "FIREBOLT_MCP_CLIENT_ID=client-id", "-e", "FIREBOLT_MCP_CLIENT_SECRET=client-secret", DefaultImage}
	if launcher.spec.Command != "docker" || !reflect.DeepEqual(launcher.spec.Args, want) {
		t.Fatalf("spec = %+v", launcher.spec)
	}
}

func TestRunCustomCommandReceivesCredentialsInEnv(t *testing.T) {
	cfg := validConfig()
	cfg.Command = "/usr/local/bin/firebolt-mcp"
	cfg.Args = []string{"--stdio"}
	launcher := &fakeLauncher{session: happySession(`[]`)}
	if _, err := New(cfg, launcher, quietLogger()).Run(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if launcher.spec.Command != cfg.Command || !reflect.DeepEqual(launcher.spec.Args, []string{"--stdio"}) {
		t.Fatalf("spec = %+v", launcher.spec)
	}
	if !reflect.DeepEqual(launcher.spec.Env, []string{"FIREBOLT_MCP_CLIENT_ID=client-id", "FIREBOLT_MCP_CLIENT_SECRET=client-secret"}) {
		t.Fatalf("env = %v", launcher.spec.Env)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("exec: \"docker\": executable file not found in $PATH")}
	_, err := New(validConfig(), launcher, quietLogger()).Run(context.Background(), "SELECT 1")
	if KindOf(err) != KindBridgeUnavailable {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunInitializeFailureCloses(t *testing.T) {
	session := &fakeSession{initErr: errors.New("EOF")}
	_, err := New(validConfig(), &fakeLauncher{session: session}, quietLogger()).Run(context.Background(), "SELECT 1")
	if KindOf(err) != KindSessionInitFailed {
		t.Fatalf("Run() error = %v", err)
	}
	if !reflect.DeepEqual(session.calls, []string{"initialize", "close"}) {
		t.Fatalf("calls = %v", session.calls)
	}
}

func TestRunProofNotFound(t *testing.T) {
	session := &fakeSession{responses: map[string]ToolResult{toolDocs: {Text: "docs without any token"}}}
	_, err := New(validConfig(), &fakeLauncher{session: session}, quietLogger()).Run(context.Background(), "SELECT 1")
	if KindOf(err) != KindProofNotFound {
		t.Fatalf("Run() error = %v", err)
	}
	if session.called(toolConnect) {
		t.Fatalf("connect attempted without proof")
	}
}

func TestRunConnectErrorSkipsQuery(t *testing.T) {
	session := &fakeSession{responses: map[string]ToolResult{
		toolDocs:    {Text: knownProofToken},
		toolConnect: {IsError: true, Text: "engine analytics is stopped"},
	}}
	_, err := New(validConfig(), &fakeLauncher{session: session}, quietLogger()).Run(context.Background(), "SELECT 1")
	if KindOf(err) != KindConnectFailed {
		t.Fatalf("Run() error = %v", err)
	}
	var bridgeErr *Error
	if !errors.As(err, &bridgeErr) || bridgeErr.Message != "engine analytics is stopped" {
		t.Fatalf("Run() error = %v", err)
	}
	if session.called(toolQuery) {
		t.Fatalf("query tool called after connect failure")
	}
	if !session.closed {
		t.Fatalf("session not closed")
	}
}

func TestRunQueryErrorRelaysMessage(t *testing.T) {
	session := happySession("")
	session.responses[toolQuery] = ToolResult{IsError: true, Text: "Column 'foo' does not exist"}
	_, err := New(validConfig(), &fakeLauncher{session: session}, quietLogger()).Run(context.Background(), "SELECT foo FROM t")
	if KindOf(err) != KindQueryFailed || !strings.Contains(err.Error(), "Column 'foo' does not exist") {
		t.Fatalf("Run() error = %v", err)
	}
	if !session.closed {
		t.Fatalf("session not closed")
	}
}

func TestRunSingleObjectBecomesOneRow(t *testing.T) {
	rows, err := New(validConfig(), &fakeLauncher{session: happySession(`{"count": 42}`)}, quietLogger()).Run(context.Background(), "SELECT COUNT(*) AS count FROM t")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rows) != 1 || rows[0]["count"] != int64(42) {
		t.Fatalf("rows = %#v", rows)
	}
}

func TestRunNonJSONBecomesResultRow(t *testing.T) {
	rows, err := New(validConfig(), &fakeLauncher{session: happySession("Query executed. 0 rows affected")}, quietLogger()).Run(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rows) != 1 || rows[0]["result"] != "Query executed. 0 rows affected" {
		t.Fatalf("rows = %#v", rows)
	}
}

func TestExecuteKeepsColumnOrderAndLimit(t *testing.T) {
	b := New(validConfig(), &fakeLauncher{session: happySession(`[{"z":1,"a":2},{"a":3,"m":4},{"z":5}]`)}, quietLogger())
	res, err := b.Execute(context.Background(), queryRequest("SELECT z, a, m FROM t", 2))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !reflect.DeepEqual(res.Columns, []string{"z", "a", "m"}) {
		t.Fatalf("Columns = %v", res.Columns)
	}
	if len(res.Rows) != 2 || !res.Truncated || res.Backend != "firebolt" {
		t.Fatalf("Execute() = %+v", res)
	}
}

func TestExtractProofFallback(t *testing.T) {
	token := "abcdefghijklmnopqrstuvwxyz012345"
	got, ok := extractProof("the proof is " + token + ".")
	if !ok || got != token {
		t.Fatalf("extractProof() = %q, %v", got, ok)
	}
	if _, ok := extractProof("short abc123"); ok {
		t.Fatalf("extractProof() matched short token")
	}
}

func TestKindOfForeignError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindUnknown {
		t.Fatalf("KindOf() did not report Unknown")
	}
	if KindOf(nil) != "" {
		t.Fatalf("KindOf(nil) not empty")
	}
}

func queryRequest(sql string, limit int) query.Request {
	return query.Request{SQL: sql, RowLimit: limit}
}

func happySession(queryText string) *fakeSession {
	return &fakeSession{responses: map[string]ToolResult{
		toolDocs:    {Text: knownProofToken},
		toolConnect: {Text: "ok"},
		toolQuery:   {Text: queryText},
	}}
}

type fakeLauncher struct {
	session  *fakeSession
	err      error
	launches int
	spec     LaunchSpec
}

func (f *fakeLauncher) Launch(_ context.Context, spec LaunchSpec) (ToolSession, error) {
	f.launches++
	f.spec = spec
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type fakeSession struct {
	initErr   error
	responses map[string]ToolResult
	calls     []string
	args      map[string]map[string]any
	closed    bool
}

func (f *fakeSession) Initialize(context.Context) error {
	f.calls = append(f.calls, "initialize")
	return f.initErr
}

func (f *fakeSession) CallTool(_ context.Context, name string, args map[string]any) (ToolResult, error) {
	f.calls = append(f.calls, name)
	if f.args == nil {
		f.args = map[string]map[string]any{}
	}
	f.args[name] = args
	res, ok := f.responses[name]
	if !ok {
		return ToolResult{}, errors.New("unexpected tool " + name)
	}
	return res, nil
}

func (f *fakeSession) Close() error {
	f.calls = append(f.calls, "close")
	f.closed = true
	return nil
}

func (f *fakeSession) called(name string) bool {
	for _, call := range f.calls {
		if call == name {
			return true
		}
	}
	return false
}
