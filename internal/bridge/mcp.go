package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const defaultCloseGrace = 5 * time.Second

// MCPLauncher speaks MCP over the stdio of a child process.
type MCPLauncher struct {
	ClientName    string
	ClientVersion string
	CloseGrace    time.Duration
}

func (l MCPLauncher) Launch(ctx context.Context, spec LaunchSpec) (ToolSession, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return nil, fmt.Errorf("launch command is required")
	}

	procCtx, cancel := context.WithCancel(ctx)
	tr := transport.NewStdio(spec.Command, spec.Env, spec.Args...)
	c := client.NewClient(tr)
	if err := c.Start(procCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}

	grace := l.CloseGrace
	if grace <= 0 {
		grace = defaultCloseGrace
	}
	return &mcpSession{
		client:  c,
		cancel:  cancel,
		grace:   grace,
		name:    firstNonEmpty(l.ClientName, "querybridge"),
		version: firstNonEmpty(l.ClientVersion, "dev"),
	}, nil
}

type mcpSession struct {
	client  *client.Client
	cancel  context.CancelFunc
	grace   time.Duration
	name    string
	version string
}

func (s *mcpSession) Initialize(ctx context.Context) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: s.name, Version: s.version}
	if _, err := s.client.Initialize(ctx, req); err != nil {
		return err
	}
	return nil
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args

	res, err := s.client.CallTool(ctx, req)
	if err != nil {
		return ToolResult{}, err
	}
	return ToolResult{IsError: res.IsError, Text: textOf(res.Content)}, nil
}

// Close shuts the session down and kills the child if it has not exited
// within the grace period.
func (s *mcpSession) Close() error {
	done := make(chan error, 1)
	go func() { done <- s.client.Close() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(s.grace):
		err = fmt.Errorf("query server did not exit within %s", s.grace)
	}
	s.cancel()
	return err
}

func textOf(contents []mcp.Content) string {
	parts := make([]string, 0, len(contents))
	for _, content := range contents {
		switch typed := content.(type) {
		case mcp.TextContent:
			parts = append(parts, typed.Text)
		case *mcp.TextContent:
			parts = append(parts, typed.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
