package bridge

import "context"

type LaunchSpec struct {
	Command string
	Args    []string
	// Env entries are KEY=VALUE and are added to the parent environment.
	Env []string
}

type ToolResult struct {
	IsError bool
	Text    string
}

// ToolSession is one running query server. Close must stop the process.
type ToolSession interface {
	Initialize(ctx context.Context) error
	CallTool(ctx context.Context, name string, args map[string]any) (ToolResult, error)
	Close() error
}

// Launcher starts a query server. Cancelling ctx must kill the process.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (ToolSession, error)
}
