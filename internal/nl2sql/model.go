package nl2sql

import "context"

type ChatRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// ChatModel is a single blocking chat completion: one prompt in, one text out.
type ChatModel interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
	Provider() string
	Name() string
}
