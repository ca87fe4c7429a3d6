package nl2sql

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 1000
	DefaultTimeout     = 30 * time.Second
)

type GeneratorConfig struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type Generator struct {
	model ChatModel
	cfg   GeneratorConfig

	mu            sync.RWMutex
	schemaContext string
}

func NewGenerator(model ChatModel, schemaContext string, cfg GeneratorConfig) (*Generator, error) {
	if model == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Generator{model: model, cfg: cfg, schemaContext: schemaContext}, nil
}

func (g *Generator) UpdateSchemaContext(schemaContext string) {
	g.mu.Lock()
	g.schemaContext = schemaContext
	g.mu.Unlock()
}

func (g *Generator) SchemaContext() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.schemaContext
}

// Generate converts question using the held schema context. Every failure is
// returned as *Error.
func (g *Generator) Generate(ctx context.Context, question string) (Result, error) {
	return g.generate(ctx, question, g.SchemaContext())
}

// Translate is Generate with a per-call schema override. An empty
// SchemaContext falls back to the held one.
func (g *Generator) Translate(ctx context.Context, req Request) (Result, error) {
	schemaContext := req.SchemaContext
	if strings.TrimSpace(schemaContext) == "" {
		schemaContext = g.SchemaContext()
	}
	return g.generate(ctx, req.Question, schemaContext)
}

func (g *Generator) generate(ctx context.Context, question, schemaContext string) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, &Error{Kind: KindValidation, Message: "question is required"}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	raw, err := g.model.Complete(callCtx, ChatRequest{
		System:      systemInstruction,
		Prompt:      buildPrompt(question, schemaContext),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return Result{}, &Error{
			Kind:    KindModelInvocation,
			Message: fmt.Sprintf("%s model call failed", g.model.Provider()),
			Err:     err,
		}
	}

	result, err := Parse(raw)
	if err != nil {
		return Result{}, err
	}
	result.Provider = g.model.Provider()
	result.Model = g.model.Name()
	return result, nil
}
