package nl2sql

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"

type AnthropicConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type AnthropicModel struct {
	client *anthropic.Client
	model  string
}

func NewAnthropicModel(cfg AnthropicConfig) (*AnthropicModel, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultAnthropicModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &AnthropicModel{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}, nil
}

func (m *AnthropicModel) Provider() string { return "anthropic" }

func (m *AnthropicModel) Name() string { return m.model }

func (m *AnthropicModel) Complete(ctx context.Context, req ChatRequest) (string, error) {
	prompt := req.Prompt
	temperature := float32(req.Temperature)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	resp, err := m.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(m.model),
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return strings.TrimSpace(*block.Text), nil
		}
	}
	return "", fmt.Errorf("message response has no text content")
}
