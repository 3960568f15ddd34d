package llm

import (
	"context"
	"net/http"
	"strings"
)

// QwenProvider implements the Provider interface for Alibaba Tongyi Qwen
type QwenProvider struct {
	config Config
	models []string
	client *http.Client
}

type qwenRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []Message `json:"messages"`
	} `json:"input"`
	Parameters qwenParameters `json:"parameters"`
}

type qwenParameters struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type qwenResponse struct {
	Output struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"output"`
	RequestID string `json:"request_id"`
}

// NewQwenProvider creates a new Qwen provider
func NewQwenProvider(config Config, models []string) *QwenProvider {
	if config.ProviderName == "" {
		config.ProviderName = string(KindQwen)
	}
	client := config.HTTPClient
	if client == nil {
		client = newHTTPClient()
	}
	return &QwenProvider{config: config, models: models, client: client}
}

// Chat implements non-streaming chat
func (p *QwenProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	var req qwenRequest
	req.Model = p.config.Model
	req.Input.Messages = messages
	req.Parameters = qwenParameters{
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + p.config.APIKey}

	var resp qwenResponse
	endpoint := strings.TrimRight(p.config.BaseURL, "/") + "/generation"
	if err := postJSON(ctx, p.client, endpoint, headers, req, &resp); err != nil {
		return "", err
	}
	return resp.Output.Text, nil
}

// Name returns the provider name
func (p *QwenProvider) Name() string {
	return p.config.ProviderName
}

// Models returns supported models
func (p *QwenProvider) Models() []string {
	return p.models
}
