package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ZhipuProvider implements the Provider interface for Zhipu GLM
type ZhipuProvider struct {
	config Config
	models []string
	client *http.Client
}

type zhipuRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type zhipuResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewZhipuProvider creates a new Zhipu provider
func NewZhipuProvider(config Config, models []string) *ZhipuProvider {
	if config.ProviderName == "" {
		config.ProviderName = string(KindZhipu)
	}
	client := config.HTTPClient
	if client == nil {
		client = newHTTPClient()
	}
	return &ZhipuProvider{config: config, models: models, client: client}
}

// endpoint accepts either the API root or the full completions URL
func (p *ZhipuProvider) endpoint() string {
	base := strings.TrimRight(p.config.BaseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

// Chat implements non-streaming chat
func (p *ZhipuProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	req := zhipuRequest{
		Model:       p.config.Model,
		Messages:    messages,
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + p.config.APIKey}

	var resp zhipuResponse
	if err := postJSON(ctx, p.client, p.endpoint(), headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Name returns the provider name
func (p *ZhipuProvider) Name() string {
	return p.config.ProviderName
}

// Models returns supported models
func (p *ZhipuProvider) Models() []string {
	return p.models
}
