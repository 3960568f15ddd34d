package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// BaiduProvider implements the Provider interface for Baidu ERNIE
// The credential travels as an access_token query parameter.
type BaiduProvider struct {
	config Config
	models []string
	client *http.Client
}

type baiduRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TokenLimit  int       `json:"token_limit"`
}

type baiduResponse struct {
	Result    string `json:"result"`
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Baidu reports throttling in-band with these codes
var baiduRateLimitCodes = map[int]bool{4: true, 17: true, 18: true}

// NewBaiduProvider creates a new Baidu provider
func NewBaiduProvider(config Config, models []string) *BaiduProvider {
	if config.ProviderName == "" {
		config.ProviderName = string(KindBaidu)
	}
	client := config.HTTPClient
	if client == nil {
		client = newHTTPClient()
	}
	return &BaiduProvider{config: config, models: models, client: client}
}

// Chat implements non-streaming chat
func (p *BaiduProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?access_token=%s",
		strings.TrimRight(p.config.BaseURL, "/"), p.config.Model, url.QueryEscape(p.config.APIKey))

	req := baiduRequest{
		Messages:    messages,
		Temperature: p.config.Temperature,
		TokenLimit:  p.config.MaxTokens,
	}

	var resp baiduResponse
	if err := postJSON(ctx, p.client, endpoint, nil, req, &resp); err != nil {
		return "", err
	}
	if resp.ErrorCode != 0 {
		if baiduRateLimitCodes[resp.ErrorCode] {
			return "", fmt.Errorf("rate limit reached (code %d): %s", resp.ErrorCode, resp.ErrorMsg)
		}
		return "", fmt.Errorf("API error (code %d): %s", resp.ErrorCode, resp.ErrorMsg)
	}
	return resp.Result, nil
}

// Name returns the provider name
func (p *BaiduProvider) Name() string {
	return p.config.ProviderName
}

// Models returns supported models
func (p *BaiduProvider) Models() []string {
	return p.models
}
