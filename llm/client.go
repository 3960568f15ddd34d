package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"daily-report-assistant/utils"
)

var (
	// ErrNoCompletion is returned once every attempt has failed
	ErrNoCompletion = errors.New("no completion after retries")
	// ErrNoAPIKey is returned when a client is built without a credential
	ErrNoAPIKey = errors.New("API key is required")
)

// ClientConfig describes how to build a Client
type ClientConfig struct {
	Provider     string // optional, detected from APIBase when empty
	APIKey       string
	APIBase      string
	Model        string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
	RetryCount   int
	SystemPrompt string

	HTTPClient *http.Client
	Anonymizer *utils.Anonymizer
	Logger     *utils.Logger
	// Sleep waits between attempts; tests replace it to observe backoff
	Sleep func(ctx context.Context, d time.Duration) error
}

// ConfigFromAI converts the persisted AI settings into a ClientConfig
func ConfigFromAI(cfg utils.AIConfig) ClientConfig {
	return ClientConfig{
		Provider:     cfg.Provider,
		APIKey:       cfg.APIKey,
		APIBase:      cfg.APIBaseURL,
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		Timeout:      time.Duration(cfg.Timeout) * time.Second,
		RetryCount:   cfg.RetryCount,
		SystemPrompt: cfg.SystemPrompt,
	}
}

// Client is a provider-agnostic completion client with bounded retries
type Client struct {
	kind     Kind
	provider Provider
	cfg      ClientConfig
}

// NewClient resolves the provider and model and builds the client
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}

	kind, ok := ParseKind(cfg.Provider)
	if !ok {
		kind = DetectProvider(cfg.APIBase)
	}
	info := kind.Info()

	if cfg.APIBase == "" {
		cfg.APIBase = info.APIBase
	}
	if cfg.Model == "" {
		cfg.Model = kind.DefaultModel()
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryCount < 1 {
		cfg.RetryCount = 3
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = utils.DefaultSystemPrompt
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	cfg.Provider = string(kind)

	pc := Config{
		ProviderName: info.Name,
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.APIBase,
		Model:        cfg.Model,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
		HTTPClient:   cfg.HTTPClient,
	}

	var provider Provider
	switch kind {
	case KindZhipu:
		provider = NewZhipuProvider(pc, info.Models)
	case KindBaidu:
		provider = NewBaiduProvider(pc, info.Models)
	case KindQwen:
		provider = NewQwenProvider(pc, info.Models)
	default:
		provider = NewOpenAIProvider(pc, info.Models)
	}

	return &Client{kind: kind, provider: provider, cfg: cfg}, nil
}

// DefaultTemperature is used when no configuration supplies a temperature
const DefaultTemperature = 0.7

// NewClientFromParams builds a client from discrete parameters
func NewClientFromParams(apiKey, apiBase, model string) (*Client, error) {
	return NewClient(ClientConfig{APIKey: apiKey, APIBase: apiBase, Model: model, Temperature: DefaultTemperature})
}

// Kind returns the resolved provider
func (c *Client) Kind() Kind { return c.kind }

// Model returns the resolved model name
func (c *Client) Model() string { return c.cfg.Model }

// SystemPrompt returns the configured default system prompt
func (c *Client) SystemPrompt() string { return c.cfg.SystemPrompt }

// Backoff returns the wait before the retry following a failed attempt
// attempt is zero-based.
func Backoff(attempt int, err error) time.Duration {
	if IsRateLimit(err) {
		return time.Duration(1<<uint(attempt)) * 2 * time.Second
	}
	return time.Second
}

// Complete sends messages and returns the trimmed completion text
// Every failure is retried up to RetryCount attempts in total; no wait follows the last one.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	sent := make([]Message, len(messages))
	for i, m := range messages {
		sent[i] = Message{Role: m.Role, Content: c.cfg.Anonymizer.Anonymize(m.Content)}
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.RetryCount; attempt++ {
		text, err := c.attempt(ctx, sent)
		if err == nil {
			return strings.TrimSpace(c.cfg.Anonymizer.Deanonymize(text)), nil
		}
		lastErr = err

		if attempt == c.cfg.RetryCount-1 {
			break
		}
		wait := Backoff(attempt, err)
		if IsRateLimit(err) {
			c.cfg.Logger.Warn("%s rate limited, retrying in %s", c.kind, wait)
		} else {
			c.cfg.Logger.Warn("%s call failed (attempt %d/%d): %v", c.kind, attempt+1, c.cfg.RetryCount, err)
		}
		if err := c.cfg.Sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	c.cfg.Logger.Error("%s call gave up: %v", c.kind, lastErr)
	return "", fmt.Errorf("%w: %w", ErrNoCompletion, lastErr)
}

func (c *Client) attempt(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	text, err := c.provider.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}

// ConnectionResult reports the outcome of TestConnection
type ConnectionResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Response string `json:"response,omitempty"`
}

// TestConnection issues one fixed round-trip prompt
func (c *Client) TestConnection(ctx context.Context) ConnectionResult {
	result := ConnectionResult{Provider: string(c.kind), Model: c.cfg.Model}

	text, err := c.Complete(ctx, []Message{
		SystemMessage("你是一个助手。"),
		UserMessage("请回复'连接测试成功'"),
	})
	if err != nil {
		result.Message = fmt.Sprintf("%s API连接失败，请检查API密钥和网络连接。", c.kind)
		return result
	}

	result.Success = true
	result.Message = fmt.Sprintf("%s API连接成功！模型: %s", c.kind, c.cfg.Model)
	result.Response = truncateRunes(text, 50)
	return result
}

// TestConnection builds a throwaway client and tests it
func TestConnection(ctx context.Context, apiKey, apiBase, model string) ConnectionResult {
	client, err := NewClientFromParams(apiKey, apiBase, model)
	if err != nil {
		kind := DetectProvider(apiBase)
		return ConnectionResult{
			Message:  fmt.Sprintf("%s API连接测试异常: %v", kind, err),
			Provider: string(kind),
			Model:    model,
		}
	}
	return client.TestConnection(ctx)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
