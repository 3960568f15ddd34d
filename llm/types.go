package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// SystemMessage builds a system role message
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage builds a user role message
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// Provider turns a message list into a single completion
// Implementations make exactly one HTTP round trip per call; retries live in Client.
type Provider interface {
	// Chat sends messages and returns the complete response
	Chat(ctx context.Context, messages []Message) (string, error)

	// Name returns the provider name
	Name() string

	// Models returns the list of supported models
	Models() []string
}

// Kind identifies one of the supported providers
type Kind string

const (
	KindDeepSeek Kind = "DeepSeek"
	KindZhipu    Kind = "智谱AI"
	KindBaidu    Kind = "百度文心"
	KindQwen     Kind = "阿里通义"
	KindDoubao   Kind = "Doubao"
)

// Kinds lists every supported provider in display order
var Kinds = []Kind{KindDeepSeek, KindZhipu, KindBaidu, KindQwen, KindDoubao}

// ProviderInfo describes a provider's defaults
type ProviderInfo struct {
	Name    string
	APIBase string
	Models  []string
}

var providerInfo = map[Kind]ProviderInfo{
	KindDeepSeek: {
		Name:    "DeepSeek",
		APIBase: "https://api.deepseek.com/v1",
		Models:  []string{"deepseek-chat", "deepseek-coder"},
	},
	KindZhipu: {
		Name:    "智谱AI",
		APIBase: "https://open.bigmodel.cn/api/paas/v4",
		Models:  []string{"glm-4", "glm-3-turbo", "cogview-3"},
	},
	KindBaidu: {
		Name:    "百度文心",
		APIBase: "https://aip.baidubce.com/rpc/2.0/ai_custom/v1/wenxinworkshop/chat",
		Models:  []string{"ERNIE-Bot-4", "ERNIE-Bot-turbo"},
	},
	KindQwen: {
		Name:    "阿里通义",
		APIBase: "https://dashscope.aliyuncs.com/api/v1",
		Models:  []string{"qwen-turbo", "qwen-plus", "qwen-max"},
	},
	KindDoubao: {
		Name:    "Doubao",
		APIBase: "https://ark.cn-beijing.volces.com/api/v3",
		Models:  []string{"doubao-lite-4k", "doubao-pro-4k", "doubao-pro-32k"},
	},
}

// Info returns the defaults for k
func (k Kind) Info() ProviderInfo {
	if info, ok := providerInfo[k]; ok {
		return info
	}
	return providerInfo[KindDeepSeek]
}

// DefaultModel returns the first model of the provider's list
func (k Kind) DefaultModel() string {
	return k.Info().Models[0]
}

// ParseKind returns the kind named s
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s || strings.EqualFold(string(k), s) {
			return k, true
		}
	}
	return "", false
}

// DetectProvider guesses the provider from the API base URL
func DetectProvider(apiBase string) Kind {
	base := strings.ToLower(apiBase)
	switch {
	case strings.Contains(base, "deepseek.com"):
		return KindDeepSeek
	case strings.Contains(base, "bigmodel.cn"):
		return KindZhipu
	case strings.Contains(base, "baidubce.com"), strings.Contains(base, "baidu"):
		return KindBaidu
	case strings.Contains(base, "aliyuncs.com"), strings.Contains(base, "dashscope"):
		return KindQwen
	case strings.Contains(base, "volces.com"), strings.Contains(base, "doubao"):
		return KindDoubao
	}
	return KindDeepSeek
}

// Config represents provider configuration
type Config struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float64
	HTTPClient   *http.Client
}

// APIError is a non-2xx response from a bespoke provider endpoint
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// IsRateLimit reports whether err signals the provider is throttling us
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) && oaiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	return false
}
