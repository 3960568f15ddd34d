package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"daily-report-assistant/db"
	"daily-report-assistant/utils"
)

var (
	// ErrTokenUnavailable means the tenant access token could not be obtained
	ErrTokenUnavailable = errors.New("tenant access token unavailable")
	// ErrMissingCredentials means app_id or app_secret is empty
	ErrMissingCredentials = errors.New("app_id and app_secret are required")
)

const (
	requestTimeout = 10 * time.Second
	// tokens are refreshed this long before the platform expires them
	tokenSafetyMargin = 300 * time.Second
)

// Message types accepted by the messages endpoint
const (
	MsgTypeText        = "text"
	MsgTypePost        = "post"
	MsgTypeInteractive = "interactive"
)

// Message formats selectable in the settings
const (
	FormatCard     = "card"
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// APIError is a non-zero code returned by the open platform
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("feishu API error %d: %s", e.Code, e.Msg)
}

// SubmissionRecorder receives every automatic submission attempt
type SubmissionRecorder interface {
	RecordSubmission(s *db.Submission) error
}

// Options configures a Client beyond its credentials
type Options struct {
	HTTPClient *http.Client
	Clock      utils.Clock
	Logger     *utils.Logger
	Recorder   SubmissionRecorder
}

// Client talks to the Feishu open platform
type Client struct {
	appID     string
	appSecret string
	baseURL   string
	format    string
	schedule  Schedule

	httpClient *http.Client
	clock      utils.Clock
	logger     *utils.Logger
	recorder   SubmissionRecorder

	group     singleflight.Group
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient creates a client from the persisted Feishu settings
func NewClient(cfg utils.FeishuConfig, opts Options) (*Client, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, ErrMissingCredentials
	}

	c := &Client{
		appID:      cfg.AppID,
		appSecret:  cfg.AppSecret,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		format:     cfg.MessageFormat,
		schedule:   ScheduleFromConfig(cfg),
		httpClient: opts.HTTPClient,
		clock:      opts.Clock,
		logger:     opts.Logger,
		recorder:   opts.Recorder,
	}
	if c.baseURL == "" {
		c.baseURL = utils.DefaultFeishuBaseURL
	}
	if c.format == "" {
		c.format = FormatCard
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: requestTimeout}
	}
	if c.clock == nil {
		c.clock = utils.SystemClock{}
	}
	return c, nil
}

// envelope is the common response shape of the open platform
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"` // seconds
}

// TenantAccessToken returns a cached token or exchanges the app credentials
// Concurrent callers share one exchange.
func (c *Client) TenantAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.clock.Now().Before(c.expiresAt) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("tenant_access_token", func() (interface{}, error) {
		return c.fetchToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	body := map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	}
	raw, err := c.do(ctx, http.MethodPost, "/auth/v3/tenant_access_token/internal", nil, "", body)
	if err != nil {
		c.logger.Error("Failed to get tenant access token: %v", err)
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}

	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrTokenUnavailable, err)
	}
	if resp.Code != 0 {
		c.logger.Error("Failed to get tenant access token: %s", resp.Msg)
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, &APIError{Code: resp.Code, Msg: resp.Msg})
	}

	c.mu.Lock()
	c.token = resp.TenantAccessToken
	c.expiresAt = c.clock.Now().Add(time.Duration(resp.Expire)*time.Second - tokenSafetyMargin)
	c.mu.Unlock()
	return resp.TenantAccessToken, nil
}

// do sends one request and returns the raw body of a 200 response
func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string, body interface{}) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// call performs an authenticated request and unwraps the data field
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	token, err := c.TenantAccessToken(ctx)
	if err != nil {
		return err
	}

	raw, err := c.do(ctx, method, path, query, token, body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Code != 0 {
		return &APIError{Code: env.Code, Msg: env.Msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode data: %w", err)
		}
	}
	return nil
}

// ChatInfo describes a group chat
type ChatInfo struct {
	ChatID      string `json:"chat_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"owner_id"`
	ChatMode    string `json:"chat_mode"`
}

// ChatInfo looks up one group chat
func (c *Client) ChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	var info ChatInfo
	if err := c.call(ctx, http.MethodGet, "/im/v1/chats/"+url.PathEscape(chatID), nil, nil, &info); err != nil {
		c.logger.Error("Failed to get chat info for %s: %v", chatID, err)
		return nil, err
	}
	if info.ChatID == "" {
		info.ChatID = chatID
	}
	return &info, nil
}

type sendMessageRequest struct {
	ReceiveID     string `json:"receive_id"`
	ReceiveIDType string `json:"receive_id_type"`
	MsgType       string `json:"msg_type"`
	Content       string `json:"content"`
	UUID          string `json:"uuid"`
}

// SendMessage posts one message to a group chat
// content is serialized to the JSON string the messages endpoint expects.
func (c *Client) SendMessage(ctx context.Context, chatID, msgType string, content interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(content); err != nil {
		return fmt.Errorf("failed to marshal message content: %w", err)
	}

	req := sendMessageRequest{
		ReceiveID:     chatID,
		ReceiveIDType: "chat_id",
		MsgType:       msgType,
		Content:       strings.TrimRight(buf.String(), "\n"),
		UUID:          uuid.NewString(),
	}
	query := url.Values{"receive_id_type": {"chat_id"}}
	if err := c.call(ctx, http.MethodPost, "/im/v1/messages", query, req, nil); err != nil {
		c.logger.Error("Failed to send %s message to %s: %v", msgType, chatID, err)
		return err
	}
	return nil
}

// CardText is a text block inside a card
type CardText struct {
	Content string `json:"content"`
	Tag     string `json:"tag"`
}

// CardElement is one element of a card body
type CardElement struct {
	Tag  string    `json:"tag"`
	Text *CardText `json:"text,omitempty"`
}

// Card is an interactive message card
type Card struct {
	Config struct {
		WideScreenMode bool `json:"wide_screen_mode"`
	} `json:"config"`
	Elements []CardElement `json:"elements"`
	Header   struct {
		Template string   `json:"template"`
		Title    CardText `json:"title"`
	} `json:"header"`
}

const footer = "🤖 *由牛马日报助手自动生成*"

func markdown(s string) CardElement {
	return CardElement{Tag: "div", Text: &CardText{Content: s, Tag: "lark_md"}}
}

// BuildReportCard lays out report text as a card titled with label
func (c *Client) BuildReportCard(text, label string) Card {
	var card Card
	card.Config.WideScreenMode = true
	card.Header.Template = "blue"
	card.Header.Title = CardText{Content: "📊 工作" + label, Tag: "plain_text"}
	card.Elements = []CardElement{
		markdown(fmt.Sprintf("📋 **%s** - %s", label, c.clock.Now().Format("2006-01-02 15:04"))),
		{Tag: "hr"},
		markdown(text),
		{Tag: "hr"},
		markdown(footer),
	}
	return card
}

// SendReport renders text in format and posts it
func (c *Client) SendReport(ctx context.Context, chatID, text, format, label string) error {
	switch format {
	case FormatText:
		content := map[string]string{
			"text": fmt.Sprintf("📋 工作%s\n\n%s\n\n🤖 由牛马日报助手自动生成", label, text),
		}
		return c.SendMessage(ctx, chatID, MsgTypeText, content)
	case FormatMarkdown:
		content := map[string]string{
			"content": fmt.Sprintf("📋 **工作%s**\n\n%s\n\n%s", label, text, footer),
		}
		return c.SendMessage(ctx, chatID, MsgTypePost, content)
	default:
		return c.SendMessage(ctx, chatID, MsgTypeInteractive, c.BuildReportCard(text, label))
	}
}

// ConnectionResult reports the outcome of TestConnection
type ConnectionResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}

// TestConnection checks the credentials and one authenticated API call
func (c *Client) TestConnection(ctx context.Context) ConnectionResult {
	result := ConnectionResult{Details: map[string]string{}}

	if _, err := c.TenantAccessToken(ctx); err != nil {
		result.Message = "获取访问令牌失败，请检查App ID和App Secret"
		return result
	}
	result.Details["token_status"] = "✅ 访问令牌获取成功"

	err := c.call(ctx, http.MethodGet, "/im/v1/chats", url.Values{"page_size": {"1"}}, nil, nil)
	var apiErr *APIError
	switch {
	case err == nil:
		result.Details["api_status"] = "✅ API调用成功"
		result.Success = true
		result.Message = "飞书连接测试成功"
	case errors.As(err, &apiErr):
		result.Details["api_status"] = "❌ API调用失败: " + apiErr.Msg
		result.Message = "API调用失败，请检查应用权限配置"
	default:
		result.Details["api_status"] = "❌ API调用异常: " + err.Error()
		result.Message = "网络连接失败或API异常"
	}
	return result
}

// TestConnection builds a client from cfg and tests it
func TestConnection(ctx context.Context, cfg utils.FeishuConfig) ConnectionResult {
	client, err := NewClient(cfg, Options{})
	if err != nil {
		return ConnectionResult{Message: "请先配置飞书App ID和App Secret", Details: map[string]string{}}
	}
	return client.TestConnection(ctx)
}

// Submit tests the connection and posts one report
func Submit(ctx context.Context, cfg utils.FeishuConfig, text, label string, opts Options) error {
	if cfg.ChatID == "" || text == "" {
		return errors.New("chat_id and report content are required")
	}
	client, err := NewClient(cfg, opts)
	if err != nil {
		return err
	}
	if res := client.TestConnection(ctx); !res.Success {
		return fmt.Errorf("connection test failed: %s", res.Message)
	}
	return client.SendReport(ctx, cfg.ChatID, text, client.format, label)
}
