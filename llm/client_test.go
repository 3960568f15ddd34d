package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"daily-report-assistant/utils"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		base string
		want Kind
	}{
		{"https://api.deepseek.com/v1", KindDeepSeek},
		{"https://open.bigmodel.cn/api/paas/v4", KindZhipu},
		{"https://aip.baidubce.com/rpc/2.0/ai_custom/v1/wenxinworkshop/chat", KindBaidu},
		{"https://dashscope.aliyuncs.com/api/v1", KindQwen},
		{"https://ark.cn-beijing.volces.com/api/v3", KindDoubao},
		{"https://example.com/v1", KindDeepSeek},
		{"", KindDeepSeek},
	}
	for _, tt := range tests {
		if got := DetectProvider(tt.base); got != tt.want {
			t.Errorf("DetectProvider(%q) = %s, want %s", tt.base, got, tt.want)
		}
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClientFromParams("key", "https://dashscope.aliyuncs.com/api/v1", "")
	if err != nil {
		t.Fatal(err)
	}
	if c.Kind() != KindQwen || c.Model() != "qwen-turbo" {
		t.Errorf("Expected qwen-turbo on Qwen, got %s on %s", c.Model(), c.Kind())
	}

	if _, err := NewClientFromParams("", "", ""); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("Expected ErrNoAPIKey, got %v", err)
	}
}

func TestComplete_ZeroTemperatureIsKept(t *testing.T) {
	var got []float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req qwenRequest
		json.NewDecoder(r.Body).Decode(&req)
		got = append(got, req.Parameters.Temperature)
		w.Write([]byte(`{"output":{"text":"ok"}}`))
	}))
	defer server.Close()

	c, _ := NewClient(ClientConfig{Provider: "阿里通义", APIKey: "k", APIBase: server.URL, Temperature: 0})
	c.Complete(context.Background(), []Message{UserMessage("u")})

	c, _ = NewClientFromParams("k", server.URL+"/dashscope", "")
	c.Complete(context.Background(), []Message{UserMessage("u")})

	if len(got) != 2 || got[0] != 0 || got[1] != DefaultTemperature {
		t.Errorf("Expected temperatures [0 %v], got %v", DefaultTemperature, got)
	}
}

func TestComplete_OpenAIZeroTemperatureIsSent(t *testing.T) {
	var temperature interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		temperature = req["temperature"]
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer server.Close()

	c, _ := NewClient(ClientConfig{Provider: "DeepSeek", APIKey: "k", APIBase: server.URL})
	if _, err := c.Complete(context.Background(), []Message{UserMessage("u")}); err != nil {
		t.Fatal(err)
	}
	if v, ok := temperature.(float64); !ok || v > 1e-6 {
		t.Errorf("Expected a near-zero temperature in the request, got %v", temperature)
	}
}

func TestNewClient_ExplicitProviderWins(t *testing.T) {
	c, err := NewClient(ClientConfig{Provider: "智谱AI", APIKey: "k", APIBase: "https://proxy.internal/glm"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Kind() != KindZhipu || c.Model() != "glm-4" {
		t.Errorf("Got %s/%s", c.Kind(), c.Model())
	}
}

func TestComplete_OpenAICompatible(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Missing bearer token")
		}
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "deepseek-chat" {
			t.Errorf("Unexpected model %v", req["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"deepseek-chat",
			"choices":[{"index":0,"message":{"role":"assistant","content":"  日报内容  "},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	c, err := NewClient(ClientConfig{Provider: "DeepSeek", APIKey: "test-key", APIBase: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Complete(context.Background(), []Message{UserMessage("hi")})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "日报内容" {
		t.Errorf("Expected trimmed content, got %q", got)
	}
}

func TestComplete_Zhipu(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var req zhipuRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "glm-4" || req.MaxTokens != 1000 || len(req.Messages) != 2 {
			t.Errorf("Unexpected request %+v", req)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"glm says hi"}}]}`))
	}))
	defer server.Close()

	c, _ := NewClient(ClientConfig{Provider: "智谱AI", APIKey: "k", APIBase: server.URL})
	got, err := c.Complete(context.Background(), []Message{SystemMessage("s"), UserMessage("u")})
	if err != nil || got != "glm says hi" {
		t.Errorf("Got %q, %v", got, err)
	}
}

func TestComplete_Baidu(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ERNIE-Bot-4" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("access_token") != "baidu-token" {
			t.Errorf("Missing access_token")
		}
		var req baiduRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.TokenLimit != 500 {
			t.Errorf("Expected token_limit 500, got %d", req.TokenLimit)
		}
		w.Write([]byte(`{"result":"文心回复"}`))
	}))
	defer server.Close()

	c, _ := NewClient(ClientConfig{Provider: "百度文心", APIKey: "baidu-token", APIBase: server.URL, MaxTokens: 500})
	got, err := c.Complete(context.Background(), []Message{UserMessage("u")})
	if err != nil || got != "文心回复" {
		t.Errorf("Got %q, %v", got, err)
	}
}

func TestComplete_BaiduInBandRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error_code":18,"error_msg":"Open api qps request limit reached"}`))
	}))
	defer server.Close()

	rec := &sleepRecorder{}
	c, _ := NewClient(ClientConfig{Provider: "百度文心", APIKey: "k", APIBase: server.URL, RetryCount: 2, Sleep: rec.sleep})
	if _, err := c.Complete(context.Background(), []Message{UserMessage("u")}); !errors.Is(err, ErrNoCompletion) {
		t.Fatalf("Expected ErrNoCompletion, got %v", err)
	}
	if len(rec.delays) != 1 || rec.delays[0] != 2*time.Second {
		t.Errorf("Expected one 2s backoff, got %v", rec.delays)
	}
}

func TestComplete_QwenWithAnonymizer(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generation" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var req qwenRequest
		json.NewDecoder(r.Body).Decode(&req)
		received = req.Input.Messages[0].Content
		json.NewEncoder(w).Encode(map[string]interface{}{
			"output": map[string]string{"text": "已处理: " + received},
		})
	}))
	defer server.Close()

	anonymizer := utils.NewAnonymizer(utils.PrivacyConfig{AnonymizeSensitiveData: true, AnonymizeIPAddresses: true})
	c, _ := NewClient(ClientConfig{Provider: "阿里通义", APIKey: "k", APIBase: server.URL, Anonymizer: anonymizer})

	got, err := c.Complete(context.Background(), []Message{UserMessage("重启 10.1.2.3 上的服务")})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(received, "10.1.2.3") {
		t.Errorf("Provider saw the raw address: %s", received)
	}
	if got != "已处理: 重启 10.1.2.3 上的服务" {
		t.Errorf("Reply was not restored: %s", got)
	}
}

func TestComplete_RateLimitBackoff(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":"Throttling","message":"Requests throttled"}`))
	}))
	defer server.Close()

	rec := &sleepRecorder{}
	c, _ := NewClient(ClientConfig{Provider: "阿里通义", APIKey: "k", APIBase: server.URL, RetryCount: 4, Sleep: rec.sleep})

	got, err := c.Complete(context.Background(), []Message{UserMessage("u")})
	if got != "" || !errors.Is(err, ErrNoCompletion) {
		t.Fatalf("Expected no completion, got %q, %v", got, err)
	}
	if calls != 4 {
		t.Errorf("Expected 4 attempts, got %d", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("Expected delays %v, got %v", want, rec.delays)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("Delay %d: expected %s, got %s", i, want[i], rec.delays[i])
		}
	}
}

func TestComplete_OtherErrorsWaitOneSecond(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	rec := &sleepRecorder{}
	c, _ := NewClient(ClientConfig{Provider: "智谱AI", APIKey: "k", APIBase: server.URL, RetryCount: 3, Sleep: rec.sleep})

	got, err := c.Complete(context.Background(), []Message{UserMessage("u")})
	if err != nil || got != "ok" {
		t.Fatalf("Expected ok on third attempt, got %q, %v", got, err)
	}
	if len(rec.delays) != 2 || rec.delays[0] != time.Second || rec.delays[1] != time.Second {
		t.Errorf("Expected two 1s waits, got %v", rec.delays)
	}
}

func TestBackoff(t *testing.T) {
	rateLimited := errors.New("Rate limit exceeded")
	for attempt, want := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second} {
		if got := Backoff(attempt, rateLimited); got != want {
			t.Errorf("Backoff(%d) = %s, want %s", attempt, got, want)
		}
	}
	if got := Backoff(3, errors.New("connection reset")); got != time.Second {
		t.Errorf("Expected 1s for other errors, got %s", got)
	}
	if !IsRateLimit(&APIError{StatusCode: http.StatusTooManyRequests}) {
		t.Errorf("429 should count as rate limit")
	}
}

func TestClientTestConnection(t *testing.T) {
	long := strings.Repeat("测", 60)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"content": long}}},
		})
	}))
	defer server.Close()

	c, _ := NewClient(ClientConfig{Provider: "智谱AI", APIKey: "k", APIBase: server.URL})
	result := c.TestConnection(context.Background())
	if !result.Success || result.Provider != "智谱AI" || result.Model != "glm-4" {
		t.Errorf("Unexpected result %+v", result)
	}
	if result.Response != strings.Repeat("测", 50)+"..." {
		t.Errorf("Response not truncated: %s", result.Response)
	}

	failed := TestConnection(context.Background(), "", "https://open.bigmodel.cn/api/paas/v4", "")
	if failed.Success || failed.Provider != "智谱AI" {
		t.Errorf("Empty key should fail: %+v", failed)
	}
}
