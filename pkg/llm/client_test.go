package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completionTransport scripts /chat/completions answers, optionally failing
// the first N calls with a status code.
type completionTransport struct {
	mu       sync.Mutex
	failures int
	failCode int
	content  string
	requests []map[string]any
}

func (t *completionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var body map[string]any
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &body)
	}
	t.requests = append(t.requests, body)

	if t.failures > 0 {
		t.failures--
		return &http.Response{
			StatusCode: t.failCode,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"backoff"}}`)),
			Request:    req,
		}, nil
	}

	payload := map[string]any{
		"id":    "cmpl-1",
		"model": "test/model",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": t.content}, "finish_reason": "stop"},
		},
		"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19},
	}
	raw, _ := json.Marshal(payload)
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(string(raw))),
		Request:    req,
	}, nil
}

func testClient(t *testing.T, transport *completionTransport, maxRetries int) *Client {
	t.Helper()
	cfg := &Config{
		BaseURL:      "http://llm.test/v1",
		APIKey:       "test-key",
		DefaultModel: "test/model",
		Timeout:      5 * time.Second,
		MaxRetries:   maxRetries,
	}
	client, err := NewClient(cfg, WithHTTPClient(&http.Client{Transport: transport}))
	require.NoError(t, err)
	client.backoff = time.Millisecond
	return client
}

func TestChatReturnsFirstChoice(t *testing.T) {
	transport := &completionTransport{content: "all quiet on the tape"}
	client := testClient(t, transport, 0)

	resp, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "system", Content: "observe"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "all quiet on the tape", resp.Content)
	assert.Equal(t, 19, resp.Usage.TotalTokens)
}

func TestChatRejectsEmptyRequest(t *testing.T) {
	client := testClient(t, &completionTransport{}, 0)
	_, err := client.Chat(context.Background(), &ChatRequest{})
	assert.Error(t, err)
}

func TestChatRetriesOn429(t *testing.T) {
	transport := &completionTransport{content: "ok", failures: 2, failCode: http.StatusTooManyRequests}
	client := testClient(t, transport, 3)

	resp, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "ping"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Len(t, transport.requests, 3, "two 429s then success")
}

func TestChatGivesUpAfterMaxRetries(t *testing.T) {
	transport := &completionTransport{content: "never", failures: 10, failCode: http.StatusInternalServerError}
	client := testClient(t, transport, 1)

	_, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "ping"}},
	})
	assert.Error(t, err)
	assert.Len(t, transport.requests, 2, "one attempt plus one retry")
}

func TestChatStructuredDecodesIntoTarget(t *testing.T) {
	transport := &completionTransport{content: `{"decision":"HOLD","confidence":41}`}
	client := testClient(t, transport, 0)

	var out struct {
		Decision   string `json:"decision"`
		Confidence int    `json:"confidence"`
	}
	_, err := client.ChatStructured(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "system", Content: "decide"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "HOLD", out.Decision)
	assert.Equal(t, 41, out.Confidence)

	// The wire request carried the schema-constrained response format.
	require.NotEmpty(t, transport.requests)
	rf, ok := transport.requests[len(transport.requests)-1]["response_format"].(map[string]any)
	require.True(t, ok, "response_format present")
	assert.Equal(t, "json_schema", rf["type"])
}

func TestChatStructuredRejectsNonPointer(t *testing.T) {
	client := testClient(t, &completionTransport{}, 0)
	var out struct{}
	_, err := client.ChatStructured(context.Background(), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "x"}},
	}, out)
	assert.Error(t, err)
}
