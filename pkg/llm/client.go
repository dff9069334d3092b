// Package llm is the thin completion client behind the trading-decision
// chain: plain chat plus schema-constrained structured output over any
// OpenAI-compatible endpoint. Streaming, tool calls, and provider routing
// are deliberately absent; the decision chain asks one question and decodes
// one answer.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/zeromicro/go-zero/core/logx"
)

// LLMClient is the surface the decision chain depends on.
type LLMClient interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	ChatStructured(ctx context.Context, req *ChatRequest, target any) (any, error)
	Close() error
}

// Client talks to an OpenAI-compatible endpoint via the OpenAI SDK.
type Client struct {
	cfg     *Config
	oa      *openai.Client
	backoff time.Duration // base retry backoff; doubled per attempt
}

// ClientOption configures optional client behaviour.
type ClientOption func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
}

// WithHTTPClient replaces the transport, e.g. for recorded fixtures.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = hc }
}

const defaultRetryBackoff = 500 * time.Millisecond

// NewClient constructs a Client from cfg.
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("llm: config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var state clientOptions
	for _, opt := range opts {
		opt(&state)
	}

	oaOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		oaOpts = append(oaOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	if state.httpClient != nil {
		oaOpts = append(oaOpts, option.WithHTTPClient(state.httpClient))
	}
	oa := openai.NewClient(oaOpts...)

	return &Client{cfg: cfg, oa: &oa, backoff: defaultRetryBackoff}, nil
}

// Chat performs one synchronous completion call with the configured retry
// ladder (429/5xx only).
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req == nil {
		return nil, errors.New("llm: request cannot be nil")
	}
	params, modelID, err := c.buildParams(req, nil)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, params, modelID)
}

// ChatStructured derives a JSON schema from target's type, constrains the
// completion to it, and decodes the answer into target.
func (c *Client) ChatStructured(ctx context.Context, req *ChatRequest, target any) (any, error) {
	if req == nil {
		return nil, errors.New("llm: request cannot be nil")
	}
	value := reflect.ValueOf(target)
	if target == nil || value.Kind() != reflect.Ptr || value.IsNil() {
		return nil, errors.New("llm: structured target must be a non-nil pointer")
	}

	schema, err := GenerateSchema(target)
	if err != nil {
		return nil, err
	}
	params, modelID, err := c.buildParams(req, schemaFormat(schemaName(value), schema))
	if err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, params, modelID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, errors.New("llm: empty structured response")
	}
	if err := json.Unmarshal([]byte(resp.Content), target); err != nil {
		return nil, fmt.Errorf("llm: decode structured response: %w", err)
	}
	return target, nil
}

// Close releases client resources. The SDK owns no long-lived connections
// beyond the transport's idle pool, so there is nothing to tear down.
func (c *Client) Close() error { return nil }

func (c *Client) buildParams(req *ChatRequest, format *openai.ChatCompletionNewParamsResponseFormatUnion) (openai.ChatCompletionNewParams, string, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, "", errors.New("llm: request requires at least one message")
	}

	modelID, modelCfg := c.cfg.resolveModel(req.Model)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: messages,
	}
	if format != nil {
		params.ResponseFormat = *format
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	} else if modelCfg.Temperature != nil {
		params.Temperature = openai.Float(*modelCfg.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	} else if modelCfg.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*modelCfg.MaxTokens))
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	} else if modelCfg.TopP != nil {
		params.TopP = openai.Float(*modelCfg.TopP)
	}
	return params, modelID, nil
}

// call runs the completion with exponential backoff on 429/5xx.
func (c *Client) call(ctx context.Context, params openai.ChatCompletionNewParams, modelID string) (*ChatResponse, error) {
	started := time.Now()
	var completion *openai.ChatCompletion
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, err := c.oa.Chat.Completions.New(ctx, params)
		if err == nil {
			completion = resp
			break
		}
		lastErr = err
		if !retriableStatus(err) || attempt == c.cfg.MaxRetries {
			return nil, fmt.Errorf("llm: completion %s: %w", modelID, err)
		}
		wait := c.backoff << attempt
		logx.WithContext(ctx).Slowf("llm: model=%s attempt=%d retrying after %s: %v", modelID, attempt+1, wait, err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if completion == nil {
		return nil, fmt.Errorf("llm: completion %s: %w", modelID, lastErr)
	}

	out := &ChatResponse{
		ID:    completion.ID,
		Model: completion.Model,
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) > 0 {
		out.Content = completion.Choices[0].Message.Content
		out.FinishReason = completion.Choices[0].FinishReason
	}
	logx.WithContext(ctx).Infof("llm: model=%s duration=%s tokens=%d/%d",
		modelID, time.Since(started).Truncate(time.Millisecond), out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return out, nil
}

// retriableStatus reports whether err is a 429/5xx API error worth another
// attempt.
func retriableStatus(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}

func schemaFormat(name string, schema map[string]any) *openai.ChatCompletionNewParamsResponseFormatUnion {
	jsonSchema := shared.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:   name,
		Schema: schema,
		Strict: openai.Bool(true),
	}
	val := shared.ResponseFormatJSONSchemaParam{JSONSchema: jsonSchema}
	val.Type = val.Type.Default()
	return &openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONSchema: &val}
}

func schemaName(val reflect.Value) string {
	t := val.Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := strings.ToLower(t.Name())
	if name == "" {
		name = "structured_output"
	}
	return name
}
