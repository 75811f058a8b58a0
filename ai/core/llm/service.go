package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/sashabaranov/go-openai"
)

// LLMCallStats represents statistics for a single LLM call.
type LLMCallStats struct {
	// PromptTokens is the number of tokens in the input prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the generated response.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the sum of prompt and completion tokens.
	TotalTokens int `json:"total_tokens"`

	// CacheReadTokens is the number of tokens read from cache (for providers that support it).
	CacheReadTokens int `json:"cache_read_tokens,omitempty"`

	// TotalDurationMs is the total wall-clock time for the request.
	TotalDurationMs int64 `json:"total_duration_ms"`
}

// Service is the completion client contract shared by both workflow loops.
type Service interface {
	// Complete sends the conversation and returns either text or tool calls.
	// Failures are *TransientAPIError or *FatalAPIError.
	Complete(ctx context.Context, req *Request) (*ChatResponse, *LLMCallStats, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, req *Request) (*ChatResponse, *LLMCallStats, error)

// Complete calls f.
func (f ServiceFunc) Complete(ctx context.Context, req *Request) (*ChatResponse, *LLMCallStats, error) {
	return f(ctx, req)
}

// Request is a single completion request.
type Request struct {
	Messages []Message
	Tools    []ToolDescriptor
	// ToolChoice forces the named tool when non-empty.
	ToolChoice string
}

// ToolDescriptor represents a function/tool available to the LLM.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  string // JSON Schema string
}

// ChatResponse represents the LLM response including potential tool calls.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the model asked for at least one tool.
func (r *ChatResponse) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// ToolCall represents a request to call a tool.
type ToolCall struct {
	ID       string
	Type     string
	Function FunctionCall
}

// FunctionCall represents the function details.
type FunctionCall struct {
	Name      string
	Arguments string
}

// Config represents LLM service configuration.
type Config struct {
	Provider    string // openai, deepseek, siliconflow, zai, dashscope, openrouter, ollama, anthropic
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.7
	Timeout     int     // Request timeout in seconds (default: 120)
}

const (
	defaultMaxTokens = 2048
	defaultTimeout   = 120
)

// providerBaseURLs holds the default endpoint for each OpenAI-compatible provider.
var providerBaseURLs = map[string]string{
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"zai":         "https://open.bigmodel.cn/api/paas/v4",
	"dashscope":   "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"ollama":      "http://localhost:11434/v1",
	"openai":      "",
}

type service struct {
	client      *openai.Client
	model       string
	provider    string
	maxTokens   int
	temperature float32
	timeout     int // Request timeout in seconds
}

// NewService creates a completion Service for cfg.Provider.
func NewService(cfg *Config) (Service, error) {
	if cfg == nil || cfg.Provider == "" {
		return nil, errors.New("llm: provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required for provider %q", cfg.Provider)
	}

	if cfg.Provider == "anthropic" {
		return newAnthropicService(cfg, newHTTPClient()), nil
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()

	baseURL := cfg.BaseURL
	if baseURL == "" {
		defaultURL, known := providerBaseURLs[cfg.Provider]
		if !known {
			// Generic fallback for any other OpenAI-compatible provider
			slog.Info("Using generic OpenAI-compatible provider", "provider", cfg.Provider)
		}
		baseURL = defaultURL
	}
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &service{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		provider:    cfg.Provider,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
	}, nil
}

func (s *service) Complete(ctx context.Context, req *Request) (*ChatResponse, *LLMCallStats, error) {
	// Add timeout protection using configured timeout
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	temperature := s.temperature
	tools := convertTools(req.Tools)
	if len(tools) > 0 && temperature > 0.1 {
		// Lower temperature for tool calls keeps argument JSON stable
		temperature = 0.1
	}

	oreq := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: temperature,
		Messages:    convertMessages(req.Messages),
		Tools:       tools,
	}
	if req.ToolChoice != "" {
		oreq.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: req.ToolChoice},
		}
	}

	slog.Debug("LLM: completion request",
		"provider", s.provider,
		"model", s.model,
		"messages_count", len(req.Messages),
		"tools_count", len(tools),
		"tool_choice", req.ToolChoice,
	)

	startTime := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, oreq)
	if err != nil {
		return nil, nil, ClassifyError(s.provider, fmt.Errorf("LLM completion failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, nil, &FatalAPIError{Provider: s.provider, Err: ErrEmptyResponse}
	}

	totalDuration := time.Since(startTime)
	stats := &LLMCallStats{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		TotalDurationMs:  totalDuration.Milliseconds(),
	}
	if resp.Usage.PromptTokensDetails != nil && resp.Usage.PromptTokensDetails.CachedTokens > 0 {
		stats.CacheReadTokens = resp.Usage.PromptTokensDetails.CachedTokens
	}

	choice := resp.Choices[0]
	response := &ChatResponse{Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		response.ToolCalls = append(response.ToolCalls, ToolCall{
			ID:   ensureCallID(tc.ID),
			Type: string(tc.Type),
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	if response.Content == "" && len(response.ToolCalls) == 0 {
		return nil, stats, &FatalAPIError{Provider: s.provider, Err: ErrEmptyResponse}
	}

	slog.Debug("LLM: completion response received",
		"content_length", len(response.Content),
		"tool_calls", len(response.ToolCalls),
		"total_tokens", stats.TotalTokens,
		"duration_ms", totalDuration.Milliseconds(),
	)

	return response, stats, nil
}

func convertTools(tools []ToolDescriptor) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		params := t.Parameters
		if params == "" {
			params = `{"type":"object","properties":{}}`
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(params),
			},
		}
	}
	return out
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		switch m.Role {
		case RoleSystem:
			llmMessages[i] = openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content}
		case RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			llmMessages[i] = msg
		case RoleTool:
			llmMessages[i] = openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				Name:       m.Name,
				ToolCallID: m.ToolCallID,
			}
		default:
			llmMessages[i] = openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content}
		}
	}
	return llmMessages
}

// ensureCallID fills in an ID for providers that omit tool call IDs.
func ensureCallID(id string) string {
	if id != "" {
		return id
	}
	return NewCallID()
}

// NewCallID returns a fresh synthetic tool call ID.
func NewCallID() string {
	return "call_" + shortuuid.New()
}

// UniqueCallIDs returns calls with every repeated or empty ID replaced by a
// fresh one, so that each tool message answers exactly one call. The input
// slice is not modified.
func UniqueCallIDs(calls []ToolCall) []ToolCall {
	out := make([]ToolCall, len(calls))
	seen := make(map[string]struct{}, len(calls))
	for i, tc := range calls {
		if _, dup := seen[tc.ID]; dup || tc.ID == "" {
			tc.ID = NewCallID()
		}
		seen[tc.ID] = struct{}{}
		out[i] = tc
	}
	return out
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 180 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Chat runs a plain completion and returns the text content.
func Chat(ctx context.Context, svc Service, messages []Message) (string, *LLMCallStats, error) {
	resp, stats, err := svc.Complete(ctx, &Request{Messages: messages})
	if err != nil {
		return "", stats, err
	}
	return resp.Content, stats, nil
}
