package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicService speaks the Messages API. Retries are owned by WithRetry,
// so the SDK's own retry loop is disabled.
type anthropicService struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     int
}

func newAnthropicService(cfg *Config, httpClient *http.Client) *anthropicService {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &anthropicService{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
	}
}

func (s *anthropicService) Complete(ctx context.Context, req *Request) (*ChatResponse, *LLMCallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	params, err := s.buildParams(req)
	if err != nil {
		return nil, nil, &FatalAPIError{Provider: "anthropic", Err: err}
	}

	startTime := time.Now()
	msg, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return nil, nil, ClassifyError("anthropic", fmt.Errorf("LLM completion failed: %w", err))
	}
	totalDuration := time.Since(startTime)

	stats := &LLMCallStats{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		CacheReadTokens:  int(msg.Usage.CacheReadInputTokens),
		TotalDurationMs:  totalDuration.Milliseconds(),
	}

	response := &ChatResponse{}
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			response.ToolCalls = append(response.ToolCalls, ToolCall{
				ID:   ensureCallID(block.ID),
				Type: "function",
				Function: FunctionCall{
					Name:      block.Name,
					Arguments: args,
				},
			})
		}
	}
	response.Content = text.String()
	if response.Content == "" && len(response.ToolCalls) == 0 {
		return nil, stats, &FatalAPIError{Provider: "anthropic", Err: ErrEmptyResponse}
	}

	slog.Debug("LLM: anthropic response received",
		"model", s.model,
		"tool_calls", len(response.ToolCalls),
		"total_tokens", stats.TotalTokens,
		"duration_ms", totalDuration.Milliseconds(),
	)
	return response, stats, nil
}

func (s *anthropicService) buildParams(req *Request) (anthropic.MessageNewParams, error) {
	system, messages := convertMessagesToAnthropic(req.Messages)
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic completion requires at least one user or assistant message")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		Messages:  messages,
		System:    system,
	}
	if s.temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.temperature))
	}

	tools, err := convertAnthropicTools(req.Tools)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	params.Tools = tools
	if req.ToolChoice != "" {
		params.ToolChoice = anthropic.ToolChoiceParamOfTool(req.ToolChoice)
	}
	return params, nil
}

// convertMessagesToAnthropic splits out system text and folds consecutive tool
// results into a single user turn, as the Messages API expects.
func convertMessagesToAnthropic(messages []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Function.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case RoleTool:
			block := anthropic.NewToolResultBlock(m.ToolCallID, m.Content, m.IsError)
			if n := len(out); n > 0 && out[n-1].Role == anthropic.MessageParamRoleUser && isToolResultTurn(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, anthropic.NewUserMessage(block))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, out
}

func isToolResultTurn(m anthropic.MessageParam) bool {
	for _, b := range m.Content {
		if b.OfToolResult == nil {
			return false
		}
	}
	return len(m.Content) > 0
}

func convertAnthropicTools(tools []ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if t.Parameters != "" {
			if err := json.Unmarshal([]byte(t.Parameters), &schema); err != nil {
				return nil, fmt.Errorf("tool %s: invalid parameter schema: %w", t.Name, err)
			}
		}
		if schema.Properties == nil {
			schema.Properties = map[string]any{}
		}

		tool := &anthropic.ToolParam{
			Name: t.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
			Type: anthropic.ToolTypeCustom,
		}
		if t.Description != "" {
			tool.Description = anthropic.String(t.Description)
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: tool})
	}
	return result, nil
}
