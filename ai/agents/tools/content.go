package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mitchellh/mapstructure"

	"github.com/hrygo/repurpose/ai/content"
	"github.com/hrygo/repurpose/ai/core/llm"
	"github.com/hrygo/repurpose/ai/prompts"
)

// ErrNoToolCall is returned when a forced tool call comes back as plain text.
var ErrNoToolCall = errors.New("model did not call the requested tool")

// Renderer renders named prompt templates.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// SocialPosts holds one post per platform.
type SocialPosts struct {
	Twitter  string `json:"twitter" mapstructure:"twitter"`
	LinkedIn string `json:"linkedin" mapstructure:"linkedin"`
	Facebook string `json:"facebook" mapstructure:"facebook"`
}

// Newsletter is an email newsletter.
type Newsletter struct {
	Subject string `json:"subject" mapstructure:"subject"`
	Body    string `json:"body" mapstructure:"body"`
}

// Bundle is the full set of repurposed artifacts.
type Bundle struct {
	KeyPoints   []string     `json:"key_points,omitempty" mapstructure:"key_points"`
	Summary     string       `json:"summary" mapstructure:"summary"`
	SocialPosts *SocialPosts `json:"social_posts" mapstructure:"social_posts"`
	Email       *Newsletter  `json:"email" mapstructure:"email"`
}

// promptData is the template data of every task prompt.
type promptData struct {
	Post      *content.Post
	KeyPoints []string
	Summary   string
}

// TasksConfig configures Tasks.
type TasksConfig struct {
	Service llm.Service
	Post    *content.Post
	Prompts Renderer
	// Cache is optional; nil disables caching.
	Cache  *ResultCache
	Logger *slog.Logger
}

// Tasks runs the content generation tasks for one post. Each task is a
// completion that forces a tool call and decodes its arguments.
type Tasks struct {
	svc     llm.Service
	post    *content.Post
	prompts Renderer
	cache   *ResultCache
	logger  *slog.Logger

	mu    sync.Mutex
	calls int
	usage llm.LLMCallStats
}

// NewTasks creates the task runner.
func NewTasks(cfg TasksConfig) (*Tasks, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("tasks: service is required")
	}
	if cfg.Post == nil {
		return nil, fmt.Errorf("tasks: post is required")
	}
	if cfg.Prompts == nil {
		return nil, fmt.Errorf("tasks: prompts are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tasks{
		svc:     cfg.Service,
		post:    cfg.Post,
		prompts: cfg.Prompts,
		cache:   cfg.Cache,
		logger:  logger,
	}, nil
}

// Post returns the source post.
func (t *Tasks) Post() *content.Post {
	return t.post
}

// Usage returns the number of completions issued and their summed usage.
func (t *Tasks) Usage() (int, llm.LLMCallStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls, t.usage
}

// ExtractKeyPoints extracts the key points of the post.
func (t *Tasks) ExtractKeyPoints(ctx context.Context) ([]string, *llm.LLMCallStats, error) {
	key := NewCacheKey(ToolExtractKeyPoints, t.post.Title+"\x00"+t.post.Content)
	if t.cache != nil {
		if cached, ok := t.cache.Get(key); ok {
			var points []string
			if err := json.Unmarshal([]byte(cached), &points); err == nil {
				return points, nil, nil
			}
		}
	}

	var out struct {
		KeyPoints []string `mapstructure:"key_points"`
	}
	stats, err := t.forced(ctx, ToolExtractKeyPoints, keyPointsOutputSchema(),
		prompts.KeyPointsSystem, prompts.KeyPointsUser, promptData{Post: t.post}, &out)
	if err != nil {
		return nil, stats, err
	}

	if t.cache != nil {
		if data, err := json.Marshal(out.KeyPoints); err == nil {
			t.cache.Set(key, string(data))
		}
	}
	return out.KeyPoints, stats, nil
}

// GenerateSummary summarizes the key points.
func (t *Tasks) GenerateSummary(ctx context.Context, keyPoints []string) (string, *llm.LLMCallStats, error) {
	var out struct {
		Summary string `mapstructure:"summary"`
	}
	stats, err := t.forced(ctx, ToolGenerateSummary, summaryOutputSchema(),
		prompts.SummarySystem, prompts.SummaryUser, promptData{Post: t.post, KeyPoints: keyPoints}, &out)
	if err != nil {
		return "", stats, err
	}
	return strings.TrimSpace(out.Summary), stats, nil
}

// CreateSocialPosts writes one post per platform.
func (t *Tasks) CreateSocialPosts(ctx context.Context, keyPoints []string) (*SocialPosts, *llm.LLMCallStats, error) {
	var out SocialPosts
	stats, err := t.forced(ctx, ToolCreateSocialPosts, socialPostsOutputSchema(),
		prompts.SocialSystem, prompts.SocialUser, promptData{Post: t.post, KeyPoints: keyPoints}, &out)
	if err != nil {
		return nil, stats, err
	}
	return &out, stats, nil
}

// CreateNewsletter writes the newsletter email.
func (t *Tasks) CreateNewsletter(ctx context.Context, summary string, keyPoints []string) (*Newsletter, *llm.LLMCallStats, error) {
	var out Newsletter
	stats, err := t.forced(ctx, ToolCreateNewsletter, newsletterOutputSchema(),
		prompts.NewsletterSystem, prompts.NewsletterUser,
		promptData{Post: t.post, KeyPoints: keyPoints, Summary: summary}, &out)
	if err != nil {
		return nil, stats, err
	}
	return &out, stats, nil
}

// forced issues one completion with tool choice pinned to tool and decodes
// the validated call arguments into out.
func (t *Tasks) forced(ctx context.Context, tool string, schema *openapi3.Schema, systemName, userName string, data promptData, out any) (*llm.LLMCallStats, error) {
	system, err := t.prompts.Render(systemName, data)
	if err != nil {
		return nil, err
	}
	user, err := t.prompts.Render(userName, data)
	if err != nil {
		return nil, err
	}
	params, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", tool, err)
	}

	resp, stats, err := t.svc.Complete(ctx, &llm.Request{
		Messages: []llm.Message{llm.SystemPrompt(system), llm.UserMessage(user)},
		Tools: []llm.ToolDescriptor{{
			Name:        tool,
			Description: schema.Description,
			Parameters:  string(params),
		}},
		ToolChoice: tool,
	})
	t.record(stats)
	if err != nil {
		return stats, err
	}

	var raw string
	found := false
	for _, tc := range resp.ToolCalls {
		if tc.Function.Name == tool {
			raw, found = tc.Function.Arguments, true
			break
		}
	}
	if !found {
		return stats, fmt.Errorf("%s: %w", tool, ErrNoToolCall)
	}

	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return stats, fmt.Errorf("%s: decode arguments: %w", tool, err)
	}
	if err := schema.VisitJSON(args); err != nil {
		return stats, fmt.Errorf("%s: arguments do not match schema: %w", tool, err)
	}
	if err := mapstructure.Decode(args, out); err != nil {
		return stats, fmt.Errorf("%s: decode arguments: %w", tool, err)
	}
	return stats, nil
}

func (t *Tasks) record(stats *llm.LLMCallStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if stats == nil {
		return
	}
	t.usage.PromptTokens += stats.PromptTokens
	t.usage.CompletionTokens += stats.CompletionTokens
	t.usage.TotalTokens += stats.TotalTokens
	t.usage.CacheReadTokens += stats.CacheReadTokens
	t.usage.TotalDurationMs += stats.TotalDurationMs
}
