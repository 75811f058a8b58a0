package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mitchellh/mapstructure"

	"github.com/hrygo/repurpose/ai/agent/registry"
)

// RegisterContentTools registers the four content tools and the finish tool
// on reg, in that order.
func RegisterContentTools(reg *registry.ToolRegistry, tasks *Tasks) error {
	tools := []struct {
		name     string
		schema   *openapi3.Schema
		handler  registry.Handler
		category registry.ToolCategory
	}{
		{ToolExtractKeyPoints, extractKeyPointsInputSchema(), tasks.extractKeyPointsTool, registry.CategoryContent},
		{ToolGenerateSummary, generateSummaryInputSchema(), tasks.generateSummaryTool, registry.CategoryContent},
		{ToolCreateSocialPosts, createSocialPostsInputSchema(), tasks.createSocialPostsTool, registry.CategoryContent},
		{ToolCreateNewsletter, createNewsletterInputSchema(), tasks.createNewsletterTool, registry.CategoryContent},
		{ToolFinish, finishInputSchema(), finishTool, registry.CategoryControl},
	}

	for _, tool := range tools {
		if err := reg.RegisterWithMetadata(tool.name, tool.schema, tool.handler, registry.ToolMetadata{Category: tool.category}); err != nil {
			return err
		}
	}
	return nil
}

// toolArgs is the union of the agent tool inputs.
type toolArgs struct {
	KeyPoints []string `mapstructure:"key_points"`
	Summary   string   `mapstructure:"summary"`
}

func decodeArgs(args map[string]any) (toolArgs, error) {
	var out toolArgs
	if err := mapstructure.Decode(args, &out); err != nil {
		return out, fmt.Errorf("decode arguments: %w", err)
	}
	return out, nil
}

// keyPointsOrExtract returns the given key points, extracting them from the
// post when the agent did not pass any.
func (t *Tasks) keyPointsOrExtract(ctx context.Context, tool string, given []string) ([]string, error) {
	if len(given) > 0 {
		return given, nil
	}
	t.logger.Warn("key_points not provided, extracting again", "tool", tool)
	points, _, err := t.ExtractKeyPoints(ctx)
	return points, err
}

func (t *Tasks) extractKeyPointsTool(ctx context.Context, _ map[string]any) (string, error) {
	points, _, err := t.ExtractKeyPoints(ctx)
	if err != nil {
		return "", err
	}
	return marshal(map[string]any{"key_points": points})
}

func (t *Tasks) generateSummaryTool(ctx context.Context, raw map[string]any) (string, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return "", err
	}
	points, err := t.keyPointsOrExtract(ctx, ToolGenerateSummary, args.KeyPoints)
	if err != nil {
		return "", err
	}
	summary, _, err := t.GenerateSummary(ctx, points)
	if err != nil {
		return "", err
	}
	return marshal(map[string]any{"summary": summary})
}

func (t *Tasks) createSocialPostsTool(ctx context.Context, raw map[string]any) (string, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return "", err
	}
	points, err := t.keyPointsOrExtract(ctx, ToolCreateSocialPosts, args.KeyPoints)
	if err != nil {
		return "", err
	}
	posts, _, err := t.CreateSocialPosts(ctx, points)
	if err != nil {
		return "", err
	}
	return marshal(posts)
}

func (t *Tasks) createNewsletterTool(ctx context.Context, raw map[string]any) (string, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return "", err
	}
	points, err := t.keyPointsOrExtract(ctx, ToolCreateNewsletter, args.KeyPoints)
	if err != nil {
		return "", err
	}
	summary := args.Summary
	if summary == "" {
		t.logger.Warn("summary missing, regenerating", "tool", ToolCreateNewsletter)
		if summary, _, err = t.GenerateSummary(ctx, points); err != nil {
			return "", err
		}
	}
	email, _, err := t.CreateNewsletter(ctx, summary, points)
	if err != nil {
		return "", err
	}
	return marshal(email)
}

// finishTool echoes the final bundle back as canonical JSON.
func finishTool(_ context.Context, raw map[string]any) (string, error) {
	bundle, err := DecodeBundle(raw)
	if err != nil {
		return "", err
	}
	return marshal(bundle)
}

// DecodeBundle decodes finish arguments into a Bundle.
func DecodeBundle(raw map[string]any) (*Bundle, error) {
	var bundle Bundle
	if err := mapstructure.Decode(raw, &bundle); err != nil {
		return nil, fmt.Errorf("decode final results: %w", err)
	}
	return &bundle, nil
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
