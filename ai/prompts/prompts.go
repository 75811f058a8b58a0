// Package prompts loads the prompt templates used by the workflows.
//
// Defaults are embedded; a YAML file given at runtime overrides them by name.
package prompts

import (
	"embed"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/hrygo/repurpose/ai/agent/registry"
	"github.com/hrygo/repurpose/ai/configloader"
)

//go:embed prompts.yaml
var defaults embed.FS

const defaultFile = "prompts.yaml"

// Prompt names.
const (
	KeyPointsSystem  = "key_points.system"
	KeyPointsUser    = "key_points.user"
	SummarySystem    = "summary.system"
	SummaryUser      = "summary.user"
	SocialSystem     = "social.system"
	SocialUser       = "social.user"
	NewsletterSystem = "newsletter.system"
	NewsletterUser   = "newsletter.user"

	AgentSystem = "agent.system"
	AgentUser   = "agent.user"

	ReflectionSystem = "judge.reflection.system"
	ReflectionUser   = "judge.reflection.user"
	FeedbackSystem   = "judge.feedback.system"
	FeedbackUser     = "judge.feedback.user"
	ReviseSystem     = "revise.system"
	ReviseUser       = "revise.user"

	EvaluatorSystem = "evaluator.system"
	EvaluatorUser   = "evaluator.user"
)

// File is the on-disk prompt file layout.
type File struct {
	Version string           `yaml:"version"`
	Prompts map[string]Entry `yaml:"prompts"`
}

// Entry is one prompt template.
type Entry struct {
	Template string `yaml:"template"`
	Version  string `yaml:"version"`
	Enabled  *bool  `yaml:"enabled"`
}

// Load builds a prompt registry from the embedded defaults, overridden by
// the file at overridePath when it is non-empty.
func Load(overridePath string) (*registry.PromptRegistry, error) {
	merged, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if overridePath != "" {
		var override File
		loader := configloader.NewLoader(filepath.Dir(overridePath)).Strict()
		if err := loader.Load(filepath.Base(overridePath), &override); err != nil {
			return nil, errors.Wrap(err, "failed to load prompt overrides")
		}
		for name, entry := range override.Prompts {
			if _, known := merged.Prompts[name]; !known {
				return nil, errors.Errorf("unknown prompt %q in %s", name, overridePath)
			}
			if entry.Version == "" {
				entry.Version = override.Version
			}
			merged.Prompts[name] = entry
		}
	}

	return build(merged)
}

func loadDefaults() (*File, error) {
	var f File
	if err := configloader.NewFSLoader(defaults).Strict().Load(defaultFile, &f); err != nil {
		return nil, errors.Wrap(err, "failed to load default prompts")
	}
	for name, entry := range f.Prompts {
		if entry.Version == "" {
			entry.Version = f.Version
			f.Prompts[name] = entry
		}
	}
	return &f, nil
}

func build(f *File) (*registry.PromptRegistry, error) {
	names := make([]string, 0, len(f.Prompts))
	for name := range f.Prompts {
		names = append(names, name)
	}
	sort.Strings(names)

	reg := registry.NewPromptRegistry()
	for _, name := range names {
		entry := f.Prompts[name]
		enabled := entry.Enabled == nil || *entry.Enabled
		if err := reg.RegisterPrompt(name, &registry.PromptTemplate{
			Version:  entry.Version,
			Template: entry.Template,
			Enabled:  enabled,
		}); err != nil {
			return nil, errors.Wrapf(err, "invalid prompt %s", name)
		}
	}
	return reg, nil
}
