package registry

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"text/template"
)

// PromptTemplate represents a versioned prompt template.
type PromptTemplate struct {
	Name     string
	Version  string
	Template string
	Enabled  bool

	parsed *template.Template
}

// PromptRegistry holds the parsed prompt templates of one run.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]*PromptTemplate
}

// NewPromptRegistry creates an empty prompt registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{prompts: make(map[string]*PromptTemplate)}
}

// RegisterPrompt parses and registers a prompt template.
func (r *PromptRegistry) RegisterPrompt(name string, tpl *PromptTemplate) error {
	if tpl == nil {
		return fmt.Errorf("prompt %s: template is nil", name)
	}
	parsed, err := template.New(name).Option("missingkey=error").Parse(tpl.Template)
	if err != nil {
		return fmt.Errorf("parse prompt %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.prompts[name]; exists {
		return fmt.Errorf("prompt already registered: %s", name)
	}
	cp := *tpl
	cp.Name = name
	cp.parsed = parsed
	r.prompts[name] = &cp
	return nil
}

// GetPrompt retrieves a prompt template by name.
func (r *PromptRegistry) GetPrompt(name string) (*PromptTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prompt, ok := r.prompts[name]
	return prompt, ok
}

// Render executes the named template with data.
func (r *PromptRegistry) Render(name string, data any) (string, error) {
	r.mu.RLock()
	prompt, ok := r.prompts[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("prompt not registered: %s", name)
	}
	if !prompt.Enabled {
		return "", fmt.Errorf("prompt disabled: %s", name)
	}

	var buf bytes.Buffer
	if err := prompt.parsed.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

// ListPrompts returns all registered prompt names, sorted.
func (r *PromptRegistry) ListPrompts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.prompts))
	for name := range r.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
