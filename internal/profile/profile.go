package profile

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/repurpose/ai/core/llm"
)

// Profile is the LLM configuration of a repurposing run.
type Profile struct {
	// Unified LLM configuration (OpenAI-compatible protocol, plus anthropic)
	LLMProvider string // Provider identifier: openai, deepseek, zai, siliconflow, dashscope, openrouter, ollama, anthropic
	LLMAPIKey   string
	LLMBaseURL  string // optional, has default per provider
	LLMModel    string
	LLMTimeout  int // request timeout in seconds (default: 120)
}

const defaultProvider = "openai"

// Provider default configurations for LLM.
// Used when LLM_BASE_URL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"zai": {
		BaseURL: "https://open.bigmodel.cn/api/paas/v4",
		Model:   "glm-4.7",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"dashscope": {
		BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Model:   "qwen-max-latest",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "deepseek/deepseek-chat",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
	"anthropic": {
		Model: "claude-sonnet-4-5",
	},
}

// getEnvOrDefault returns the first non-empty variable among keys, or def.
func getEnvOrDefault(def string, keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return def
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables. The NGU_*
// variables are accepted as fallbacks for an OpenAI-compatible endpoint.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("", "REPURPOSE_LLM_PROVIDER")
	p.LLMAPIKey = getEnvOrDefault("", "REPURPOSE_LLM_API_KEY", "NGU_API_KEY")
	p.LLMBaseURL = getEnvOrDefault("", "REPURPOSE_LLM_BASE_URL", "NGU_BASE_URL")
	p.LLMModel = getEnvOrDefault("", "REPURPOSE_LLM_MODEL", "NGU_MODEL")
	p.LLMTimeout = getEnvOrDefaultInt("REPURPOSE_LLM_TIMEOUT_SECONDS", 120)
}

// ApplyDefaults fills the provider, base URL and model from the provider
// table. An unknown provider with an explicit base URL is treated as a
// generic OpenAI-compatible endpoint.
func (p *Profile) ApplyDefaults() {
	p.LLMProvider = strings.ToLower(strings.TrimSpace(p.LLMProvider))
	if p.LLMProvider == "" {
		p.LLMProvider = defaultProvider
	}

	defaults, known := llmProviderDefaults[p.LLMProvider]
	if !known {
		if p.LLMBaseURL == "" {
			slog.Warn("Unknown LLM provider, using default", "provider", p.LLMProvider, "default", defaultProvider)
			p.LLMProvider = defaultProvider
			defaults = llmProviderDefaults[defaultProvider]
		}
	}
	if p.LLMBaseURL == "" {
		p.LLMBaseURL = defaults.BaseURL
	}
	if p.LLMModel == "" {
		p.LLMModel = defaults.Model
	}
	if p.LLMTimeout <= 0 {
		p.LLMTimeout = 120
	}
}

// Validate checks that the profile can build a completion client.
func (p *Profile) Validate() error {
	if p.LLMProvider == "" {
		return errors.New("llm provider is required")
	}
	if p.LLMModel == "" {
		return errors.Errorf("llm model is required for provider %s", p.LLMProvider)
	}
	if p.LLMAPIKey == "" && p.LLMProvider != "ollama" {
		return errors.Errorf("llm api key is required for provider %s (set REPURPOSE_LLM_API_KEY or NGU_API_KEY)", p.LLMProvider)
	}
	return nil
}

// LLMConfig converts the profile into a completion client configuration.
func (p *Profile) LLMConfig() *llm.Config {
	return &llm.Config{
		Provider: p.LLMProvider,
		Model:    p.LLMModel,
		APIKey:   p.LLMAPIKey,
		BaseURL:  p.LLMBaseURL,
		Timeout:  p.LLMTimeout,
	}
}
