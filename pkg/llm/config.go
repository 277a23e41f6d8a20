package llm

import (
	"github.com/jqb69/darkseek/pkg/config"
)

// ModelConfig describes one hosted text-generation endpoint. EndpointURL
// is the base inference URL; the client appends /generate_stream for
// token streaming and /generate for full responses.
type ModelConfig struct {
	RepoID            string
	EndpointURL       string
	MaxNewTokens      int
	Temperature       float64
	RepetitionPenalty float64
}

// Config holds the model registry and shared credentials.
type Config struct {
	APIToken     string
	DefaultModel string
	Models       map[string]ModelConfig
}

// LoadConfig loads the model registry from the environment. The roster
// mirrors the hosted deployments; endpoint URLs are overridable per model.
func LoadConfig() Config {
	return Config{
		APIToken:     config.GetEnv("LLM_API_TOKEN", config.GetEnv("HUGGINGFACEHUB_API_TOKEN", "")),
		DefaultModel: config.GetEnv("DEFAULT_LLM", "gemma_flash_2.0"),
		Models: map[string]ModelConfig{
			"gemma_flash_2.0": {
				RepoID:            "google/gemma-1.1-2b-it",
				EndpointURL:       config.GetEnv("GEMMA_TGI_URL", ""),
				MaxNewTokens:      512,
				Temperature:       0.7,
				RepetitionPenalty: 1.2,
			},
			"deepseek_r1_llm": {
				RepoID:       "deepseek-ai/deepseek-coder-1.3b-instruct",
				EndpointURL:  config.GetEnv("DEEPSEEK_TGI_URL", ""),
				MaxNewTokens: 512,
				Temperature:  0.6,
			},
			"qwen_2.5_max": {
				RepoID:       "Qwen/Qwen1.5-72B-Chat",
				EndpointURL:  config.GetEnv("QWEN_TGI_URL", ""),
				MaxNewTokens: 512,
				Temperature:  0.8,
			},
		},
	}
}

// ModelNames returns the configured model names.
func (c Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for name := range c.Models {
		names = append(names, name)
	}
	return names
}
