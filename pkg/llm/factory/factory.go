package factory

import (
	"fmt"

	"voice-qa-be/pkg/llm"
	"voice-qa-be/pkg/llm/agent"
	"voice-qa-be/pkg/llm/huggingface"
	"voice-qa-be/pkg/llm/ollama"
)

type Config struct {
	Provider           string
	Model              string
	OllamaBaseURL      string
	HuggingFaceAPIKey  string
	HuggingFaceBaseURL string
	AgentServiceURL    string
}

func NewLLMProvider(cfg Config) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.OllamaBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, cfg.Model), nil
	case "huggingface":
		if cfg.HuggingFaceAPIKey == "" {
			return nil, fmt.Errorf("huggingface provider requires HUGGINGFACE_API_KEY")
		}
		return huggingface.NewHuggingFaceProvider(cfg.HuggingFaceAPIKey, cfg.HuggingFaceBaseURL, cfg.Model), nil
	case "agent":
		if cfg.AgentServiceURL == "" {
			return nil, fmt.Errorf("agent provider requires AGENT_SERVICE_URL")
		}
		return agent.NewAgentProvider(cfg.AgentServiceURL), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
