package factory

import (
	"context"
	"fmt"

	"voice-qa-be/pkg/transcription"
	"voice-qa-be/pkg/transcription/gemini"
	"voice-qa-be/pkg/transcription/openai"
)

type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

func NewProvider(ctx context.Context, cfg Config) (transcription.Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		return openai.NewProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini transcription requires TRANSCRIPTION_API_KEY")
		}
		provider, err := gemini.NewProvider(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unsupported transcription provider: %s", cfg.Provider)
	}
}
