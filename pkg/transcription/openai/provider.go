// Package openai transcribes through any OpenAI compatible /audio/transcriptions endpoint.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"voice-qa-be/pkg/transcription"

	goopenai "github.com/sashabaranov/go-openai"
)

type Provider struct {
	client *goopenai.Client
	model  string
}

var _ transcription.Provider = &Provider{}

func NewProvider(apiKey, baseURL, model string) *Provider {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{}
	if model == "" {
		model = goopenai.Whisper1
	}
	return &Provider{
		client: goopenai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (p *Provider) Transcribe(ctx context.Context, audio transcription.Audio) (string, error) {
	resp, err := p.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    p.model,
		FilePath: transcription.FileName(audio.MimeType),
		Reader:   bytes.NewReader(audio.Data),
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		if code := statusCode(err); code != 0 {
			return "", &transcription.StatusError{Provider: "openai", StatusCode: code, Err: err}
		}
		return "", fmt.Errorf("openai transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", transcription.ErrEmptyTranscript
	}
	return text, nil
}

func statusCode(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
