// Package gemini transcribes inline audio with a Gemini multimodal model.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"voice-qa-be/pkg/transcription"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const systemPrompt = `Transcribe the spoken question in this recording as accurately as possible, with good grammar and punctuation.
Return only the transcript. If nothing intelligible is said, return an empty response.`

type Provider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

var _ transcription.Provider = &Provider{}

func NewProvider(ctx context.Context, apiKey, modelName string, opts ...option.ClientOption) (*Provider, error) {
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.GenerationConfig.SetTemperature(0.1)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	return &Provider{client: client, model: model}, nil
}

func (p *Provider) Transcribe(ctx context.Context, audio transcription.Audio) (string, error) {
	resp, err := p.model.GenerateContent(ctx,
		genai.Blob{MIMEType: transcription.BaseMimeType(audio.MimeType), Data: audio.Data},
		genai.Text("Transcribe this audio."),
	)
	if err != nil {
		return "", fmt.Errorf("gemini transcription: %w", err)
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", transcription.ErrEmptyTranscript
	}
	return text, nil
}

func (p *Provider) Close() error {
	return p.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}
