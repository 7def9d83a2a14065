package gateway

import (
	"context"
	"time"

	"voice-qa-be/pkg/transcription"
)

type transcriptionGateway struct {
	provider transcription.Provider
	timeout  time.Duration
}

func NewTranscriptionGateway(provider transcription.Provider, timeout time.Duration) TranscriptionGateway {
	return &transcriptionGateway{provider: provider, timeout: timeout}
}

func (g *transcriptionGateway) Transcribe(ctx context.Context, audio transcription.Audio) (string, error) {
	return call(ctx, NameTranscription, g.timeout, func(ctx context.Context) (string, error) {
		return g.provider.Transcribe(ctx, audio)
	})
}
