package gateway

import (
	"context"
	"time"

	"voice-qa-be/pkg/llm"
)

type answerAgentGateway struct {
	provider     llm.LLMProvider
	systemPrompt string
	timeout      time.Duration
	options      []llm.Option
}

// NewAnswerAgentGateway sends every question with options, e.g. llm.WithTemperature.
func NewAnswerAgentGateway(provider llm.LLMProvider, systemPrompt string, timeout time.Duration, options ...llm.Option) AnswerAgentGateway {
	return &answerAgentGateway{
		provider:     provider,
		systemPrompt: systemPrompt,
		timeout:      timeout,
		options:      options,
	}
}

func (g *answerAgentGateway) Answer(ctx context.Context, question string) (string, error) {
	history := make([]llm.Message, 0, 2)
	if g.systemPrompt != "" {
		history = append(history, llm.Message{Role: "system", Content: g.systemPrompt})
	}
	history = append(history, llm.Message{Role: "user", Content: question})

	return call(ctx, NameAnswer, g.timeout, func(ctx context.Context) (string, error) {
		return g.provider.Chat(ctx, history, g.options...)
	})
}
