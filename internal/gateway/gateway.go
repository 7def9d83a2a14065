// Package gateway adapts the transcription and answer backends to the pipeline:
// every call gets a deadline and every failure becomes an apperror.GatewayError.
package gateway

import (
	"context"
	"errors"
	"time"

	"voice-qa-be/internal/pkg/apperror"
	"voice-qa-be/pkg/transcription"
)

const (
	NameTranscription = "transcription"
	NameAnswer        = "answer"
)

type TranscriptionGateway interface {
	Transcribe(ctx context.Context, audio transcription.Audio) (string, error)
}

type AnswerAgentGateway interface {
	Answer(ctx context.Context, question string) (string, error)
}

type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether another attempt at the same call could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, transcription.ErrEmptyTranscript) || errors.Is(err, context.Canceled) {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// call runs fn under timeout and classifies its error.
func call[T any](ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := fn(callCtx)
	if err == nil {
		return res, nil
	}

	var zero T
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return zero, apperror.Timeout(name, err)
	}
	return zero, apperror.Gateway(name, err)
}
