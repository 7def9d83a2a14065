package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("TRANSCRIPTION_TIMEOUT", "")
	t.Setenv("PIPELINE_ANSWER_CONCURRENCY", "")
	t.Setenv("GO_ENV", "development")
	t.Setenv("PIPELINE_RETRY_MAX_ELAPSED", "")

	cfg := FromEnv()

	assert.Equal(t, 60*time.Second, cfg.Transcription.Timeout)
	assert.Equal(t, 4, cfg.Pipeline.AnswerConcurrency)
	assert.Zero(t, cfg.Pipeline.RetryMaxElapsed)
	assert.False(t, cfg.App.IsProduction())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("ANSWER_TIMEOUT", "45s")
	t.Setenv("TRANSCRIPTION_TIMEOUT", "90")
	t.Setenv("PIPELINE_ANSWER_CONCURRENCY", "2")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("LLM_PROVIDER", "agent")
	t.Setenv("ANSWER_TEMPERATURE", "0.9")
	t.Setenv("PIPELINE_RETRY_MAX_ELAPSED", "5m")

	cfg := FromEnv()

	assert.True(t, cfg.App.IsProduction())
	assert.Equal(t, 45*time.Second, cfg.Ai.AnswerTimeout)
	assert.Equal(t, 90*time.Second, cfg.Transcription.Timeout)
	assert.Equal(t, 2, cfg.Pipeline.AnswerConcurrency)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "agent", cfg.Ai.LLMProvider)
	assert.Equal(t, 0.9, cfg.Ai.AnswerTemperature)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.RetryMaxElapsed)
}

func TestGetEnvAsDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, time.Minute, getEnvAsDuration("SOME_DURATION", time.Minute))
}
