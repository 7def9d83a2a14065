package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Transcription TranscriptionConfig
	Ai            AIConfig
	Pipeline      PipelineConfig
	Telemetry     TelemetryConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	MaxAudioBytes      int
	IdempotencyTTL     time.Duration
}

type DatabaseConfig struct {
	Connection string
}

type TranscriptionConfig struct {
	Provider   string // "openai" or "gemini"
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type AIConfig struct {
	LLMProvider        string // "ollama", "huggingface" or "agent"
	LLMModel           string
	OllamaBaseURL      string
	HuggingFaceAPIKey  string
	HuggingFaceBaseURL string
	AgentServiceURL    string
	AnswerTimeout      time.Duration
	AnswerMaxRetries   int
	AnswerTemperature  float64
	AnswerMaxTokens    int // 0 keeps the provider default
	SystemPrompt       string
}

type PipelineConfig struct {
	AnswerConcurrency    int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	JobTopic             string
	ShutdownTimeout      time.Duration
	RetryMaxElapsed      time.Duration

	// Fail items a previous process left mid-pipeline. Disable when several instances share the database.
	FailInterruptedOnStart bool
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
}

func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() *Config {
	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			MaxAudioBytes:      getEnvAsInt("MAX_AUDIO_BYTES", 25<<20),
			IdempotencyTTL:     getEnvAsDuration("IDEMPOTENCY_TTL", 10*time.Minute),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Transcription: TranscriptionConfig{
			Provider:   getEnv("TRANSCRIPTION_PROVIDER", "openai"),
			BaseURL:    getEnv("TRANSCRIPTION_BASE_URL", "https://api.openai.com/v1"),
			APIKey:     getEnv("TRANSCRIPTION_API_KEY", ""),
			Model:      getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
			Timeout:    getEnvAsDuration("TRANSCRIPTION_TIMEOUT", 60*time.Second),
			MaxRetries: getEnvAsInt("TRANSCRIPTION_MAX_RETRIES", 3),
		},
		Ai: AIConfig{
			LLMProvider:        getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:           getEnv("LLM_MODEL", "llama3"),
			OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			HuggingFaceAPIKey:  getEnv("HUGGINGFACE_API_KEY", ""),
			HuggingFaceBaseURL: getEnv("HUGGINGFACE_BASE_URL", "https://router.huggingface.co/v1"),
			AgentServiceURL:    getEnv("AGENT_SERVICE_URL", "http://localhost:8000"),
			AnswerTimeout:      getEnvAsDuration("ANSWER_TIMEOUT", 120*time.Second),
			AnswerMaxRetries:   getEnvAsInt("ANSWER_MAX_RETRIES", 2),
			AnswerTemperature:  getEnvAsFloat("ANSWER_TEMPERATURE", 0.3),
			AnswerMaxTokens:    getEnvAsInt("ANSWER_MAX_TOKENS", 0),
			SystemPrompt:       getEnv("ANSWER_SYSTEM_PROMPT", "You are a helpful assistant. Answer the user's spoken question concisely."),
		},
		Pipeline: PipelineConfig{
			AnswerConcurrency:    getEnvAsInt("PIPELINE_ANSWER_CONCURRENCY", 4),
			RetryInitialInterval: getEnvAsDuration("PIPELINE_RETRY_INITIAL_INTERVAL", 500*time.Millisecond),
			RetryMaxInterval:     getEnvAsDuration("PIPELINE_RETRY_MAX_INTERVAL", 10*time.Second),
			JobTopic:             getEnv("PIPELINE_JOB_TOPIC", "voice_qa.pipeline.jobs"),
			ShutdownTimeout:      getEnvAsDuration("PIPELINE_SHUTDOWN_TIMEOUT", 30*time.Second),
			RetryMaxElapsed:      getEnvAsDuration("PIPELINE_RETRY_MAX_ELAPSED", 0),

			FailInterruptedOnStart: getEnvAsBool("PIPELINE_FAIL_INTERRUPTED_ON_START", true),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getEnvAsBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if seconds, err := strconv.ParseFloat(strValue, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
