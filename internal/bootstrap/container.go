package bootstrap

import (
	"context"
	"io"
	"log"

	"voice-qa-be/internal/config"
	"voice-qa-be/internal/controller"
	"voice-qa-be/internal/gateway"
	"voice-qa-be/internal/handler"
	"voice-qa-be/internal/pkg/logger"
	"voice-qa-be/internal/repository/memory"
	"voice-qa-be/internal/repository/unitofwork"
	"voice-qa-be/internal/service"
	"voice-qa-be/internal/store"
	"voice-qa-be/internal/websocket"
	"voice-qa-be/pkg/llm"
	llmFactory "voice-qa-be/pkg/llm/factory"
	transcriptionFactory "voice-qa-be/pkg/transcription/factory"

	pktNats "voice-qa-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController  controller.IChatController
	RealtimeHandler *handler.RealtimeHandler

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	Coordinator     service.IPipelineCoordinator

	WebSocketHub *websocket.Hub
	Logger       *logger.ZapLogger

	closers []func()
}

// NewContainer wires every dependency. ctx bounds the background loops it starts.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) *Container {
	c := &Container{}

	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.IsProduction())
	c.Logger = sysLogger
	conversationStore := store.NewConversationStore(uowFactory)
	idempotencyRepo := memory.NewIdempotencyRepository(cfg.App.IdempotencyTTL)

	// 2. Job Queue
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermillLogger,
	)
	c.closers = append(c.closers, func() { pubSub.Close() })

	// 3. Backends
	transcriber, err := transcriptionFactory.NewProvider(ctx, transcriptionFactory.Config{
		Provider: cfg.Transcription.Provider,
		BaseURL:  cfg.Transcription.BaseURL,
		APIKey:   cfg.Transcription.APIKey,
		Model:    cfg.Transcription.Model,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize transcription provider: %v", err)
	}
	if closer, ok := transcriber.(io.Closer); ok {
		c.closers = append(c.closers, func() { closer.Close() })
	}
	log.Printf("[INFO] Using Transcription Provider: %s (%s)", cfg.Transcription.Provider, cfg.Transcription.Model)

	llmProvider, err := llmFactory.NewLLMProvider(llmFactory.Config{
		Provider:           cfg.Ai.LLMProvider,
		Model:              cfg.Ai.LLMModel,
		OllamaBaseURL:      cfg.Ai.OllamaBaseURL,
		HuggingFaceAPIKey:  cfg.Ai.HuggingFaceAPIKey,
		HuggingFaceBaseURL: cfg.Ai.HuggingFaceBaseURL,
		AgentServiceURL:    cfg.Ai.AgentServiceURL,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Push Infrastructure
	var eventBus service.EventBus
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			eventBus = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		c.closers = append(c.closers, func() { rdb.Close() })
	}

	wsLogger := logger.NewIsolatedLogger("logs/websocket.log")
	c.WebSocketHub = websocket.NewHub(rdb, wsLogger)
	go c.WebSocketHub.Run(ctx)

	// 5. Services
	eventService := service.NewItemEventService(c.WebSocketHub, eventBus, sysLogger)
	publisherService := service.NewPublisherService(cfg.Pipeline.JobTopic, pubSub)

	c.Coordinator = service.NewPipelineCoordinator(
		conversationStore,
		gateway.NewTranscriptionGateway(transcriber, cfg.Transcription.Timeout),
		gateway.NewAnswerAgentGateway(llmProvider, cfg.Ai.SystemPrompt, cfg.Ai.AnswerTimeout, answerOptions(cfg.Ai)...),
		publisherService,
		eventService,
		sysLogger,
		service.PipelineConfig{
			TranscriptionMaxRetries: cfg.Transcription.MaxRetries,
			AnswerMaxRetries:        cfg.Ai.AnswerMaxRetries,
			AnswerConcurrency:       cfg.Pipeline.AnswerConcurrency,
			RetryInitialInterval:    cfg.Pipeline.RetryInitialInterval,
			RetryMaxInterval:        cfg.Pipeline.RetryMaxInterval,
			RetryMaxElapsed:         cfg.Pipeline.RetryMaxElapsed,
		},
	)
	c.ConsumerService = service.NewConsumerService(pubSub, cfg.Pipeline.JobTopic, c.Coordinator, sysLogger)

	chatService := service.NewChatService(
		conversationStore,
		c.Coordinator,
		eventService,
		idempotencyRepo,
		cfg.App.MaxAudioBytes,
		sysLogger,
	)

	// 6. Controllers
	c.ChatController = controller.NewChatController(chatService)
	c.RealtimeHandler = handler.NewRealtimeHandler(c.WebSocketHub, wsLogger)

	return c
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.Logger.Sync()
}

func answerOptions(cfg config.AIConfig) []llm.Option {
	opts := []llm.Option{llm.WithTemperature(cfg.AnswerTemperature)}
	if cfg.AnswerMaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(cfg.AnswerMaxTokens))
	}
	return opts
}
