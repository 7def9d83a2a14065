package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"voice-qa-be/internal/dto"
	"voice-qa-be/internal/entity"
	"voice-qa-be/internal/gateway"
	"voice-qa-be/internal/pkg/apperror"
	"voice-qa-be/internal/pkg/logger"
	"voice-qa-be/internal/store"
	"voice-qa-be/pkg/transcription"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const pipelineModule = "PIPELINE"

var ErrCoordinatorClosed = errors.New("pipeline coordinator is shut down")

type PipelineConfig struct {
	TranscriptionMaxRetries int
	AnswerMaxRetries        int
	AnswerConcurrency       int
	RetryInitialInterval    time.Duration
	RetryMaxInterval        time.Duration

	// RetryMaxElapsed caps the wall time of one stage including waits for an answer slot.
	// Zero leaves the retry count as the only bound.
	RetryMaxElapsed time.Duration
}

type IPipelineCoordinator interface {
	JobDispatcher
	// Submit creates the pending item and queues its job. It never waits for the pipeline.
	Submit(ctx context.Context, sessionId string, audio transcription.Audio) (*entity.ChatItem, error)
	// Run executes one pipeline to a terminal state on the calling goroutine.
	Run(ctx context.Context, job *dto.PipelineJobMessage)
	InFlight() int
	// FailInterrupted fails non-terminal items that no pipeline in this process owns.
	FailInterrupted(ctx context.Context) (int, error)
	Shutdown(ctx context.Context) error
}

type pipelineCoordinator struct {
	store       store.ConversationStore
	transcriber gateway.TranscriptionGateway
	answerer    gateway.AnswerAgentGateway
	jobs        IPublisherService
	events      IItemEventService
	logger      logger.ILogger
	cfg         PipelineConfig

	answerSlots *semaphore.Weighted
	inFlight    sync.Map // item id -> struct{}
	running     atomic.Int64
	wg          conc.WaitGroup
	closed      atomic.Bool

	baseCtx context.Context
	cancel  context.CancelFunc
	tracer  trace.Tracer
}

func NewPipelineCoordinator(
	conversationStore store.ConversationStore,
	transcriber gateway.TranscriptionGateway,
	answerer gateway.AnswerAgentGateway,
	jobs IPublisherService,
	events IItemEventService,
	log logger.ILogger,
	cfg PipelineConfig,
) IPipelineCoordinator {
	if cfg.AnswerConcurrency <= 0 {
		cfg.AnswerConcurrency = 1
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = backoff.DefaultInitialInterval
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = backoff.DefaultMaxInterval
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &pipelineCoordinator{
		store:       conversationStore,
		transcriber: transcriber,
		answerer:    answerer,
		jobs:        jobs,
		events:      events,
		logger:      log,
		cfg:         cfg,
		answerSlots: semaphore.NewWeighted(int64(cfg.AnswerConcurrency)),
		baseCtx:     baseCtx,
		cancel:      cancel,
		tracer:      otel.Tracer("voice-qa-be/pipeline"),
	}
}

func (c *pipelineCoordinator) Submit(ctx context.Context, sessionId string, audio transcription.Audio) (*entity.ChatItem, error) {
	if c.closed.Load() {
		return nil, ErrCoordinatorClosed
	}

	item, err := c.store.CreateItem(ctx, sessionId, map[string]interface{}{
		"mime_type":   transcription.BaseMimeType(audio.MimeType),
		"audio_bytes": len(audio.Data),
	})
	if err != nil {
		return nil, err
	}
	c.events.ItemChanged(ctx, item)

	job := &dto.PipelineJobMessage{
		ItemId:      item.Id,
		SessionId:   item.ChatSessionId,
		Audio:       audio.Data,
		MimeType:    audio.MimeType,
		SubmittedAt: item.CreatedAt,
	}
	if err := c.jobs.PublishJob(ctx, job); err != nil {
		c.logger.Error(pipelineModule, "Failed to enqueue job", map[string]interface{}{
			"item_id": item.Id.String(),
			"error":   err.Error(),
		})
		if failed := c.fail(ctx, item.Id, fmt.Sprintf("could not enqueue job: %v", err), nil); failed != nil {
			return failed, nil
		}
	}

	return item, nil
}

// Dispatch starts the job in the background. It reports false when the job was dropped.
func (c *pipelineCoordinator) Dispatch(job *dto.PipelineJobMessage) bool {
	if c.closed.Load() {
		c.logger.Warn(pipelineModule, "Dropping job after shutdown", map[string]interface{}{"item_id": job.ItemId.String()})
		return false
	}
	if _, loaded := c.inFlight.LoadOrStore(job.ItemId, struct{}{}); loaded {
		c.logger.Warn(pipelineModule, "Item already in flight, dropping duplicate job", map[string]interface{}{"item_id": job.ItemId.String()})
		return false
	}

	c.running.Add(1)
	c.wg.Go(func() {
		defer c.running.Add(-1)
		defer c.inFlight.Delete(job.ItemId)
		c.execute(c.baseCtx, job)
	})
	return true
}

func (c *pipelineCoordinator) Run(ctx context.Context, job *dto.PipelineJobMessage) {
	if _, loaded := c.inFlight.LoadOrStore(job.ItemId, struct{}{}); loaded {
		c.logger.Warn(pipelineModule, "Item already in flight", map[string]interface{}{"item_id": job.ItemId.String()})
		return
	}
	defer c.inFlight.Delete(job.ItemId)

	c.running.Add(1)
	defer c.running.Add(-1)
	c.execute(ctx, job)
}

func (c *pipelineCoordinator) InFlight() int {
	return int(c.running.Load())
}

// execute recovers a panicking pipeline and fails its item.
func (c *pipelineCoordinator) execute(ctx context.Context, job *dto.PipelineJobMessage) {
	var catcher panics.Catcher
	catcher.Try(func() { c.runPipeline(ctx, job) })

	if recovered := catcher.Recovered(); recovered != nil {
		c.logger.Error(pipelineModule, "Pipeline panicked", map[string]interface{}{
			"item_id": job.ItemId.String(),
			"panic":   recovered.String(),
		})
		c.fail(ctx, job.ItemId, "internal error while processing", nil)
	}
}

func (c *pipelineCoordinator) runPipeline(ctx context.Context, job *dto.PipelineJobMessage) {
	ctx, span := c.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("item.id", job.ItemId.String()),
		attribute.String("session.id", job.SessionId),
	))
	defer span.End()

	started := time.Now()
	c.logger.Info(pipelineModule, "Pipeline started", map[string]interface{}{
		"item_id":    job.ItemId.String(),
		"session_id": job.SessionId,
	})

	if !c.update(ctx, job.ItemId, entity.ItemUpdate{}.WithStatus(entity.ItemStatusTranscribing)) {
		return
	}

	question, attempts, err := c.transcribe(ctx, transcription.Audio{Data: job.Audio, MimeType: job.MimeType})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		c.fail(ctx, job.ItemId, failureReason(ctx, err), map[string]interface{}{"transcription_attempts": attempts})
		return
	}

	if !c.update(ctx, job.ItemId, entity.ItemUpdate{
		Question: &question,
		Metadata: map[string]interface{}{"transcription_attempts": attempts},
	}.WithStatus(entity.ItemStatusAnswering)) {
		return
	}

	answer, attempts, err := c.answer(ctx, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "answer failed")
		c.fail(ctx, job.ItemId, failureReason(ctx, err), map[string]interface{}{"answer_attempts": attempts})
		return
	}

	if !c.update(ctx, job.ItemId, entity.ItemUpdate{
		Answer:   &answer,
		Metadata: map[string]interface{}{"answer_attempts": attempts},
	}.WithStatus(entity.ItemStatusComplete)) {
		return
	}

	c.logger.Info(pipelineModule, "Pipeline complete", map[string]interface{}{
		"item_id":     job.ItemId.String(),
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

func (c *pipelineCoordinator) newBackOff() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.cfg.RetryInitialInterval
	expo.MaxInterval = c.cfg.RetryMaxInterval
	return expo
}

// retryOptions bounds a stage by maxRetries extra tries. backoff applies a 15 minute
// elapsed cap unless told otherwise, so the cap is always set explicitly.
func (c *pipelineCoordinator) retryOptions(maxRetries int) []backoff.RetryOption {
	return []backoff.RetryOption{
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(maxRetries + 1)),
		backoff.WithMaxElapsedTime(c.cfg.RetryMaxElapsed),
	}
}

func (c *pipelineCoordinator) logBudgetExhausted(stage string, attempts, maxRetries int, err error) {
	if err == nil || attempts > maxRetries || !gateway.IsRetryable(err) || c.cfg.RetryMaxElapsed <= 0 {
		return
	}
	c.logger.Warn(pipelineModule, "Retry time budget exhausted before the retry count", map[string]interface{}{
		"stage":       stage,
		"attempts":    attempts,
		"max_retries": maxRetries,
		"max_elapsed": c.cfg.RetryMaxElapsed.String(),
	})
}

func (c *pipelineCoordinator) transcribe(ctx context.Context, audio transcription.Audio) (string, int, error) {
	ctx, span := c.tracer.Start(ctx, "pipeline.transcribe")
	defer span.End()

	attempts := 0
	text, err := backoff.Retry(ctx, func() (string, error) {
		attempts++
		text, err := c.transcriber.Transcribe(ctx, audio)
		if err != nil {
			return "", c.classify("transcription", attempts, err)
		}
		return text, nil
	}, c.retryOptions(c.cfg.TranscriptionMaxRetries)...)

	c.logBudgetExhausted("transcription", attempts, c.cfg.TranscriptionMaxRetries, err)
	span.SetAttributes(attribute.Int("attempts", attempts))
	return text, attempts, err
}

// answer holds an admission slot only while a call is outstanding, not across backoff sleeps.
func (c *pipelineCoordinator) answer(ctx context.Context, question string) (string, int, error) {
	ctx, span := c.tracer.Start(ctx, "pipeline.answer")
	defer span.End()

	attempts := 0
	text, err := backoff.Retry(ctx, func() (string, error) {
		if err := c.answerSlots.Acquire(ctx, 1); err != nil {
			return "", backoff.Permanent(err)
		}
		defer c.answerSlots.Release(1)

		attempts++
		text, err := c.answerer.Answer(ctx, question)
		if err != nil {
			return "", c.classify("answer", attempts, err)
		}
		return text, nil
	}, c.retryOptions(c.cfg.AnswerMaxRetries)...)

	c.logBudgetExhausted("answer", attempts, c.cfg.AnswerMaxRetries, err)
	span.SetAttributes(attribute.Int("attempts", attempts))
	return text, attempts, err
}

func (c *pipelineCoordinator) classify(stage string, attempt int, err error) error {
	details := map[string]interface{}{
		"stage":   stage,
		"attempt": attempt,
		"timeout": apperror.IsTimeout(err),
		"error":   err.Error(),
	}
	if !gateway.IsRetryable(err) {
		c.logger.Warn(pipelineModule, "Gateway call failed permanently", details)
		return backoff.Permanent(err)
	}
	c.logger.Warn(pipelineModule, "Gateway call failed, will retry", details)
	return err
}

// update writes one transition and reports whether the pipeline may continue.
func (c *pipelineCoordinator) update(ctx context.Context, itemId uuid.UUID, upd entity.ItemUpdate) bool {
	item, err := c.store.UpdateItem(ctx, itemId, upd)
	if err != nil {
		c.logStoreError(itemId, err)
		return false
	}
	c.events.ItemChanged(ctx, item)
	return true
}

// fail moves the item to failed. It uses a context detached from ctx so a
// shutdown still records why the item stopped.
func (c *pipelineCoordinator) fail(ctx context.Context, itemId uuid.UUID, reason string, metadata map[string]interface{}) *entity.ChatItem {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	item, err := c.store.UpdateItem(writeCtx, itemId, entity.ItemUpdate{
		FailureReason: &reason,
		Metadata:      metadata,
	}.WithStatus(entity.ItemStatusFailed))
	if err != nil {
		c.logStoreError(itemId, err)
		return nil
	}

	c.logger.Warn(pipelineModule, "Item failed", map[string]interface{}{
		"item_id": itemId.String(),
		"reason":  reason,
	})
	c.events.ItemChanged(writeCtx, item)
	return item
}

func (c *pipelineCoordinator) logStoreError(itemId uuid.UUID, err error) {
	details := map[string]interface{}{"item_id": itemId.String(), "error": err.Error()}
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		c.logger.Warn(pipelineModule, "Item disappeared mid-pipeline, stopping", details)
	case errors.Is(err, apperror.ErrInvalidTransition):
		c.logger.Error(pipelineModule, "Rejected state transition, stopping", details)
	default:
		c.logger.Error(pipelineModule, "Store write failed, stopping", details)
	}
}

func (c *pipelineCoordinator) FailInterrupted(ctx context.Context) (int, error) {
	failed := 0
	for _, status := range []entity.ItemStatus{
		entity.ItemStatusPending,
		entity.ItemStatusTranscribing,
		entity.ItemStatusAnswering,
	} {
		items, err := c.store.ListAllItems(ctx, store.ItemFilter{Status: status})
		if err != nil {
			return failed, err
		}
		for _, item := range items {
			if _, running := c.inFlight.Load(item.Id); running {
				continue
			}
			if c.fail(ctx, item.Id, "processing interrupted by restart", nil) != nil {
				failed++
			}
		}
	}
	return failed, nil
}

func failureReason(ctx context.Context, err error) string {
	if ctx.Err() != nil && !apperror.IsTimeout(err) {
		return "processing interrupted by shutdown"
	}
	return err.Error()
}

// Shutdown stops accepting jobs and waits for running pipelines until ctx expires,
// then cancels the rest. Cancelled items are marked failed.
func (c *pipelineCoordinator) Shutdown(ctx context.Context) error {
	c.closed.Store(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if recovered := c.wg.WaitAndRecover(); recovered != nil {
			c.logger.Error(pipelineModule, "Pipeline panic escaped", map[string]interface{}{"panic": recovered.String()})
		}
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.logger.Warn(pipelineModule, "Shutdown deadline reached, cancelling pipelines", map[string]interface{}{
			"in_flight": c.InFlight(),
		})
		c.cancel()
		<-done
		return ctx.Err()
	}
}
