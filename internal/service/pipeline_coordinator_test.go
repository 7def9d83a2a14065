package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"voice-qa-be/internal/dto"
	"voice-qa-be/internal/entity"
	"voice-qa-be/internal/gateway"
	"voice-qa-be/internal/pkg/logger"
	"voice-qa-be/internal/repository/unitofwork"
	"voice-qa-be/internal/store"
	"voice-qa-be/internal/testutil"
	"voice-qa-be/pkg/llm"
	"voice-qa-be/pkg/transcription"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	store       store.ConversationStore
	transcriber *testutil.StubTranscriber
	llm         *testutil.StubLLM
	events      *testutil.RecordingEvents
	queue       *testutil.JobQueue
	coordinator IPipelineCoordinator
}

type fixtureOptions struct {
	cfg           PipelineConfig
	answerTimeout time.Duration
}

func newPipelineFixture(t *testing.T, opts fixtureOptions) *pipelineFixture {
	t.Helper()

	if opts.cfg.RetryInitialInterval == 0 {
		opts.cfg.RetryInitialInterval = time.Millisecond
		opts.cfg.RetryMaxInterval = 5 * time.Millisecond
	}
	if opts.answerTimeout == 0 {
		opts.answerTimeout = 2 * time.Second
	}

	f := &pipelineFixture{
		store:       store.NewConversationStore(unitofwork.NewRepositoryFactory(testutil.NewTestDB(t))),
		transcriber: &testutil.StubTranscriber{},
		llm:         &testutil.StubLLM{},
		events:      &testutil.RecordingEvents{},
		queue:       &testutil.JobQueue{},
	}
	f.coordinator = NewPipelineCoordinator(
		f.store,
		gateway.NewTranscriptionGateway(f.transcriber, 2*time.Second),
		gateway.NewAnswerAgentGateway(f.llm, "be brief", opts.answerTimeout),
		f.queue,
		f.events,
		logger.NewNopLogger(),
		opts.cfg,
	)
	f.queue.OnPublish = func(job *dto.PipelineJobMessage) { f.coordinator.Dispatch(job) }

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.coordinator.Shutdown(ctx)
	})
	return f
}

func (f *pipelineFixture) submit(t *testing.T, sessionId string) *entity.ChatItem {
	t.Helper()
	item, err := f.coordinator.Submit(context.Background(), sessionId, transcription.Audio{
		Data:     []byte("RIFF....WAVE"),
		MimeType: "audio/wav",
	})
	require.NoError(t, err)
	return item
}

func (f *pipelineFixture) waitFor(t *testing.T, itemId uuid.UUID, status entity.ItemStatus) *entity.ChatItem {
	t.Helper()
	var item *entity.ChatItem
	require.Eventually(t, func() bool {
		got, err := f.store.GetItem(context.Background(), itemId)
		if err != nil {
			return false
		}
		item = got
		return got.Status == status
	}, 5*time.Second, 10*time.Millisecond, "item never reached %s", status)
	return item
}

func TestPipelineHappyPath(t *testing.T) {
	f := newPipelineFixture(t, fixtureOptions{cfg: PipelineConfig{AnswerConcurrency: 2}})

	submitted := f.submit(t, "")
	assert.Equal(t, entity.ItemStatusPending, submitted.Status)

	item := f.waitFor(t, submitted.Id, entity.ItemStatusComplete)
	require.NotNil(t, item.Question)
	require.NotNil(t, item.Answer)
	assert.Equal(t, "what is a goroutine?", *item.Question)
	assert.Equal(t, "answer: what is a goroutine?", *item.Answer)
	assert.Nil(t, item.FailureReason)
	assert.EqualValues(t, 1, item.Metadata["transcription_attempts"])
	assert.EqualValues(t, 1, item.Metadata["answer_attempts"])
	assert.Equal(t, "audio/wav", item.Metadata["mime_type"])

	assert.Eventually(t, func() bool { return len(f.events.Statuses(item.Id)) == 4 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []entity.ItemStatus{
		entity.ItemStatusPending,
		entity.ItemStatusTranscribing,
		entity.ItemStatusAnswering,
		entity.ItemStatusComplete,
	}, f.events.Statuses(item.Id))
}

func TestPipelineAnswerTimeoutKeepsQuestion(t *testing.T) {
	f := newPipelineFixture(t, fixtureOptions{
		cfg:           PipelineConfig{AnswerMaxRetries: 1},
		answerTimeout: 50 * time.Millisecond,
	})
	f.llm.Fn = func(ctx context.Context, call int, history []llm.Message) (string, error) {
		return testutil.BlockUntilDone(ctx)
	}

	submitted := f.submit(t, "slow-agent")

	item := f.waitFor(t, submitted.Id, entity.ItemStatusFailed)
	require.NotNil(t, item.Question)
	assert.Equal(t, "what is a goroutine?", *item.Question)
	assert.Nil(t, item.Answer)
	require.NotNil(t, item.FailureReason)
	assert.Contains(t, *item.FailureReason, "timed out")
	assert.Equal(t, 2, f.llm.Calls())
	assert.EqualValues(t, 2, item.Metadata["answer_attempts"])
}

func TestPipelineRetries(t *testing.T) {
	t.Run("transient transcription failure recovers", func(t *testing.T) {
		f := newPipelineFixture(t, fixtureOptions{cfg: PipelineConfig{TranscriptionMaxRetries: 2}})
		f.transcriber.Fn = func(ctx context.Context, call int, audio transcription.Audio) (string, error) {
			if call == 1 {
				return "", &transcription.StatusError{Provider: "openai", StatusCode: 503, Err: errors.New("unavailable")}
			}
			return "second try", nil
		}

		item := f.waitFor(t, f.submit(t, "").Id, entity.ItemStatusComplete)
		assert.Equal(t, "second try", *item.Question)
		assert.Equal(t, 2, f.transcriber.Calls())
		assert.EqualValues(t, 2, item.Metadata["transcription_attempts"])
	})

	t.Run("empty transcript is not retried", func(t *testing.T) {
		f := newPipelineFixture(t, fixtureOptions{cfg: PipelineConfig{TranscriptionMaxRetries: 3}})
		f.transcriber.Fn = func(ctx context.Context, call int, audio transcription.Audio) (string, error) {
			return "", transcription.ErrEmptyTranscript
		}

		item := f.waitFor(t, f.submit(t, "").Id, entity.ItemStatusFailed)
		assert.Equal(t, 1, f.transcriber.Calls())
		assert.Nil(t, item.Question)
		require.NotNil(t, item.FailureReason)
		assert.Contains(t, *item.FailureReason, "empty")
		assert.Equal(t, 0, f.llm.Calls())
	})

	t.Run("client error is not retried", func(t *testing.T) {
		f := newPipelineFixture(t, fixtureOptions{cfg: PipelineConfig{AnswerMaxRetries: 3}})
		f.llm.Fn = func(ctx context.Context, call int, history []llm.Message) (string, error) {
			return "", &llm.StatusError{Provider: "agent", StatusCode: 400, Body: "bad request"}
		}

		f.waitFor(t, f.submit(t, "").Id, entity.ItemStatusFailed)
		assert.Equal(t, 1, f.llm.Calls())
	})

	t.Run("retries are bounded", func(t *testing.T) {
		f := newPipelineFixture(t, fixtureOptions{cfg: PipelineConfig{AnswerMaxRetries: 2}})
		f.llm.Fn = func(ctx context.Context, call int, history []llm.Message) (string, error) {
			return "", errors.New("connection reset by peer")
		}

		item := f.waitFor(t, f.submit(t, "").Id, entity.ItemStatusFailed)
		assert.Equal(t, 3, f.llm.Calls())
		require.NotNil(t, item.FailureReason)
		assert.Contains(t, *item.FailureReason, "connection reset by peer")
	})
}

func TestPipelineQueuedAnswerKeepsRetryCount(t *testing.T) {
	// The first item holds the only answer slot while the second one queues behind it.
	setup := func(t *testing.T, maxElapsed time.Duration) (*pipelineFixture, uuid.UUID) {
		f := newPipelineFixture(t, fixtureOptions{cfg: PipelineConfig{
			AnswerConcurrency: 1,
			AnswerMaxRetries:  3,
			RetryMaxElapsed:   maxElapsed,
		}})
		f.llm.Fn = func(ctx context.Context, call int, history []llm.Message) (string, error) {
			switch {
			case call == 1:
				time.Sleep(200 * time.Millisecond)
				return "first", nil
			case call < 4:
				return "", &llm.StatusError{Provider: "agent", StatusCode: 503, Body: "busy"}
			default:
				return "second", nil
			}
		}

		first := f.submit(t, "queued")
		require.Eventually(t, func() bool { return f.llm.Calls() == 1 }, 5*time.Second, 5*time.Millisecond)
		second := f.submit(t, "queued")
		f.waitFor(t, first.Id, entity.ItemStatusComplete)
		return f, second.Id
	}

	t.Run("without a time budget every retry is used", func(t *testing.T) {
		f, id := setup(t, 0)

		item := f.waitFor(t, id, entity.ItemStatusComplete)
		assert.Equal(t, "second", *item.Answer)
		assert.EqualValues(t, 3, item.Metadata["answer_attempts"])
	})

	t.Run("time budget counts the wait for a slot", func(t *testing.T) {
		f, id := setup(t, 50*time.Millisecond)

		item := f.waitFor(t, id, entity.ItemStatusFailed)
		assert.EqualValues(t, 1, item.Metadata["answer_attempts"])
		assert.Equal(t, 2, f.llm.Calls())
	})
}

func TestPipelineSessionOrdering(t *testing.T) {
	f := newPipelineFixture(t, fixtureOptions{cfg: PipelineConfig{AnswerConcurrency: 4}})
	f.transcriber.Fn = func(ctx context.Context, call int, audio transcription.Audio) (string, error) {
		return string(audio.Data), nil
	}

	first, err := f.coordinator.Submit(context.Background(), "ordered", transcription.Audio{Data: []byte("first")})
	require.NoError(t, err)
	second, err := f.coordinator.Submit(context.Background(), "ordered", transcription.Audio{Data: []byte("second")})
	require.NoError(t, err)

	f.waitFor(t, first.Id, entity.ItemStatusComplete)
	f.waitFor(t, second.Id, entity.ItemStatusComplete)

	items, err := f.store.GetItems(context.Background(), "ordered")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", *items[0].Question)
	assert.Equal(t, "second", *items[1].Question)
	assert.Equal(t, []int{1, 2}, []int{items[0].Position, items[1].Position})
}

func TestPipelineAnswerConcurrencyCap(t *testing.T) {
	f := newPipelineFixture(t, fixtureOptions{cfg: PipelineConfig{AnswerConcurrency: 2}})
	f.llm.Fn = func(ctx context.Context, call int, history []llm.Message) (string, error) {
		time.Sleep(40 * time.Millisecond)
		return fmt.Sprintf("answer %d", call), nil
	}

	var ids []uuid.UUID
	for i := 0; i < 6; i++ {
		ids = append(ids, f.submit(t, fmt.Sprintf("session-%d", i)).Id)
	}
	for _, id := range ids {
		f.waitFor(t, id, entity.ItemStatusComplete)
	}

	assert.Equal(t, 6, f.llm.Calls())
	assert.LessOrEqual(t, f.llm.MaxActive(), 2)
	assert.GreaterOrEqual(t, f.llm.MaxActive(), 1)
}

func TestPipelineEnqueueFailureFailsItem(t *testing.T) {
	f := newPipelineFixture(t, fixtureOptions{})
	f.queue.Err = errors.New("queue closed")

	item, err := f.coordinator.Submit(context.Background(), "s1", transcription.Audio{Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, entity.ItemStatusFailed, item.Status)
	require.NotNil(t, item.FailureReason)
	assert.Contains(t, *item.FailureReason, "queue closed")
	assert.Equal(t, 0, f.transcriber.Calls())
}

func TestPipelineDuplicateDispatchDropped(t *testing.T) {
	f := newPipelineFixture(t, fixtureOptions{})
	release := make(chan struct{})
	f.llm.Fn = func(ctx context.Context, call int, history []llm.Message) (string, error) {
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	item, err := f.store.CreateItem(context.Background(), "dup", nil)
	require.NoError(t, err)
	job := &dto.PipelineJobMessage{ItemId: item.Id, SessionId: item.ChatSessionId, Audio: []byte("x")}

	assert.True(t, f.coordinator.Dispatch(job))
	assert.False(t, f.coordinator.Dispatch(job))
	assert.Equal(t, 1, f.coordinator.InFlight())

	close(release)
	f.waitFor(t, item.Id, entity.ItemStatusComplete)
	assert.Eventually(t, func() bool { return f.coordinator.InFlight() == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.transcriber.Calls())
}

func TestPipelineRunOnStaleItemStops(t *testing.T) {
	f := newPipelineFixture(t, fixtureOptions{})

	f.coordinator.Run(context.Background(), &dto.PipelineJobMessage{ItemId: uuid.New(), SessionId: "ghost"})

	assert.Equal(t, 0, f.transcriber.Calls())
	assert.Equal(t, 0, f.coordinator.InFlight())
}

func TestPipelineJobForClaimedItemIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, fixtureOptions{})

	item, err := f.store.CreateItem(ctx, "claimed", nil)
	require.NoError(t, err)
	_, err = f.store.UpdateItem(ctx, item.Id, entity.ItemUpdate{}.WithStatus(entity.ItemStatusTranscribing))
	require.NoError(t, err)

	f.coordinator.Run(ctx, &dto.PipelineJobMessage{ItemId: item.Id, SessionId: item.ChatSessionId, Audio: []byte("x")})

	assert.Equal(t, 0, f.transcriber.Calls())
	assert.Equal(t, 0, f.llm.Calls())
	got, err := f.store.GetItem(ctx, item.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.ItemStatusTranscribing, got.Status)
}

func TestPipelineShutdown(t *testing.T) {
	f := newPipelineFixture(t, fixtureOptions{})
	f.llm.Fn = func(ctx context.Context, call int, history []llm.Message) (string, error) {
		return testutil.BlockUntilDone(ctx)
	}

	submitted := f.submit(t, "shutdown")
	f.waitFor(t, submitted.Id, entity.ItemStatusAnswering)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := f.coordinator.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, f.coordinator.InFlight())

	item, err := f.store.GetItem(context.Background(), submitted.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.ItemStatusFailed, item.Status)
	require.NotNil(t, item.Question)
	require.NotNil(t, item.FailureReason)
	assert.Equal(t, "processing interrupted by shutdown", *item.FailureReason)

	_, err = f.coordinator.Submit(context.Background(), "shutdown", transcription.Audio{Data: []byte("x")})
	assert.ErrorIs(t, err, ErrCoordinatorClosed)
	assert.False(t, f.coordinator.Dispatch(&dto.PipelineJobMessage{ItemId: uuid.New()}))
}

func TestPipelineFailInterrupted(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, fixtureOptions{})

	stuck, err := f.store.CreateItem(ctx, "restart", nil)
	require.NoError(t, err)
	_, err = f.store.UpdateItem(ctx, stuck.Id, entity.ItemUpdate{}.WithStatus(entity.ItemStatusTranscribing))
	require.NoError(t, err)
	waiting, err := f.store.CreateItem(ctx, "restart", nil)
	require.NoError(t, err)

	done := f.waitFor(t, f.submit(t, "finished").Id, entity.ItemStatusComplete)

	n, err := f.coordinator.FailInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []uuid.UUID{stuck.Id, waiting.Id} {
		item, err := f.store.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entity.ItemStatusFailed, item.Status)
		assert.Equal(t, "processing interrupted by restart", *item.FailureReason)
	}

	untouched, err := f.store.GetItem(ctx, done.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.ItemStatusComplete, untouched.Status)
}
