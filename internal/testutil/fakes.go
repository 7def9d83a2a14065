package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"voice-qa-be/internal/dto"
	"voice-qa-be/internal/entity"
	"voice-qa-be/pkg/llm"
	"voice-qa-be/pkg/transcription"

	"github.com/google/uuid"
)

// StubTranscriber is a transcription.Provider driven by Fn. call counts from 1.
type StubTranscriber struct {
	Fn    func(ctx context.Context, call int, audio transcription.Audio) (string, error)
	calls atomic.Int32
}

func (s *StubTranscriber) Transcribe(ctx context.Context, audio transcription.Audio) (string, error) {
	n := int(s.calls.Add(1))
	if s.Fn == nil {
		return "what is a goroutine?", nil
	}
	return s.Fn(ctx, n, audio)
}

func (s *StubTranscriber) Calls() int {
	return int(s.calls.Load())
}

// StubLLM is an llm.LLMProvider driven by Fn that records peak concurrency.
type StubLLM struct {
	Fn        func(ctx context.Context, call int, history []llm.Message) (string, error)
	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

func (s *StubLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	n := int(s.calls.Add(1))
	cur := s.active.Add(1)
	defer s.active.Add(-1)

	for {
		peak := s.maxActive.Load()
		if cur <= peak || s.maxActive.CompareAndSwap(peak, cur) {
			break
		}
	}

	if s.Fn == nil {
		return "answer: " + history[len(history)-1].Content, nil
	}
	return s.Fn(ctx, n, history)
}

func (s *StubLLM) Calls() int {
	return int(s.calls.Load())
}

func (s *StubLLM) MaxActive() int {
	return int(s.maxActive.Load())
}

// BlockUntilDone waits for ctx to end, like a backend that never answers.
func BlockUntilDone(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// RecordingEvents captures every item change and clear.
type RecordingEvents struct {
	mu      sync.Mutex
	items   []entity.ChatItem
	cleared []dto.ClearHistoryResponse
}

func (r *RecordingEvents) ItemChanged(ctx context.Context, item *entity.ChatItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *item)
}

func (r *RecordingEvents) HistoryCleared(ctx context.Context, result *dto.ClearHistoryResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, *result)
}

// Statuses returns the statuses announced for one item, in order.
func (r *RecordingEvents) Statuses(itemId uuid.UUID) []entity.ItemStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []entity.ItemStatus
	for _, item := range r.items {
		if item.Id == itemId {
			out = append(out, item.Status)
		}
	}
	return out
}

func (r *RecordingEvents) Cleared() []dto.ClearHistoryResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dto.ClearHistoryResponse(nil), r.cleared...)
}

// JobQueue stands in for the job publisher. OnPublish, when set, receives each job.
type JobQueue struct {
	Err       error
	OnPublish func(job *dto.PipelineJobMessage)

	mu   sync.Mutex
	jobs []*dto.PipelineJobMessage
}

func (q *JobQueue) PublishJob(ctx context.Context, job *dto.PipelineJobMessage) error {
	if q.Err != nil {
		return q.Err
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	if q.OnPublish != nil {
		q.OnPublish(job)
	}
	return nil
}

func (q *JobQueue) Jobs() []*dto.PipelineJobMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*dto.PipelineJobMessage(nil), q.jobs...)
}
