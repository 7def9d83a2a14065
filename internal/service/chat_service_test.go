package service

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"voice-qa-be/internal/dto"
	"voice-qa-be/internal/entity"
	"voice-qa-be/internal/pkg/apperror"
	"voice-qa-be/internal/pkg/logger"
	"voice-qa-be/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChatService(t *testing.T) (IChatService, *pipelineFixture) {
	t.Helper()
	f := newPipelineFixture(t, fixtureOptions{cfg: PipelineConfig{AnswerConcurrency: 2}})
	svc := NewChatService(f.store, f.coordinator, f.events, memory.NewIdempotencyRepository(time.Minute), 64, logger.NewNopLogger())
	return svc, f
}

func TestDecodeAudioData(t *testing.T) {
	raw := []byte("fake-webm-bytes!")

	tests := []struct {
		name     string
		input    string
		wantMime string
		wantErr  bool
	}{
		{"plain base64", base64.StdEncoding.EncodeToString(raw), "", false},
		{"unpadded base64", base64.RawStdEncoding.EncodeToString(raw[:5]), "", false},
		{"data url", "data:audio/webm;codecs=opus;base64," + base64.StdEncoding.EncodeToString(raw), "audio/webm;codecs=opus", false},
		{"data url without base64 marker", "data:audio/webm,abc", "", true},
		{"data url without payload", "data:audio/webm;base64", "", true},
		{"garbage", "not base64 at all!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, mime, err := DecodeAudioData(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, data)
			assert.Equal(t, tt.wantMime, mime)
		})
	}
}

func TestChatServiceSubmitValidation(t *testing.T) {
	ctx := context.Background()
	svc, f := newTestChatService(t)

	tests := []struct {
		name  string
		input *SubmitAudioInput
	}{
		{"empty audio", &SubmitAudioInput{SessionId: "s1"}},
		{"oversized audio", &SubmitAudioInput{Audio: make([]byte, 65)}},
		{"non printable session", &SubmitAudioInput{SessionId: "café", Audio: []byte("x")}},
		{"session too long", &SubmitAudioInput{SessionId: strings.Repeat("a", 129), Audio: []byte("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.input)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}

	sessions, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Empty(t, f.queue.Jobs())
}

func TestChatServiceSubmit(t *testing.T) {
	ctx := context.Background()
	svc, f := newTestChatService(t)

	resp, err := svc.Submit(ctx, &SubmitAudioInput{SessionId: "  kiosk-1 ", Audio: []byte("audio"), MimeType: "audio/webm"})
	require.NoError(t, err)
	assert.Equal(t, "kiosk-1", resp.SessionId)
	assert.Equal(t, string(entity.ItemStatusPending), resp.Status)
	assert.False(t, resp.Duplicate)

	f.waitFor(t, resp.ItemId, entity.ItemStatusComplete)

	items, err := svc.GetSession(ctx, "kiosk-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, resp.ItemId, items[0].Id)
	assert.Equal(t, "complete", items[0].Status)
}

func TestChatServiceIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	svc, f := newTestChatService(t)

	first, err := svc.Submit(ctx, &SubmitAudioInput{Audio: []byte("a"), IdempotencyKey: "req-1"})
	require.NoError(t, err)
	second, err := svc.Submit(ctx, &SubmitAudioInput{Audio: []byte("a"), IdempotencyKey: "req-1"})
	require.NoError(t, err)

	assert.Equal(t, first.ItemId, second.ItemId)
	assert.True(t, second.Duplicate)
	assert.Len(t, f.queue.Jobs(), 1)

	third, err := svc.Submit(ctx, &SubmitAudioInput{Audio: []byte("a"), IdempotencyKey: "req-2"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ItemId, third.ItemId)
}

func TestChatServiceStatusQueries(t *testing.T) {
	ctx := context.Background()
	svc, f := newTestChatService(t)

	t.Run("unknown session is empty, not an error", func(t *testing.T) {
		items, err := svc.GetSession(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, items)

		query, err := svc.QueryStatus(ctx, "nobody")
		require.NoError(t, err)
		assert.Equal(t, "empty", query.Status)
		assert.False(t, query.HasQuery)
		assert.Nil(t, query.ItemId)

		answer, err := svc.AnswerStatus(ctx, "nobody")
		require.NoError(t, err)
		assert.Equal(t, "empty", answer.Status)
		assert.False(t, answer.IsProcessing)
	})

	t.Run("reflects the latest item", func(t *testing.T) {
		resp, err := svc.Submit(ctx, &SubmitAudioInput{SessionId: "status", Audio: []byte("a")})
		require.NoError(t, err)
		f.waitFor(t, resp.ItemId, entity.ItemStatusComplete)

		query, err := svc.QueryStatus(ctx, "status")
		require.NoError(t, err)
		assert.True(t, query.HasQuery)
		assert.Equal(t, "what is a goroutine?", *query.Question)

		answer, err := svc.AnswerStatus(ctx, "status")
		require.NoError(t, err)
		assert.True(t, answer.HasAnswer)
		assert.False(t, answer.IsProcessing)
		assert.Equal(t, resp.ItemId, *answer.ItemId)
		assert.Equal(t, "complete", answer.Status)
	})
}

func TestChatServiceListings(t *testing.T) {
	ctx := context.Background()
	svc, f := newTestChatService(t)

	a, err := svc.Submit(ctx, &SubmitAudioInput{SessionId: "a", Audio: []byte("1")})
	require.NoError(t, err)
	b, err := svc.Submit(ctx, &SubmitAudioInput{SessionId: "b", Audio: []byte("2")})
	require.NoError(t, err)
	f.waitFor(t, a.ItemId, entity.ItemStatusComplete)
	f.waitFor(t, b.ItemId, entity.ItemStatusComplete)

	all, err := svc.ListAll(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	complete, err := svc.ListAll(ctx, &dto.ListItemsQuery{Status: "complete", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, complete, 1)

	failed, err := svc.ListAll(ctx, &dto.ListItemsQuery{Status: "failed"})
	require.NoError(t, err)
	assert.Empty(t, failed)

	sessions, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.EqualValues(t, 1, s.ItemCount)
	}
}

func TestChatServiceClearHistory(t *testing.T) {
	ctx := context.Background()
	svc, f := newTestChatService(t)

	for _, session := range []string{"keep", "drop", "drop"} {
		resp, err := svc.Submit(ctx, &SubmitAudioInput{SessionId: session, Audio: []byte("a")})
		require.NoError(t, err)
		f.waitFor(t, resp.ItemId, entity.ItemStatusComplete)
	}

	one, err := svc.ClearHistory(ctx, "drop")
	require.NoError(t, err)
	assert.Equal(t, &dto.ClearHistoryResponse{SessionId: "drop", DeletedCount: 2, BeforeCount: 3, AfterCount: 1}, one)

	all, err := svc.ClearHistory(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, all.DeletedCount)
	assert.EqualValues(t, 0, all.AfterCount)

	cleared := f.events.Cleared()
	require.Len(t, cleared, 2)
	assert.Equal(t, "drop", cleared[0].SessionId)
	assert.Equal(t, "", cleared[1].SessionId)

	assert.Equal(t, "ok", svc.Health(ctx).Status)
}
