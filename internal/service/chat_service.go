package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"voice-qa-be/internal/dto"
	"voice-qa-be/internal/entity"
	"voice-qa-be/internal/pkg/apperror"
	"voice-qa-be/internal/pkg/logger"
	"voice-qa-be/internal/repository/memory"
	"voice-qa-be/internal/store"
	"voice-qa-be/pkg/transcription"

	"github.com/google/uuid"
)

const chatModule = "CHAT"

// SubmitAudioInput is a decoded submission from either the JSON or the multipart form.
type SubmitAudioInput struct {
	SessionId      string
	Audio          []byte
	MimeType       string
	IdempotencyKey string
}

type IChatService interface {
	Submit(ctx context.Context, input *SubmitAudioInput) (*dto.RecordResponse, error)
	GetSession(ctx context.Context, sessionId string) ([]*dto.ChatItemResponse, error)
	ListAll(ctx context.Context, query *dto.ListItemsQuery) ([]*dto.ChatItemResponse, error)
	ListSessions(ctx context.Context) ([]*dto.SessionSummaryResponse, error)
	ClearHistory(ctx context.Context, sessionId string) (*dto.ClearHistoryResponse, error)
	QueryStatus(ctx context.Context, sessionId string) (*dto.QueryStatusResponse, error)
	AnswerStatus(ctx context.Context, sessionId string) (*dto.AnswerStatusResponse, error)
	Health(ctx context.Context) *dto.HealthResponse
}

type chatService struct {
	store         store.ConversationStore
	coordinator   IPipelineCoordinator
	events        IItemEventService
	idempotency   *memory.IdempotencyRepository
	maxAudioBytes int
	logger        logger.ILogger
}

func NewChatService(
	conversationStore store.ConversationStore,
	coordinator IPipelineCoordinator,
	events IItemEventService,
	idempotency *memory.IdempotencyRepository,
	maxAudioBytes int,
	log logger.ILogger,
) IChatService {
	return &chatService{
		store:         conversationStore,
		coordinator:   coordinator,
		events:        events,
		idempotency:   idempotency,
		maxAudioBytes: maxAudioBytes,
		logger:        log,
	}
}

// DecodeAudioData accepts raw base64 or a data URL ("data:audio/webm;base64,...").
// The mime type found in a data URL is returned, otherwise "".
func DecodeAudioData(encoded string) ([]byte, string, error) {
	encoded = strings.TrimSpace(encoded)
	mimeType := ""

	if strings.HasPrefix(encoded, "data:") {
		header, payload, ok := strings.Cut(encoded, ",")
		if !ok {
			return nil, "", apperror.Validation("audio_data", "malformed data URL")
		}
		if !strings.HasSuffix(header, ";base64") {
			return nil, "", apperror.Validation("audio_data", "data URL must be base64 encoded")
		}
		mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		encoded = payload
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// some recorders emit unpadded or URL-safe base64
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			if data, err = base64.URLEncoding.DecodeString(encoded); err != nil {
				return nil, "", apperror.Validation("audio_data", "is not valid base64")
			}
		}
	}
	return data, mimeType, nil
}

func (s *chatService) validateAudio(input *SubmitAudioInput) error {
	if len(input.Audio) == 0 {
		return apperror.Validation("audio_data", "is empty")
	}
	if s.maxAudioBytes > 0 && len(input.Audio) > s.maxAudioBytes {
		return apperror.Validation("audio_data", fmt.Sprintf("exceeds %d bytes", s.maxAudioBytes))
	}
	if input.SessionId != "" {
		if err := store.ValidateSessionId(input.SessionId); err != nil {
			return err
		}
	}
	return nil
}

func (s *chatService) Submit(ctx context.Context, input *SubmitAudioInput) (*dto.RecordResponse, error) {
	input.SessionId = strings.TrimSpace(input.SessionId)
	if err := s.validateAudio(input); err != nil {
		return nil, err
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if prior, reserved := s.idempotency.Reserve(input.IdempotencyKey); !reserved {
			return s.replay(ctx, input.IdempotencyKey, prior)
		}
	}

	item, err := s.coordinator.Submit(ctx, input.SessionId, transcription.Audio{
		Data:     input.Audio,
		MimeType: input.MimeType,
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			s.idempotency.Release(input.IdempotencyKey)
		}
		return nil, err
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		s.idempotency.Complete(input.IdempotencyKey, item.Id.String())
	}

	s.logger.Info(chatModule, "Submission accepted", map[string]interface{}{
		"session_id":  item.ChatSessionId,
		"item_id":     item.Id.String(),
		"audio_bytes": len(input.Audio),
	})

	return &dto.RecordResponse{
		SessionId: item.ChatSessionId,
		ItemId:    item.Id,
		Status:    string(item.Status),
	}, nil
}

// replay answers a repeated Idempotency-Key with the item the first request created.
func (s *chatService) replay(ctx context.Context, key, prior string) (*dto.RecordResponse, error) {
	if prior == "" {
		return nil, apperror.Validation("Idempotency-Key", "a request with this key is still being processed")
	}
	itemId, err := uuid.Parse(prior)
	if err != nil {
		return nil, fmt.Errorf("corrupt idempotency record for %q: %w", key, err)
	}
	item, err := s.store.GetItem(ctx, itemId)
	if err != nil {
		return nil, err
	}
	return &dto.RecordResponse{
		SessionId: item.ChatSessionId,
		ItemId:    item.Id,
		Status:    string(item.Status),
		Duplicate: true,
	}, nil
}

func toResponses(items []*entity.ChatItem) []*dto.ChatItemResponse {
	out := make([]*dto.ChatItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, ToChatItemResponse(item))
	}
	return out
}

func (s *chatService) GetSession(ctx context.Context, sessionId string) ([]*dto.ChatItemResponse, error) {
	items, err := s.store.GetItems(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	return toResponses(items), nil
}

func (s *chatService) ListAll(ctx context.Context, query *dto.ListItemsQuery) ([]*dto.ChatItemResponse, error) {
	filter := store.ItemFilter{}
	if query != nil {
		filter = store.ItemFilter{
			Status: entity.ItemStatus(query.Status),
			Limit:  query.Limit,
			Offset: query.Offset,
		}
	}
	items, err := s.store.ListAllItems(ctx, filter)
	if err != nil {
		return nil, err
	}
	return toResponses(items), nil
}

func (s *chatService) ListSessions(ctx context.Context) ([]*dto.SessionSummaryResponse, error) {
	summaries, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.SessionSummaryResponse, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, &dto.SessionSummaryResponse{
			SessionId:      summary.Id,
			ItemCount:      summary.ItemCount,
			CreatedAt:      summary.CreatedAt,
			LastActivityAt: summary.LastActivityAt,
		})
	}
	return out, nil
}

// ClearHistory deletes one session, or all history when sessionId is empty.
func (s *chatService) ClearHistory(ctx context.Context, sessionId string) (*dto.ClearHistoryResponse, error) {
	sessionId = strings.TrimSpace(sessionId)

	before, err := s.store.CountItems(ctx)
	if err != nil {
		return nil, err
	}
	deleted, err := s.store.Clear(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	after, err := s.store.CountItems(ctx)
	if err != nil {
		return nil, err
	}

	result := &dto.ClearHistoryResponse{
		SessionId:    sessionId,
		DeletedCount: deleted,
		BeforeCount:  before,
		AfterCount:   after,
	}

	s.logger.Info(chatModule, "History cleared", map[string]interface{}{
		"session_id":    sessionId,
		"deleted_count": deleted,
	})
	s.events.HistoryCleared(ctx, result)
	return result, nil
}

func (s *chatService) latestItem(ctx context.Context, sessionId string) (*entity.ChatItem, error) {
	items, err := s.store.GetItems(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[len(items)-1], nil
}

func (s *chatService) QueryStatus(ctx context.Context, sessionId string) (*dto.QueryStatusResponse, error) {
	item, err := s.latestItem(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	resp := &dto.QueryStatusResponse{SessionId: sessionId, Status: "empty"}
	if item == nil {
		return resp, nil
	}
	resp.ItemId = &item.Id
	resp.Status = string(item.Status)
	resp.Question = item.Question
	resp.HasQuery = item.Question != nil
	return resp, nil
}

func (s *chatService) AnswerStatus(ctx context.Context, sessionId string) (*dto.AnswerStatusResponse, error) {
	item, err := s.latestItem(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	resp := &dto.AnswerStatusResponse{SessionId: sessionId, Status: "empty"}
	if item == nil {
		return resp, nil
	}
	resp.ItemId = &item.Id
	resp.Status = string(item.Status)
	resp.Question = item.Question
	resp.Answer = item.Answer
	resp.FailureReason = item.FailureReason
	resp.HasAnswer = item.Answer != nil
	resp.IsProcessing = !item.Status.IsTerminal()
	return resp, nil
}

func (s *chatService) Health(ctx context.Context) *dto.HealthResponse {
	return &dto.HealthResponse{
		Status:            "ok",
		InFlightPipelines: s.coordinator.InFlight(),
	}
}
