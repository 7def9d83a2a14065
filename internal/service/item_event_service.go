package service

import (
	"context"
	"time"

	"voice-qa-be/internal/dto"
	"voice-qa-be/internal/entity"
	"voice-qa-be/internal/pkg/logger"
	"voice-qa-be/pkg/events"
)

// SessionPusher delivers pushes to websocket clients. Satisfied by *websocket.Hub.
type SessionPusher interface {
	SendToSession(ctx context.Context, sessionID, msgType string, data interface{})
	Broadcast(ctx context.Context, msgType string, data interface{})
}

// EventBus is a durable event stream. Satisfied by *nats.Publisher.
type EventBus interface {
	Publish(ctx context.Context, event events.Event) error
}

type IItemEventService interface {
	ItemChanged(ctx context.Context, item *entity.ChatItem)
	HistoryCleared(ctx context.Context, result *dto.ClearHistoryResponse)
}

type itemEventService struct {
	pusher SessionPusher
	bus    EventBus
	logger logger.ILogger
}

// NewItemEventService fans item changes out to websocket clients and the event bus. Either may be nil.
func NewItemEventService(pusher SessionPusher, bus EventBus, log logger.ILogger) IItemEventService {
	return &itemEventService{pusher: pusher, bus: bus, logger: log}
}

func (s *itemEventService) ItemChanged(ctx context.Context, item *entity.ChatItem) {
	resp := ToChatItemResponse(item)

	if s.pusher != nil {
		s.pusher.SendToSession(ctx, item.ChatSessionId, "item_updated", resp)
	}

	if s.bus != nil {
		data := map[string]interface{}{
			"item_id":    item.Id.String(),
			"session_id": item.ChatSessionId,
			"position":   item.Position,
			"status":     string(item.Status),
		}
		if item.Question != nil {
			data["question"] = *item.Question
		}
		if item.FailureReason != nil {
			data["failure_reason"] = *item.FailureReason
		}
		s.publish(ctx, events.NewChatItemEvent(string(item.Status), data, item.UpdatedAt))
	}
}

func (s *itemEventService) HistoryCleared(ctx context.Context, result *dto.ClearHistoryResponse) {
	if s.pusher != nil {
		if result.SessionId == "" {
			s.pusher.Broadcast(ctx, "history_cleared", result)
		} else {
			s.pusher.SendToSession(ctx, result.SessionId, "history_cleared", result)
		}
	}

	if s.bus != nil {
		s.publish(ctx, events.NewHistoryClearedEvent(map[string]interface{}{
			"session_id":    result.SessionId,
			"deleted_count": result.DeletedCount,
		}, time.Now()))
	}
}

// publish never fails the caller; the stream is best effort.
func (s *itemEventService) publish(ctx context.Context, event events.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := s.bus.Publish(pubCtx, event); err != nil {
		s.logger.Warn("EVENTS", "Failed to publish event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
	}
}

func ToChatItemResponse(item *entity.ChatItem) *dto.ChatItemResponse {
	return &dto.ChatItemResponse{
		Id:            item.Id,
		SessionId:     item.ChatSessionId,
		Position:      item.Position,
		Question:      item.Question,
		Answer:        item.Answer,
		Status:        string(item.Status),
		FailureReason: item.FailureReason,
		Metadata:      item.Metadata,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
	}
}
