package mapper

import (
	"voice-qa-be/internal/entity"
	"voice-qa-be/internal/model"

	"gorm.io/datatypes"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Session Mappers

func (m *ChatMapper) ChatSessionToEntity(s *model.ChatSession) *entity.ChatSession {
	if s == nil {
		return nil
	}

	return &entity.ChatSession{
		Id:             s.Id,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
	}
}

func (m *ChatMapper) ChatSessionToModel(s *entity.ChatSession) *model.ChatSession {
	if s == nil {
		return nil
	}

	return &model.ChatSession{
		Id:             s.Id,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
	}
}

// Item Mappers

func (m *ChatMapper) ChatItemToEntity(i *model.ChatItem) *entity.ChatItem {
	if i == nil {
		return nil
	}

	var metadata map[string]interface{}
	if len(i.Metadata) > 0 {
		metadata = make(map[string]interface{}, len(i.Metadata))
		for k, v := range i.Metadata {
			metadata[k] = v
		}
	}

	return &entity.ChatItem{
		Id:            i.Id,
		ChatSessionId: i.ChatSessionId,
		Position:      i.Position,
		Question:      i.Question,
		Answer:        i.Answer,
		Status:        entity.ItemStatus(i.Status),
		FailureReason: i.FailureReason,
		Metadata:      metadata,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

func (m *ChatMapper) ChatItemToModel(i *entity.ChatItem) *model.ChatItem {
	if i == nil {
		return nil
	}

	var metadata datatypes.JSONMap
	if len(i.Metadata) > 0 {
		metadata = datatypes.JSONMap(i.Metadata)
	}

	return &model.ChatItem{
		Id:            i.Id,
		ChatSessionId: i.ChatSessionId,
		Position:      i.Position,
		Question:      i.Question,
		Answer:        i.Answer,
		Status:        string(i.Status),
		FailureReason: i.FailureReason,
		Metadata:      metadata,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

func (m *ChatMapper) ChatItemsToEntities(items []*model.ChatItem) []*entity.ChatItem {
	entities := make([]*entity.ChatItem, len(items))
	for i, item := range items {
		entities[i] = m.ChatItemToEntity(item)
	}
	return entities
}
