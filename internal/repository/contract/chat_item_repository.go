package contract

import (
	"context"

	"voice-qa-be/internal/entity"
	"voice-qa-be/internal/repository/specification"
)

type ChatItemRepository interface {
	Create(ctx context.Context, item *entity.ChatItem) error
	Update(ctx context.Context, item *entity.ChatItem) error
	MaxPosition(ctx context.Context, sessionId string) (int, error)
	DeleteByChatSessionId(ctx context.Context, sessionId string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatItem, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatItem, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
