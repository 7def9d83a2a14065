package contract

import (
	"context"
	"time"

	"voice-qa-be/internal/entity"
	"voice-qa-be/internal/repository/specification"
)

type ChatSessionRepository interface {
	// CreateIfAbsent inserts the session unless one with the same id exists; created reports which happened.
	CreateIfAbsent(ctx context.Context, session *entity.ChatSession) (created bool, err error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatSession, error)
	FindAllSummaries(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatSessionSummary, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
