package unitofwork

import (
	"context"

	"voice-qa-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ChatSessionRepository() contract.ChatSessionRepository
	ChatItemRepository() contract.ChatItemRepository
}
