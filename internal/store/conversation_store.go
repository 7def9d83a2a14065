package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voice-qa-be/internal/entity"
	"voice-qa-be/internal/pkg/apperror"
	"voice-qa-be/internal/pkg/keylock"
	"voice-qa-be/internal/repository/specification"
	"voice-qa-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

const MaxSessionIdLength = 128

// ConversationStore is the only writer of sessions and items.
type ConversationStore interface {
	CreateItem(ctx context.Context, sessionId string, metadata map[string]interface{}) (*entity.ChatItem, error)
	UpdateItem(ctx context.Context, itemId uuid.UUID, update entity.ItemUpdate) (*entity.ChatItem, error)
	GetItem(ctx context.Context, itemId uuid.UUID) (*entity.ChatItem, error)
	GetItems(ctx context.Context, sessionId string) ([]*entity.ChatItem, error)
	ListSessions(ctx context.Context) ([]*entity.ChatSessionSummary, error)
	ListAllItems(ctx context.Context, filter ItemFilter) ([]*entity.ChatItem, error)
	Clear(ctx context.Context, sessionId string) (int64, error)
	CountItems(ctx context.Context) (int64, error)
}

// ItemFilter narrows ListAllItems. The zero value lists everything.
type ItemFilter struct {
	Status entity.ItemStatus
	Limit  int
	Offset int
}

type conversationStore struct {
	uowFactory unitofwork.RepositoryFactory
	locks      *keylock.KeyLock
	now        func() time.Time
}

func NewConversationStore(uowFactory unitofwork.RepositoryFactory) ConversationStore {
	return &conversationStore{
		uowFactory: uowFactory,
		locks:      keylock.New(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ValidateSessionId accepts 1 to 128 printable ASCII characters.
func ValidateSessionId(id string) error {
	if id == "" {
		return apperror.Validation("session_id", "must not be empty")
	}
	if len(id) > MaxSessionIdLength {
		return apperror.Validation("session_id", fmt.Sprintf("must be at most %d characters", MaxSessionIdLength))
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x20 || id[i] > 0x7e {
			return apperror.Validation("session_id", "must be printable ASCII")
		}
	}
	return nil
}

func (s *conversationStore) CreateItem(ctx context.Context, sessionId string, metadata map[string]interface{}) (*entity.ChatItem, error) {
	sessionId = strings.TrimSpace(sessionId)
	if sessionId == "" {
		sessionId = uuid.NewString()
	}
	if err := ValidateSessionId(sessionId); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock("session:" + sessionId)
	defer unlock()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	now := s.now()
	sessionRepo := uow.ChatSessionRepository()
	itemRepo := uow.ChatItemRepository()

	if _, err := sessionRepo.CreateIfAbsent(ctx, &entity.ChatSession{
		Id:             sessionId,
		CreatedAt:      now,
		LastActivityAt: now,
	}); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	// Row lock serializes position allocation across processes.
	session, err := sessionRepo.FindOne(ctx, specification.BySessionID{ID: sessionId}, specification.ForUpdate{})
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if session == nil {
		return nil, apperror.NotFound("session", sessionId)
	}

	maxPosition, err := itemRepo.MaxPosition(ctx, sessionId)
	if err != nil {
		return nil, fmt.Errorf("next position: %w", err)
	}

	item := &entity.ChatItem{
		Id:            uuid.New(),
		ChatSessionId: sessionId,
		Position:      maxPosition + 1,
		Status:        entity.ItemStatusPending,
		Metadata:      copyMetadata(nil, metadata),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := itemRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	if err := sessionRepo.Touch(ctx, sessionId, now); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *conversationStore) UpdateItem(ctx context.Context, itemId uuid.UUID, update entity.ItemUpdate) (*entity.ChatItem, error) {
	unlock := s.locks.Lock("item:" + itemId.String())
	defer unlock()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	itemRepo := uow.ChatItemRepository()
	item, err := itemRepo.FindOne(ctx, specification.ByID{ID: itemId}, specification.ForUpdate{})
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}
	if item == nil {
		return nil, apperror.NotFound("item", itemId.String())
	}

	if err := applyUpdate(item, update); err != nil {
		return nil, err
	}

	now := s.now()
	if now.After(item.UpdatedAt) {
		item.UpdatedAt = now
	}
	if err := itemRepo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	if err := uow.ChatSessionRepository().Touch(ctx, item.ChatSessionId, item.UpdatedAt); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}
	return item, nil
}

// applyUpdate enforces the item state machine and mutates item in place.
func applyUpdate(item *entity.ChatItem, update entity.ItemUpdate) error {
	from := item.Status
	to := from
	if update.Status != nil {
		to = *update.Status
	}

	reject := func(reason string) error {
		return &apperror.TransitionError{
			ItemId: item.Id.String(),
			From:   string(from),
			To:     string(to),
			Reason: reason,
		}
	}

	if from.IsTerminal() {
		return reject("item is already terminal")
	}
	if update.Status != nil && !from.CanTransitionTo(to) {
		return reject("status not reachable")
	}
	if update.Question != nil && item.Question != nil {
		return reject("question already set")
	}
	if update.Answer != nil && to != entity.ItemStatusComplete {
		return reject("answer is only stored on completion")
	}
	if to == entity.ItemStatusComplete && update.Answer == nil {
		return reject("completion requires an answer")
	}
	if update.FailureReason != nil && to != entity.ItemStatusFailed {
		return reject("failure reason is only stored on failure")
	}
	if to == entity.ItemStatusFailed && update.FailureReason == nil {
		return reject("failure requires a reason")
	}

	item.Status = to
	if update.Question != nil {
		item.Question = update.Question
	}
	if update.Answer != nil {
		item.Answer = update.Answer
	}
	if update.FailureReason != nil {
		item.FailureReason = update.FailureReason
	}
	if len(update.Metadata) > 0 {
		item.Metadata = copyMetadata(item.Metadata, update.Metadata)
	}
	return nil
}

func copyMetadata(dst, src map[string]interface{}) map[string]interface{} {
	if len(dst) == 0 && len(src) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (s *conversationStore) GetItem(ctx context.Context, itemId uuid.UUID) (*entity.ChatItem, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	item, err := uow.ChatItemRepository().FindOne(ctx, specification.ByID{ID: itemId})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperror.NotFound("item", itemId.String())
	}
	return item, nil
}

func (s *conversationStore) GetItems(ctx context.Context, sessionId string) ([]*entity.ChatItem, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.ChatItemRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "position"},
	)
}

func (s *conversationStore) ListSessions(ctx context.Context) ([]*entity.ChatSessionSummary, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.ChatSessionRepository().FindAllSummaries(ctx)
}

func (s *conversationStore) ListAllItems(ctx context.Context, filter ItemFilter) ([]*entity.ChatItem, error) {
	specs := []specification.Specification{
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.OrderBy{Field: "position", Desc: true},
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, apperror.Validation("status", fmt.Sprintf("unknown status %q", filter.Status))
		}
		specs = append(specs, specification.Filter("status", string(filter.Status)))
	}
	if filter.Limit > 0 {
		specs = append(specs, specification.Pagination{Limit: filter.Limit, Offset: filter.Offset})
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.ChatItemRepository().FindAll(ctx, specs...)
}

// Clear deletes one session with its items, or everything when sessionId is empty.
// Unknown sessions delete nothing and are not an error.
func (s *conversationStore) Clear(ctx context.Context, sessionId string) (int64, error) {
	if sessionId != "" {
		unlock := s.locks.Lock("session:" + sessionId)
		defer unlock()
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return 0, err
	}
	defer uow.Rollback()

	var (
		deleted int64
		err     error
	)
	if sessionId == "" {
		if deleted, err = uow.ChatItemRepository().DeleteAll(ctx); err != nil {
			return 0, fmt.Errorf("delete items: %w", err)
		}
		if err = uow.ChatSessionRepository().DeleteAll(ctx); err != nil {
			return 0, fmt.Errorf("delete sessions: %w", err)
		}
	} else {
		if deleted, err = uow.ChatItemRepository().DeleteByChatSessionId(ctx, sessionId); err != nil {
			return 0, fmt.Errorf("delete items: %w", err)
		}
		if err = uow.ChatSessionRepository().Delete(ctx, sessionId); err != nil {
			return 0, fmt.Errorf("delete session: %w", err)
		}
	}

	if err := uow.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *conversationStore) CountItems(ctx context.Context) (int64, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.ChatItemRepository().Count(ctx)
}
