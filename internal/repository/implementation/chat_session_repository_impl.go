package implementation

import (
	"context"
	"errors"
	"time"

	"voice-qa-be/internal/entity"
	"voice-qa-be/internal/mapper"
	"voice-qa-be/internal/model"
	"voice-qa-be/internal/repository/contract"
	"voice-qa-be/internal/repository/specification"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatSessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatSessionRepository(db *gorm.DB) contract.ChatSessionRepository {
	return &ChatSessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatSessionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChatSessionRepositoryImpl) CreateIfAbsent(ctx context.Context, session *entity.ChatSession) (bool, error) {
	m := r.mapper.ChatSessionToModel(session)
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(m)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Touch moves last_activity_at forward; it never moves it back.
func (r *ChatSessionRepositoryImpl) Touch(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.ChatSession{}).
		Where("id = ? AND last_activity_at < ?", id, at).
		Update("last_activity_at", at).Error
}

func (r *ChatSessionRepositoryImpl) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ChatSession{}).Error
}

func (r *ChatSessionRepositoryImpl) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&model.ChatSession{}).Error
}

func (r *ChatSessionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatSession, error) {
	var m model.ChatSession
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ChatSessionToEntity(&m), nil
}

type sessionSummaryRow struct {
	Id             string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ItemCount      int64
}

// FindAllSummaries lists sessions with their item counts, most recently active first.
func (r *ChatSessionRepositoryImpl) FindAllSummaries(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatSessionSummary, error) {
	var rows []sessionSummaryRow
	query := r.db.WithContext(ctx).
		Table("chat_sessions").
		Select("chat_sessions.id, chat_sessions.created_at, chat_sessions.last_activity_at, COUNT(chat_items.id) AS item_count").
		Joins("LEFT JOIN chat_items ON chat_items.chat_session_id = chat_sessions.id").
		Group("chat_sessions.id, chat_sessions.created_at, chat_sessions.last_activity_at").
		Order("chat_sessions.last_activity_at DESC, chat_sessions.id ASC")
	query = r.applySpecifications(query, specs...)
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	summaries := make([]*entity.ChatSessionSummary, len(rows))
	for i, row := range rows {
		summaries[i] = &entity.ChatSessionSummary{
			Id:             row.Id,
			ItemCount:      row.ItemCount,
			CreatedAt:      row.CreatedAt,
			LastActivityAt: row.LastActivityAt,
		}
	}
	return summaries, nil
}

func (r *ChatSessionRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.ChatSession{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
