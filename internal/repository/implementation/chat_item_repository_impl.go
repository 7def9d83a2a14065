package implementation

import (
	"context"
	"errors"

	"voice-qa-be/internal/entity"
	"voice-qa-be/internal/mapper"
	"voice-qa-be/internal/model"
	"voice-qa-be/internal/repository/contract"
	"voice-qa-be/internal/repository/specification"

	"gorm.io/gorm"
)

type ChatItemRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatItemRepository(db *gorm.DB) contract.ChatItemRepository {
	return &ChatItemRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatItemRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChatItemRepositoryImpl) Create(ctx context.Context, item *entity.ChatItem) error {
	m := r.mapper.ChatItemToModel(item)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*item = *r.mapper.ChatItemToEntity(m)
	return nil
}

func (r *ChatItemRepositoryImpl) Update(ctx context.Context, item *entity.ChatItem) error {
	m := r.mapper.ChatItemToModel(item)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*item = *r.mapper.ChatItemToEntity(m)
	return nil
}

func (r *ChatItemRepositoryImpl) MaxPosition(ctx context.Context, sessionId string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&model.ChatItem{}).
		Where("chat_session_id = ?", sessionId).
		Select("COALESCE(MAX(position), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max, nil
}

func (r *ChatItemRepositoryImpl) DeleteByChatSessionId(ctx context.Context, sessionId string) (int64, error) {
	result := r.db.WithContext(ctx).Where("chat_session_id = ?", sessionId).Delete(&model.ChatItem{})
	return result.RowsAffected, result.Error
}

func (r *ChatItemRepositoryImpl) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&model.ChatItem{})
	return result.RowsAffected, result.Error
}

func (r *ChatItemRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatItem, error) {
	var m model.ChatItem
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ChatItemToEntity(&m), nil
}

func (r *ChatItemRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatItem, error) {
	var models []*model.ChatItem
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ChatItemsToEntities(models), nil
}

func (r *ChatItemRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.ChatItem{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
