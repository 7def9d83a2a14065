package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ChatItem struct {
	Id            uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ChatSessionId string            `gorm:"type:varchar(128);not null;uniqueIndex:ux_chat_items_session_position,priority:1"`
	Position      int               `gorm:"not null;uniqueIndex:ux_chat_items_session_position,priority:2"`
	Question      *string           `gorm:"type:text"`
	Answer        *string           `gorm:"type:text"`
	Status        string            `gorm:"type:varchar(20);not null;index"`
	FailureReason *string           `gorm:"type:text"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt     time.Time         `gorm:"not null;index;autoCreateTime:false"`
	UpdatedAt     time.Time         `gorm:"not null;autoUpdateTime:false"`
}

func (ChatItem) TableName() string {
	return "chat_items"
}
