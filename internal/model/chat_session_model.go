package model

import (
	"time"
)

type ChatSession struct {
	Id             string     `gorm:"type:varchar(128);primaryKey"`
	CreatedAt      time.Time  `gorm:"not null;autoCreateTime:false"`
	LastActivityAt time.Time  `gorm:"not null;index"`
	Items          []ChatItem `gorm:"foreignKey:ChatSessionId;constraint:OnDelete:CASCADE"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}
