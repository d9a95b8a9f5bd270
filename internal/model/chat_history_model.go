package model

import (
	"time"

	"github.com/google/uuid"
)

type ChatHistory struct {
	Id            uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId        uuid.UUID `gorm:"type:uuid;not null;index"` // Owner; every read is scoped by it
	HistoryName   *string   `gorm:"type:text"`
	MessagesCount int       `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime;index"`

	User *User `gorm:"foreignKey:UserId;references:Id;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

func (ChatHistory) TableName() string {
	return "chat_histories"
}
