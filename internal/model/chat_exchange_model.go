package model

import (
	"time"

	"github.com/google/uuid"
)

type ChatExchange struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
	HistoryId      uuid.UUID `gorm:"type:uuid;not null;index"`
	UserId         uuid.UUID `gorm:"type:uuid;not null;index"`
	RequestMessage string    `gorm:"type:text;not null"`
	Answer         string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index"`

	// Deleting a history takes any exchange that raced into it along.
	History *ChatHistory `gorm:"foreignKey:HistoryId;references:Id;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

func (ChatExchange) TableName() string {
	return "chat_exchanges"
}
