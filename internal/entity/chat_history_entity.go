package entity

import (
	"time"

	"github.com/google/uuid"
)

type ChatHistory struct {
	Id            uuid.UUID
	UserId        uuid.UUID
	HistoryName   *string
	MessagesCount int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ChatExchange struct {
	Id             uuid.UUID
	HistoryId      uuid.UUID
	UserId         uuid.UUID
	RequestMessage string
	Answer         string
	CreatedAt      time.Time
}
