package contract

import (
	"context"

	"magic-collection-be/internal/entity"
	"magic-collection-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ChatHistoryRepository interface {
	Create(ctx context.Context, history *entity.ChatHistory) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatHistory, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatHistory, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)

	// IncrementMessagesCount bumps the counter atomically and returns the new value.
	IncrementMessagesCount(ctx context.Context, id uuid.UUID) (int, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
	Touch(ctx context.Context, id uuid.UUID) error
	// DeleteIfEmpty removes the history only while its counter is still zero.
	DeleteIfEmpty(ctx context.Context, id uuid.UUID) (bool, error)
}
