package contract

import (
	"context"

	"magic-collection-be/internal/entity"
	"magic-collection-be/internal/repository/specification"
)

type ChatExchangeRepository interface {
	Create(ctx context.Context, exchange *entity.ChatExchange) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatExchange, error)
}
