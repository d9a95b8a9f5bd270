package unitofwork

import (
	"context"

	"magic-collection-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	UserRepository() contract.UserRepository
	ChatHistoryRepository() contract.ChatHistoryRepository
	ChatExchangeRepository() contract.ChatExchangeRepository
}
