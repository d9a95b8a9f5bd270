package service

import (
	"context"
	"fmt"

	"magic-collection-be/internal/entity"
	"magic-collection-be/internal/repository/cache"
	"magic-collection-be/internal/repository/specification"
	"magic-collection-be/internal/repository/unitofwork"
	"magic-collection-be/pkg/relay"

	"github.com/google/uuid"
)

// IConversationStore is the relay's persistence plus the read side used by the chat API.
type IConversationStore interface {
	relay.ConversationStore

	ListHistories(ctx context.Context, ownerId uuid.UUID) ([]*entity.ChatHistory, error)
	ListExchanges(ctx context.Context, historyId, ownerId uuid.UUID) ([]*entity.ChatExchange, error)
}

type conversationStore struct {
	uowFactory unitofwork.RepositoryFactory
	cache      *cache.HistoryCache
}

// NewConversationStore returns a store backed by the repository layer. historyCache may be nil.
func NewConversationStore(uowFactory unitofwork.RepositoryFactory, historyCache *cache.HistoryCache) IConversationStore {
	return &conversationStore{
		uowFactory: uowFactory,
		cache:      historyCache,
	}
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", relay.ErrPersistence, op, err)
}

func (s *conversationStore) CreateHistory(ctx context.Context, ownerId uuid.UUID) (uuid.UUID, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return uuid.Nil, persistenceError("begin", err)
	}
	defer uow.Rollback()

	owner, err := uow.UserRepository().FindOne(ctx, specification.ByID{ID: ownerId})
	if err != nil {
		return uuid.Nil, persistenceError("find owner", err)
	}
	if owner == nil {
		return uuid.Nil, fmt.Errorf("%w: owner %s does not exist", relay.ErrPersistence, ownerId)
	}

	history := &entity.ChatHistory{UserId: ownerId}
	if err := uow.ChatHistoryRepository().Create(ctx, history); err != nil {
		return uuid.Nil, persistenceError("create history", err)
	}

	if err := uow.Commit(); err != nil {
		return uuid.Nil, persistenceError("commit", err)
	}

	s.cache.Invalidate(ctx, ownerId)
	return history.Id, nil
}

func (s *conversationStore) HistoryExists(ctx context.Context, historyId, ownerId uuid.UUID) (bool, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	count, err := uow.ChatHistoryRepository().Count(ctx,
		specification.ByID{ID: historyId},
		specification.UserOwnedBy{UserID: ownerId},
	)
	if err != nil {
		return false, persistenceError("check history", err)
	}
	return count > 0, nil
}

func (s *conversationStore) ListHistories(ctx context.Context, ownerId uuid.UUID) ([]*entity.ChatHistory, error) {
	cached, gen, ok := s.cache.Get(ctx, ownerId)
	if ok {
		return cached, nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	specs := append([]specification.Specification{specification.UserOwnedBy{UserID: ownerId}}, specification.NewestFirst()...)
	histories, err := uow.ChatHistoryRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, persistenceError("list histories", err)
	}

	s.cache.Set(ctx, ownerId, gen, histories)
	return histories, nil
}

func (s *conversationStore) ListExchanges(ctx context.Context, historyId, ownerId uuid.UUID) ([]*entity.ChatExchange, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	specs := append([]specification.Specification{
		specification.ByHistoryID{HistoryID: historyId},
		specification.UserOwnedBy{UserID: ownerId},
	}, specification.Chronological()...)

	exchanges, err := uow.ChatExchangeRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, persistenceError("list exchanges", err)
	}
	return exchanges, nil
}

func (s *conversationStore) LoadContextExchanges(ctx context.Context, historyId, ownerId uuid.UUID) ([]relay.ContextExchange, error) {
	exchanges, err := s.ListExchanges(ctx, historyId, ownerId)
	if err != nil {
		return nil, err
	}

	prior := make([]relay.ContextExchange, len(exchanges))
	for i, ex := range exchanges {
		prior[i] = relay.ContextExchange{Prompt: ex.RequestMessage, Answer: ex.Answer}
	}
	return prior, nil
}

func (s *conversationStore) AppendExchange(ctx context.Context, historyId, ownerId uuid.UUID, prompt, answer string) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	exchange := &entity.ChatExchange{
		HistoryId:      historyId,
		UserId:         ownerId,
		RequestMessage: prompt,
		Answer:         answer,
	}
	if err := uow.ChatExchangeRepository().Create(ctx, exchange); err != nil {
		return persistenceError("append exchange", err)
	}
	return nil
}

func (s *conversationStore) IncrementMessageCount(ctx context.Context, historyId uuid.UUID) (bool, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	count, err := uow.ChatHistoryRepository().IncrementMessagesCount(ctx, historyId)
	if err != nil {
		return false, persistenceError("increment message count", err)
	}
	return count == 1, nil
}

func (s *conversationStore) RenameHistory(ctx context.Context, historyId uuid.UUID, name string) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.ChatHistoryRepository().UpdateName(ctx, historyId, name); err != nil {
		return persistenceError("rename history", err)
	}
	s.invalidateOwnerOf(ctx, uow, historyId)
	return nil
}

func (s *conversationStore) TouchHistory(ctx context.Context, historyId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.ChatHistoryRepository().Touch(ctx, historyId); err != nil {
		return persistenceError("touch history", err)
	}
	s.invalidateOwnerOf(ctx, uow, historyId)
	return nil
}

func (s *conversationStore) DeleteIfEmpty(ctx context.Context, historyId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	repo := uow.ChatHistoryRepository()

	history, err := repo.FindOne(ctx, specification.ByID{ID: historyId})
	if err != nil {
		return persistenceError("find history", err)
	}
	if history == nil {
		return nil
	}

	deleted, err := repo.DeleteIfEmpty(ctx, historyId)
	if err != nil {
		return persistenceError("delete history", err)
	}
	if deleted {
		s.cache.Invalidate(ctx, history.UserId)
	}
	return nil
}

func (s *conversationStore) invalidateOwnerOf(ctx context.Context, uow unitofwork.UnitOfWork, historyId uuid.UUID) {
	if s.cache == nil {
		return
	}
	history, err := uow.ChatHistoryRepository().FindOne(ctx, specification.ByID{ID: historyId})
	if err != nil || history == nil {
		return
	}
	s.cache.Invalidate(ctx, history.UserId)
}
