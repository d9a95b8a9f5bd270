package implementation

import (
	"context"

	"magic-collection-be/internal/entity"
	"magic-collection-be/internal/mapper"
	"magic-collection-be/internal/model"
	"magic-collection-be/internal/repository/contract"
	"magic-collection-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatExchangeRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatExchangeRepository(db *gorm.DB) contract.ChatExchangeRepository {
	return &ChatExchangeRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatExchangeRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChatExchangeRepositoryImpl) Create(ctx context.Context, exchange *entity.ChatExchange) error {
	if exchange.Id == uuid.Nil {
		exchange.Id = uuid.New()
	}
	m := r.mapper.ChatExchangeToModel(exchange)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*exchange = *r.mapper.ChatExchangeToEntity(m)
	return nil
}

func (r *ChatExchangeRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatExchange, error) {
	var models []*model.ChatExchange
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ChatExchangesToEntities(models), nil
}
