package mapper

import (
	"magic-collection-be/internal/entity"
	"magic-collection-be/internal/model"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// History Mappers

func (m *ChatMapper) ChatHistoryToEntity(h *model.ChatHistory) *entity.ChatHistory {
	if h == nil {
		return nil
	}
	return &entity.ChatHistory{
		Id:            h.Id,
		UserId:        h.UserId,
		HistoryName:   h.HistoryName,
		MessagesCount: h.MessagesCount,
		CreatedAt:     h.CreatedAt,
		UpdatedAt:     h.UpdatedAt,
	}
}

func (m *ChatMapper) ChatHistoryToModel(h *entity.ChatHistory) *model.ChatHistory {
	if h == nil {
		return nil
	}
	return &model.ChatHistory{
		Id:            h.Id,
		UserId:        h.UserId,
		HistoryName:   h.HistoryName,
		MessagesCount: h.MessagesCount,
		CreatedAt:     h.CreatedAt,
		UpdatedAt:     h.UpdatedAt,
	}
}

func (m *ChatMapper) ChatHistoriesToEntities(models []*model.ChatHistory) []*entity.ChatHistory {
	entities := make([]*entity.ChatHistory, len(models))
	for i, h := range models {
		entities[i] = m.ChatHistoryToEntity(h)
	}
	return entities
}

// Exchange Mappers

func (m *ChatMapper) ChatExchangeToEntity(e *model.ChatExchange) *entity.ChatExchange {
	if e == nil {
		return nil
	}
	return &entity.ChatExchange{
		Id:             e.Id,
		HistoryId:      e.HistoryId,
		UserId:         e.UserId,
		RequestMessage: e.RequestMessage,
		Answer:         e.Answer,
		CreatedAt:      e.CreatedAt,
	}
}

func (m *ChatMapper) ChatExchangeToModel(e *entity.ChatExchange) *model.ChatExchange {
	if e == nil {
		return nil
	}
	return &model.ChatExchange{
		Id:             e.Id,
		HistoryId:      e.HistoryId,
		UserId:         e.UserId,
		RequestMessage: e.RequestMessage,
		Answer:         e.Answer,
		CreatedAt:      e.CreatedAt,
	}
}

func (m *ChatMapper) ChatExchangesToEntities(models []*model.ChatExchange) []*entity.ChatExchange {
	entities := make([]*entity.ChatExchange, len(models))
	for i, e := range models {
		entities[i] = m.ChatExchangeToEntity(e)
	}
	return entities
}
