package service

import (
	"context"
	"fmt"
	"strings"

	"magic-collection-be/internal/dto"
	"magic-collection-be/internal/pkg/serverutils"
	"magic-collection-be/pkg/relay"

	"github.com/google/uuid"
)

type IChatService interface {
	// StartRelay resolves the history and opens the model stream. Nothing has been
	// sent to the client when it returns an error.
	StartRelay(ctx context.Context, userId uuid.UUID, request *dto.SendMessageRequest) (*relay.StreamSession, error)
	GetHistories(ctx context.Context, userId uuid.UUID) ([]*dto.HistoryItemResponse, error)
	GetExchanges(ctx context.Context, userId uuid.UUID, historyId uuid.UUID) ([]*dto.ExchangeItemResponse, error)
}

type chatService struct {
	store        IConversationStore
	orchestrator *relay.Orchestrator
}

func NewChatService(store IConversationStore, orchestrator *relay.Orchestrator) IChatService {
	return &chatService{
		store:        store,
		orchestrator: orchestrator,
	}
}

func (cs *chatService) StartRelay(ctx context.Context, userId uuid.UUID, request *dto.SendMessageRequest) (*relay.StreamSession, error) {
	if strings.TrimSpace(request.Message) == "" {
		return nil, &serverutils.ValidationError{Fields: map[string]string{"message": "is required"}}
	}

	req := relay.Request{
		Prompt:  request.Message,
		OwnerId: userId,
	}
	if request.HistoryId != nil && *request.HistoryId != "" {
		historyId, err := uuid.Parse(*request.HistoryId)
		if err != nil {
			return nil, &serverutils.ValidationError{Fields: map[string]string{"historyId": "must be a valid uuid"}}
		}
		req.HistoryId = &historyId
	}

	session, err := cs.orchestrator.Start(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start relay: %w", err)
	}
	return session, nil
}

func (cs *chatService) GetHistories(ctx context.Context, userId uuid.UUID) ([]*dto.HistoryItemResponse, error) {
	histories, err := cs.store.ListHistories(ctx, userId)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.HistoryItemResponse, len(histories))
	for i, h := range histories {
		res[i] = &dto.HistoryItemResponse{
			Id:          h.Id,
			HistoryName: h.HistoryName,
		}
	}
	return res, nil
}

func (cs *chatService) GetExchanges(ctx context.Context, userId uuid.UUID, historyId uuid.UUID) ([]*dto.ExchangeItemResponse, error) {
	exchanges, err := cs.store.ListExchanges(ctx, historyId, userId)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ExchangeItemResponse, len(exchanges))
	for i, ex := range exchanges {
		res[i] = &dto.ExchangeItemResponse{
			RequestMessage: ex.RequestMessage,
			Answer:         ex.Answer,
			PairId:         ex.Id,
		}
	}
	return res, nil
}
