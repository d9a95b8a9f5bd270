package dto

import "github.com/google/uuid"

type SendMessageRequest struct {
	Message   string  `json:"message" validate:"required,max=8000"`
	HistoryId *string `json:"historyId" validate:"omitempty,uuid"`
}

type HistoryItemResponse struct {
	Id          uuid.UUID `json:"id"`
	HistoryName *string   `json:"historyName"`
}

type ExchangeItemResponse struct {
	RequestMessage string    `json:"requestMessage"`
	Answer         string    `json:"answer"`
	PairId         uuid.UUID `json:"pairId"`
}

// WsFrame is a control frame on the chat WebSocket. Model text travels as plain text frames.
type WsFrame struct {
	Type      string `json:"type"`
	HistoryId string `json:"historyId,omitempty"`
	Message   string `json:"message,omitempty"`
}

const (
	WsFrameDone  = "done"
	WsFrameError = "error"
)

type HealthResponse struct {
	Database string `json:"database"`
}
