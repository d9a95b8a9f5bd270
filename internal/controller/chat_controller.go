package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"magic-collection-be/internal/dto"
	"magic-collection-be/internal/pkg/logger"
	"magic-collection-be/internal/pkg/serverutils"
	"magic-collection-be/internal/service"
	"magic-collection-be/pkg/relay"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const wsWriteTimeout = 10 * time.Second

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	SendMessage(ctx *fiber.Ctx) error
	GetHistories(ctx *fiber.Ctx) error
	GetExchanges(ctx *fiber.Ctx) error
	ServeWs(conn *websocket.Conn)
}

type chatController struct {
	service   service.IChatService
	jwtSecret string
	logger    logger.ILogger
}

func NewChatController(service service.IChatService, jwtSecret string, log logger.ILogger) IChatController {
	return &chatController{
		service:   service,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")
	h.Get("/ws", serverutils.NewJwtMiddleware(c.jwtSecret, true), requireUpgrade, websocket.New(c.ServeWs))

	h.Use(serverutils.NewJwtMiddleware(c.jwtSecret, false))
	h.Post("/message", c.SendMessage)
	h.Get("/histories", c.GetHistories)
	h.Get("/exchanges/:historyId", c.GetExchanges)
}

func requireUpgrade(ctx *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(ctx) {
		return ctx.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserId(ctx)
	if err != nil {
		return err
	}

	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	session, err := c.service.StartRelay(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		c.finishRelay(session, &streamSink{w: w})
	})
	return nil
}

func (c *chatController) finishRelay(session *relay.StreamSession, sink relay.Sink) error {
	err := session.Relay(sink)
	if err != nil {
		c.logger.Debug("CHAT", "Relay ended early", map[string]interface{}{
			"session_id": session.Id.String(),
			"history_id": session.HistoryId.String(),
			"error":      err.Error(),
		})
	}
	return err
}

func (c *chatController) GetHistories(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserId(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetHistories(ctx.UserContext(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get chat histories", res))
}

func (c *chatController) GetExchanges(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserId(ctx)
	if err != nil {
		return err
	}
	historyId, err := uuid.Parse(ctx.Params("historyId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid history id")
	}

	res, err := c.service.GetExchanges(ctx.UserContext(), userId, historyId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get chat exchanges", res))
}

type wsTurn struct {
	req dto.SendMessageRequest
	err error
}

// ServeWs runs one relay per inbound message, sequentially. The reader goroutine
// only reads; every write happens on this goroutine.
func (c *chatController) ServeWs(conn *websocket.Conn) {
	userIdStr, _ := conn.Locals("user_id").(string)
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		return
	}

	sink := &wsSink{conn: conn, closed: make(chan struct{})}
	turns := make(chan wsTurn)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(turns)
		defer sink.markClosed()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var turn wsTurn
			if err := json.Unmarshal(data, &turn.req); err != nil {
				turn.err = fiber.NewError(fiber.StatusBadRequest, "Invalid message frame")
			}
			select {
			case turns <- turn:
			case <-done:
				return
			}
		}
	}()

	c.logger.Info("CHAT", "WebSocket session started", map[string]interface{}{"user_id": userId.String()})
	defer c.logger.Info("CHAT", "WebSocket session ended", map[string]interface{}{"user_id": userId.String()})

	for turn := range turns {
		if turn.err == nil {
			turn.err = serverutils.ValidateRequest(turn.req)
		}
		if turn.err != nil {
			if sink.writeFrame(dto.WsFrame{Type: dto.WsFrameError, Message: serverutils.PublicMessage(turn.err)}) != nil {
				return
			}
			continue
		}

		session, err := c.service.StartRelay(context.Background(), userId, &turn.req)
		if err != nil {
			if sink.writeFrame(dto.WsFrame{Type: dto.WsFrameError, Message: serverutils.PublicMessage(err)}) != nil {
				return
			}
			continue
		}

		if err := c.finishRelay(session, sink); errors.Is(err, relay.ErrClientDisconnected) {
			return
		}
		if sink.writeFrame(dto.WsFrame{Type: dto.WsFrameDone, HistoryId: session.HistoryId.String()}) != nil {
			return
		}
	}
}

// streamSink writes to a chunked HTTP body. fasthttp only reports a vanished
// client when a flush fails, so every write is flushed.
type streamSink struct {
	w *bufio.Writer
}

func (s *streamSink) Write(text string) error {
	if _, err := s.w.WriteString(text); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *streamSink) Closed() <-chan struct{} {
	return nil
}

type wsSink struct {
	conn      *websocket.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *wsSink) Write(text string) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (s *wsSink) writeFrame(frame dto.WsFrame) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(frame)
}

func (s *wsSink) Closed() <-chan struct{} {
	return s.closed
}

func (s *wsSink) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}
