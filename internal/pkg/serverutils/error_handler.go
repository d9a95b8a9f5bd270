package serverutils

import (
	"errors"

	"magic-collection-be/pkg/llm"
	"magic-collection-be/pkg/relay"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	var validationErr *ValidationError

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrAuthenticationRequired):
		return fiber.StatusUnauthorized
	case errors.Is(err, relay.ErrHistoryNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, llm.ErrUpstreamUnavailable), errors.Is(err, llm.ErrUpstreamTimeout):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// publicMessage hides internals of 5xx errors other than the upstream ones.
func publicMessage(status int, err error) string {
	switch status {
	case fiber.StatusInternalServerError:
		return "Internal server error"
	case fiber.StatusBadGateway:
		return "Model backend unavailable"
	default:
		return err.Error()
	}
}

// PublicMessage is the client-facing text for err.
func PublicMessage(err error) string {
	return publicMessage(StatusFor(err), err)
}

// ErrorHandler renders any error as the standard envelope. Set as fiber.Config.ErrorHandler.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	status := StatusFor(err)
	return ctx.Status(status).JSON(ErrorResponse(status, publicMessage(status, err)))
}

// ErrorHandlerMiddleware renders errors returned by downstream handlers.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return ErrorHandler(ctx, err)
	}
}
