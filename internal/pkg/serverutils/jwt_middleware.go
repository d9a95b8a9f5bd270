package serverutils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const userIdLocal = "user_id"

var ErrAuthenticationRequired = errors.New("authentication required")

// NewJwtMiddleware verifies an HMAC bearer token and stores its user_id claim in Locals.
// allowQueryToken also accepts ?token=, which browsers need for WebSocket handshakes.
func NewJwtMiddleware(secret string, allowQueryToken bool) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := bearerToken(ctx.Get(fiber.HeaderAuthorization))
		if tokenStr == "" && allowQueryToken {
			tokenStr = ctx.Query("token")
		}
		if tokenStr == "" {
			return fmt.Errorf("%w: missing token", ErrAuthenticationRequired)
		}

		userId, err := ParseToken(secret, tokenStr)
		if err != nil {
			return err
		}

		ctx.Locals(userIdLocal, userId.String())
		return ctx.Next()
	}
}

func bearerToken(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// ParseToken returns the user id carried by a valid token.
func ParseToken(secret, tokenStr string) (uuid.UUID, error) {
	if secret == "" {
		return uuid.Nil, fmt.Errorf("%w: token verification is not configured", ErrAuthenticationRequired)
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("%w: invalid token", ErrAuthenticationRequired)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: invalid claims", ErrAuthenticationRequired)
	}
	userIdStr, ok := claims[userIdLocal].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: token missing user_id", ErrAuthenticationRequired)
	}
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid user id in token", ErrAuthenticationRequired)
	}
	return userId, nil
}

// IssueToken signs a token for userId. Used by the dev seeder and tests; this service never logs anyone in.
func IssueToken(secret string, userId uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdLocal: userId.String(),
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// UserId reads the caller set by the JWT middleware.
func UserId(ctx *fiber.Ctx) (uuid.UUID, error) {
	userIdStr, ok := ctx.Locals(userIdLocal).(string)
	if !ok {
		return uuid.Nil, ErrAuthenticationRequired
	}
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		return uuid.Nil, ErrAuthenticationRequired
	}
	return userId, nil
}
