package serverutils

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestParseToken(t *testing.T) {
	userId := uuid.New()

	valid, err := IssueToken(testSecret, userId, time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(testSecret, userId, -time.Minute)
	require.NoError(t, err)
	foreign, err := IssueToken("other-secret", userId, time.Hour)
	require.NoError(t, err)
	noClaim, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userId.String()}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	got, err := ParseToken(testSecret, valid)
	require.NoError(t, err)
	assert.Equal(t, userId, got)

	for name, tok := range map[string]string{
		"expired":       expired,
		"wrong secret":  foreign,
		"missing claim": noClaim,
		"not a jwt":     "garbage",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(testSecret, tok)
			assert.ErrorIs(t, err, ErrAuthenticationRequired)
		})
	}

	_, err = ParseToken("", valid)
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
}

func newAuthApp(allowQuery bool) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/me", NewJwtMiddleware(testSecret, allowQuery), func(ctx *fiber.Ctx) error {
		userId, err := UserId(ctx)
		if err != nil {
			return err
		}
		return ctx.SendString(userId.String())
	})
	return app
}

func TestJwtMiddleware(t *testing.T) {
	userId := uuid.New()
	tok, err := IssueToken(testSecret, userId, time.Hour)
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := newAuthApp(false).Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("missing token", func(t *testing.T) {
		resp, err := newAuthApp(false).Test(httptest.NewRequest("GET", "/me", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("query token only when allowed", func(t *testing.T) {
		resp, err := newAuthApp(false).Test(httptest.NewRequest("GET", "/me?token="+tok, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

		resp, err = newAuthApp(true).Test(httptest.NewRequest("GET", "/me?token="+tok, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}
