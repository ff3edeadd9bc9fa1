package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"filescdn/internal/auth"
)

// SessionLocalKey is the key the request session is stored under in Fiber's context locals.
const SessionLocalKey = "session"

// Auth resolves the caller from a bearer token and stores an *auth.Session in locals.
// Requests without a token get an anonymous session. Browsers following download links
// cannot set headers, so the token is also read from the "token" query parameter.
// An invalid token is rejected with 401.
func Auth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" || len(secret) == 0 {
			c.Locals(SessionLocalKey, auth.NewSession(nil))
			return c.Next()
		}

		user, err := auth.ParseToken(token, secret)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals(SessionLocalKey, auth.NewSession(user))
		return c.Next()
	}
}

// SessionFromCtx returns the session stored by Auth. It never returns nil.
func SessionFromCtx(c *fiber.Ctx) *auth.Session {
	if s, ok := c.Locals(SessionLocalKey).(*auth.Session); ok && s != nil {
		return s
	}
	return auth.NewSession(nil)
}

func bearerToken(h string) string {
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
