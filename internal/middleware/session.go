package middleware

import (
	"github.com/MWest2020/openregister/internal/types"
	"github.com/gofiber/fiber/v2"
)

const sessionLocalKey = "session"

// SessionMiddleware builds the request-scoped actor context from trusted
// gateway headers and stores it on the request. Requests without an
// authenticated actor run as the System identity.
func SessionMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		session := &types.Session{
			UserID:    c.Get("X-User-Id"),
			UserName:  c.Get("X-User-Name"),
			SessionID: c.Get("X-Session-Id"),
			RequestID: c.Get("X-Request-Id"),
			IPAddress: c.IP(),
		}
		c.Locals(sessionLocalKey, session.OrSystem())
		return c.Next()
	}
}

// SessionFromContext returns the actor context stored by the middleware,
// or the System identity when none is present.
func SessionFromContext(c *fiber.Ctx) *types.Session {
	if session, ok := c.Locals(sessionLocalKey).(*types.Session); ok {
		return session
	}
	return types.SystemSession()
}
