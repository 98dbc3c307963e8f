package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/observability"
	"github.com/kursadbilgin/stock-console/internal/session"
)

// HeaderSessionID carries the session id returned by login.
const HeaderSessionID = "X-Session-ID"

// RequestContext moves the request id into the user context so services log
// it as the correlation id.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id := requestCorrelationID(c); id != "" {
			c.SetUserContext(observability.WithCorrelationID(c.UserContext(), id))
		}
		return c.Next()
	}
}

// RequireSession rejects requests without a live session and attaches the
// session and its user to the user context.
func RequireSession(store session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(HeaderSessionID))
		if id == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "login required")
		}

		sess, err := store.Get(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "session expired, please log in again")
			}
			return err
		}

		ctx := session.WithSession(c.UserContext(), sess)
		ctx = observability.WithUser(ctx, sess.User)
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func currentSession(c *fiber.Ctx) (*session.Session, error) {
	sess, ok := session.FromContext(c.UserContext())
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "login required")
	}
	return sess, nil
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
