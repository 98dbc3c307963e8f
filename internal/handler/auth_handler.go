package handler

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/stock-console/internal/ratelimit"
	"github.com/kursadbilgin/stock-console/internal/session"
)

// Credentials is the single operator account allowed into the console.
type Credentials struct {
	Username string
	Password string
}

type AuthHandler struct {
	sessions    session.Store
	limiter     ratelimit.RateLimiter
	credentials Credentials
}

func NewAuthHandler(sessions session.Store, limiter ratelimit.RateLimiter, credentials Credentials) (*AuthHandler, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if strings.TrimSpace(credentials.Username) == "" || credentials.Password == "" {
		return nil, fmt.Errorf("operator credentials are required")
	}
	return &AuthHandler{sessions: sessions, limiter: limiter, credentials: credentials}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string `json:"sessionId"`
	User      string `json:"user"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "username and password are required")
	}

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(c.UserContext(), "login:"+strings.ToLower(username))
		if err != nil {
			return err
		}
		if !allowed {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many login attempts, try again later")
		}
	}

	if !h.matches(username, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "username or password is incorrect")
	}

	sess, err := h.sessions.Create(c.UserContext(), username)
	if err != nil {
		return err
	}

	c.Set(HeaderSessionID, sess.ID)
	return c.Status(fiber.StatusCreated).JSON(loginResponse{SessionID: sess.ID, User: sess.User})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Delete(c.UserContext(), sess.ID); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}
	return c.JSON(sess)
}

func (h *AuthHandler) matches(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.credentials.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.credentials.Password)) == 1
	return userOK && passOK
}
