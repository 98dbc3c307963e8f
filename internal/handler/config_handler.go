package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/stock-console/internal/service"
)

type ConfigService interface {
	Get(ctx context.Context) (json.RawMessage, error)
	Update(ctx context.Context, user string, raw []byte) (json.RawMessage, error)
	Functions() []service.TransformFunction
}

type ActionLog interface {
	List(ctx context.Context, source string) ([]service.ActionEntry, error)
}

type ConfigHandler struct {
	config  ConfigService
	actions ActionLog
}

func NewConfigHandler(config ConfigService, actions ActionLog) (*ConfigHandler, error) {
	if config == nil {
		return nil, fmt.Errorf("config service is required")
	}
	if actions == nil {
		return nil, fmt.Errorf("action log is required")
	}
	return &ConfigHandler{config: config, actions: actions}, nil
}

func (h *ConfigHandler) GetConfig(c *fiber.Ctx) error {
	raw, err := h.config.Get(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(raw)
}

// UpdateConfig takes the raw editor text as the request body.
func (h *ConfigHandler) UpdateConfig(c *fiber.Ctx) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}

	saved, err := h.config.Update(c.UserContext(), sess.User, c.Body())
	if err != nil {
		return toHTTPError(err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(saved)
}

func (h *ConfigHandler) ListFunctions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.config.Functions()})
}

func (h *ConfigHandler) ListLogs(c *fiber.Ctx) error {
	source := c.Query("source", service.DefaultActionSource)
	entries, err := h.actions.List(c.UserContext(), source)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"source": source, "data": entries})
}
