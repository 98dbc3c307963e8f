package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/stock-console/internal/domain"
	"github.com/kursadbilgin/stock-console/internal/provider"
)

func toHTTPError(err error) error {
	var providerErr *provider.ProviderError

	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrMissingArtifact):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPollTimeout):
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	case errors.As(err, &providerErr):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return err
	}
}
