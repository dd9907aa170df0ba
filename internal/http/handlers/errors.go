package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/http/dto"
	"github.com/ledger-market/backend/internal/middleware"
	"github.com/ledger-market/backend/internal/models"
	"go.uber.org/zap"
)

// StatusFor maps a service error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrAlreadyResolved):
		return fiber.StatusConflict
	case errors.Is(err, models.ErrInsufficientFunds), errors.Is(err, models.ErrInsufficientInventory):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, models.ErrConcurrencyConflict):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := StatusFor(err)
	reqID := middleware.GetRequestID(c)
	resp := dto.ErrorResponse{Error: err.Error(), RequestID: reqID}

	switch status {
	case fiber.StatusServiceUnavailable:
		resp.Retryable = true
	case fiber.StatusInternalServerError:
		log.Error("request failed", zap.String("request_id", reqID), zap.String("path", c.Path()), zap.Error(err))
		resp.Error = "internal error"
	}
	return c.Status(status).JSON(resp)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg})
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}

func page(c *fiber.Ctx) (limit, offset int) {
	limit, offset = 20, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}
