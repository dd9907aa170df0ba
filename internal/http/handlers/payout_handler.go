package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ledger-market/backend/internal/http/dto"
	"github.com/ledger-market/backend/internal/middleware"
	"github.com/ledger-market/backend/internal/services"
	"go.uber.org/zap"
)

type PayoutHandler struct {
	payoutService *services.PayoutService
	log           *zap.Logger
}

func NewPayoutHandler(payoutService *services.PayoutService, log *zap.Logger) *PayoutHandler {
	return &PayoutHandler{payoutService: payoutService, log: log}
}

func (h *PayoutHandler) RequestPayout(c *fiber.Ctx) error {
	var req dto.PayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	payout, err := h.payoutService.Request(c.UserContext(), middleware.GetActor(c), services.PayoutRequest{
		Amount: req.Amount,
		Method: req.Method,
		Notes:  req.Notes,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: payout})
}

func (h *PayoutHandler) GetPayout(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid payout id")
	}
	payout, err := h.payoutService.GetPayout(c.UserContext(), middleware.GetActor(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payout})
}

func (h *PayoutHandler) ListPayouts(c *fiber.Ctx) error {
	limit, offset := page(c)
	payouts, err := h.payoutService.ListPayouts(c.UserContext(), middleware.GetActor(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payouts})
}

// POST /admin/payouts/:id/settle
func (h *PayoutHandler) Settle(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid payout id")
	}
	payout, err := h.payoutService.Settle(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payout})
}
