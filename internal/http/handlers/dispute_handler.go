package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/http/dto"
	"github.com/ledger-market/backend/internal/middleware"
	"github.com/ledger-market/backend/internal/services"
	"go.uber.org/zap"
)

type DisputeHandler struct {
	disputeService *services.DisputeService
	log            *zap.Logger
}

func NewDisputeHandler(disputeService *services.DisputeService, log *zap.Logger) *DisputeHandler {
	return &DisputeHandler{disputeService: disputeService, log: log}
}

func (h *DisputeHandler) OpenDispute(c *fiber.Ctx) error {
	var req dto.OpenDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return badRequest(c, "invalid order_id")
	}

	dispute, err := h.disputeService.Open(c.UserContext(), middleware.GetActor(c), orderID, req.Reason)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dispute})
}

func (h *DisputeHandler) GetDispute(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid dispute id")
	}
	dispute, err := h.disputeService.GetDispute(c.UserContext(), middleware.GetActor(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dispute})
}

func (h *DisputeHandler) ListDisputes(c *fiber.Ctx) error {
	limit, offset := page(c)
	var status *string
	if v := c.Query("status"); v != "" {
		status = &v
	}
	disputes, err := h.disputeService.ListDisputes(c.UserContext(), middleware.GetActor(c), status, limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: disputes})
}

func (h *DisputeHandler) AddMessage(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid dispute id")
	}
	var req dto.DisputeMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	msg, err := h.disputeService.AddMessage(c.UserContext(), middleware.GetActor(c), id, req.Content)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: msg})
}

// POST /admin/disputes/:id/resolve
func (h *DisputeHandler) Resolve(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid dispute id")
	}
	var req dto.ResolveDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	dispute, err := h.disputeService.Resolve(c.UserContext(), middleware.GetActor(c), id, services.ResolveInput{
		RefundBuyer:      req.RefundBuyer,
		Amount:           req.Amount,
		Resolution:       req.Resolution,
		ReleaseRemainder: req.ReleaseRemainder,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dispute})
}
