package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/http/dto"
	"github.com/ledger-market/backend/internal/middleware"
	"github.com/ledger-market/backend/internal/models"
	"github.com/ledger-market/backend/internal/services"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orderService *services.OrderService
	refunds      *services.RefundEngine
	log          *zap.Logger
}

func NewOrderHandler(orderService *services.OrderService, refunds *services.RefundEngine, log *zap.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, refunds: refunds, log: log}
}

func (h *OrderHandler) PlaceOrder(c *fiber.Ctx) error {
	var req dto.PlaceOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	in := services.PlaceOrderInput{ShippingAddress: req.ShippingAddress, Notes: req.Notes}
	for _, it := range req.Items {
		productID, err := uuid.Parse(it.ProductID)
		if err != nil {
			return badRequest(c, "invalid product_id")
		}
		in.Items = append(in.Items, services.OrderLine{ProductID: productID, Quantity: it.Quantity})
	}

	order, err := h.orderService.PlaceOrder(c.UserContext(), middleware.GetActor(c), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: order})
}

// GetOrder возвращает заказ вместе с эскроу и возвратами.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	ctx, actor := c.UserContext(), middleware.GetActor(c)

	order, err := h.orderService.GetOrder(ctx, actor, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	resp := dto.OrderDetailsResponse{Order: order, Refunds: []models.Refund{}}
	if escrow, err := h.orderService.GetEscrow(ctx, actor, id); err == nil {
		resp.Escrow = escrow
	}
	refunds, err := h.refunds.ListForOrder(ctx, actor, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if refunds != nil {
		resp.Refunds = refunds
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: resp})
}

func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	limit, offset := page(c)
	var status *string
	if v := c.Query("status"); v != "" {
		status = &v
	}
	asSeller := c.Query("role") == models.RoleSeller

	orders, err := h.orderService.ListOrders(c.UserContext(), middleware.GetActor(c), asSeller, status, limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: orders})
}

func (h *OrderHandler) ShipOrder(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	var req dto.ShipOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	order, err := h.orderService.Ship(c.UserContext(), middleware.GetActor(c), id, req.TrackingNumber)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: order})
}

func (h *OrderHandler) ConfirmDelivery(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	order, err := h.orderService.ConfirmDelivery(c.UserContext(), middleware.GetActor(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: order})
}

func (h *OrderHandler) CompleteOrder(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	order, err := h.orderService.Complete(c.UserContext(), middleware.GetActor(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: order})
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	// тело необязательно
	var req dto.ReasonRequest
	_ = c.BodyParser(&req)

	order, err := h.orderService.Cancel(c.UserContext(), middleware.GetActor(c), id, req.Reason)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: order})
}

// POST /admin/orders/:id/refund-order
func (h *OrderHandler) AdminRefundOrder(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	var req dto.ReasonRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	order, err := h.orderService.AdminRefund(c.UserContext(), middleware.GetActor(c), id, req.Reason)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: order})
}

// POST /admin/orders/:id/refunds
func (h *OrderHandler) IssueRefund(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	var req dto.RefundRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	refund, err := h.refunds.RefundOrder(c.UserContext(), middleware.GetActor(c), id, req.Amount, req.Reason)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: refund})
}
