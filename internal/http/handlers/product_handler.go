package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ledger-market/backend/internal/http/dto"
	"github.com/ledger-market/backend/internal/middleware"
	"github.com/ledger-market/backend/internal/services"
	"go.uber.org/zap"
)

type ProductHandler struct {
	productService *services.ProductService
	log            *zap.Logger
}

func NewProductHandler(productService *services.ProductService, log *zap.Logger) *ProductHandler {
	return &ProductHandler{productService: productService, log: log}
}

func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req dto.CreateProductRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	product, err := h.productService.CreateProduct(c.UserContext(), middleware.GetActor(c), services.CreateProductInput{
		Title:    req.Title,
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: product})
}

func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	product, err := h.productService.GetProduct(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: product})
}

func (h *ProductHandler) Restock(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	var req dto.RestockRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	product, err := h.productService.Restock(c.UserContext(), middleware.GetActor(c), id, req.Quantity)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: product})
}

// PUT /products/:id
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	var req dto.UpdateProductRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	product, err := h.productService.UpdateProduct(c.UserContext(), middleware.GetActor(c), id, services.UpdateProductInput{
		Title:    req.Title,
		Price:    req.Price,
		IsActive: req.IsActive,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: product})
}

// DeactivateProduct: soft delete, товар остаётся в старых заказах.
// DELETE /products/:id
func (h *ProductHandler) DeactivateProduct(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	if _, err := h.productService.Deactivate(c.UserContext(), middleware.GetActor(c), id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
