package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/http/dto"
	"github.com/ledger-market/backend/internal/middleware"
	"github.com/ledger-market/backend/internal/services"
	"go.uber.org/zap"
)

type AuditHandler struct {
	auditService *services.AuditService
	log          *zap.Logger
}

func NewAuditHandler(auditService *services.AuditService, log *zap.Logger) *AuditHandler {
	return &AuditHandler{auditService: auditService, log: log}
}

// GET /admin/audit?entity_type=order&entity_id=...
func (h *AuditHandler) ListAudit(c *fiber.Ctx) error {
	entityID, err := uuid.Parse(c.Query("entity_id"))
	if err != nil {
		return badRequest(c, "invalid entity_id")
	}
	limit, offset := page(c)

	entries, err := h.auditService.ListAudit(c.UserContext(), middleware.GetActor(c), c.Query("entity_type"), entityID, limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
