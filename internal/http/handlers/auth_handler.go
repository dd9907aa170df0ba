package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/auth"
	"github.com/ledger-market/backend/internal/config"
	"github.com/ledger-market/backend/internal/http/dto"
	"github.com/ledger-market/backend/internal/models"
	"go.uber.org/zap"
)

type AuthHandler struct {
	cfg *config.Config
	log *zap.Logger
}

func NewAuthHandler(cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, log: log}
}

// DevToken issues a token for any account and role. Tokens in production
// come from the identity provider that shares JWT_SECRET.
// POST /auth/dev-token
func (h *AuthHandler) DevToken(c *fiber.Ctx) error {
	if !h.cfg.IsDevelopment() {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "not found"})
	}

	var req dto.DevTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	accountID := uuid.New()
	if req.AccountID != "" {
		id, err := uuid.Parse(req.AccountID)
		if err != nil {
			return badRequest(c, "invalid account_id")
		}
		accountID = id
	}
	if !models.IsValidRole(req.Role) {
		return badRequest(c, "role must be buyer, seller or admin")
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, accountID, req.Role, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	h.log.Info("dev token issued", zap.String("account_id", accountID.String()), zap.String("role", req.Role))
	return c.JSON(dto.AuthResponse{
		Token: token,
		Actor: models.Actor{AccountID: accountID, Role: req.Role},
	})
}
