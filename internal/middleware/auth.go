package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/ledger-market/backend/internal/auth"
	"github.com/ledger-market/backend/internal/config"
	"github.com/ledger-market/backend/internal/models"
	"github.com/ledger-market/backend/internal/rbac"
	"go.uber.org/zap"
)

const CtxActor = "actor"

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		actor := claims.Actor()
		// admin role из токена действует только для аккаунтов из ADMIN_ACCOUNT_IDS
		if actor.IsAdmin() && !cfg.IsAdmin(actor.AccountID) {
			log.Warn("admin token for account outside allowlist", zap.String("account_id", actor.AccountID.String()))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin access required"})
		}

		c.Locals(CtxActor, actor)
		return c.Next()
	}
}

func GetActor(c *fiber.Ctx) models.Actor {
	a, _ := c.Locals(CtxActor).(models.Actor)
	return a
}

// RequirePermission rejects actors whose role lacks permission.
func RequirePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.HasPermission(GetActor(c).Role, permission) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "insufficient permissions"})
		}
		return c.Next()
	}
}

// AdminMiddleware requires the admin role
func AdminMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !GetActor(c).IsAdmin() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin access required"})
		}
		return c.Next()
	}
}
