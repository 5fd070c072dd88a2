package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/policy-oracle/backend/internal/auth"
	"github.com/policy-oracle/backend/internal/rbac"
	"go.uber.org/zap"
)

const (
	CtxGuardianID = "guardian_id"
	CtxAddress    = "address"
	CtxRole       = "role"
)

func AuthMiddleware(jwtSecret string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(jwtSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxGuardianID, claims.GuardianID)
		c.Locals(CtxAddress, claims.Address)
		c.Locals(CtxRole, claims.Role)

		return c.Next()
	}
}

func GetGuardianID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(CtxGuardianID).(uuid.UUID)
	return id
}

func GetAddress(c *fiber.Ctx) string {
	addr, _ := c.Locals(CtxAddress).(string)
	return addr
}

func GetRole(c *fiber.Ctx) string {
	role, _ := c.Locals(CtxRole).(string)
	return role
}

// RequirePermission rejects sessions whose role lacks permission.
func RequirePermission(permission string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := GetRole(c)
		if !rbac.HasPermission(role, permission) {
			if rbac.IsOperatorOnly(permission) {
				log.Warn("operator endpoint denied",
					zap.String("address", GetAddress(c)),
					zap.String("role", role),
					zap.String("path", c.Path()),
				)
			}
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "permission denied: " + permission})
		}
		return c.Next()
	}
}
