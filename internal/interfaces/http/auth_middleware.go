package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/aymenbha/fattoura-api/internal/application/dto"
	"github.com/aymenbha/fattoura-api/pkg/jwt"
)

// Clés Locals Fiber posées par le middleware d'authentification.
const (
	LocalUserID    = "user_id"
	LocalMatricule = "matricule"
	LocalRole      = "role"
)

// Rôles applicatifs.
const (
	RoleAdmin     = "admin"
	RoleComptable = "comptable"
	RoleLecteur   = "lecteur"
)

// AuthMiddleware valide le Bearer Token JWT et pose UserID, Matricule et
// Role dans c.Locals.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "en-tête Authorization requis"})
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "format attendu: Bearer <token>"})
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "jeton vide"})
		}
		userID, matricule, role, err := jwt.Parse(jwtSecret, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "jeton invalide ou expiré"})
		}
		c.Locals(LocalUserID, userID)
		c.Locals(LocalMatricule, matricule)
		c.Locals(LocalRole, role)
		return c.Next()
	}
}

// RequireRole n'autorise que les rôles listés. À poser après
// AuthMiddleware.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *fiber.Ctx) error {
		if !allowed[GetRole(c)] {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "rôle insuffisant"})
		}
		return c.Next()
	}
}

// GetUserID retourne le UserID du contexte (après le middleware).
func GetUserID(c *fiber.Ctx) string {
	return localString(c, LocalUserID)
}

// GetMatricule retourne le matricule fiscal de l'entreprise du jeton.
func GetMatricule(c *fiber.Ctx) string {
	return localString(c, LocalMatricule)
}

// GetRole retourne le rôle du jeton.
func GetRole(c *fiber.Ctx) string {
	return localString(c, LocalRole)
}

func localString(c *fiber.Ctx, key string) string {
	v := c.Locals(key)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
