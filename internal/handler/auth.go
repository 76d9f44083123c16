package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/cleanflow/api/internal/auth"
	"github.com/cleanflow/api/internal/model"
)

// AuthHandler answers the gateway's forward-auth check
type AuthHandler struct {
	verifier  auth.TokenVerifier
	jwtSecret string
}

func NewAuthHandler(verifier auth.TokenVerifier, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// Verify handles GET /auth/verify. On success the actor is returned in
// X-User-Id and X-User-Role for the gateway to forward.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	tokenString := parts[1]

	if h.verifier != nil {
		claims, err := h.verifier.Validate(tokenString)
		if err == nil {
			return h.accept(c, claims.UserID, claims.Role())
		}
		if h.jwtSecret == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
	}

	if h.jwtSecret != "" {
		claims, err := auth.ValidateLegacyToken(tokenString, h.jwtSecret)
		if err == nil && claims.UserID != "" {
			return h.accept(c, claims.UserID, claims.Role)
		}
	}

	return c.SendStatus(fiber.StatusUnauthorized)
}

func (h *AuthHandler) accept(c *fiber.Ctx, userID, role string) error {
	if role != model.RoleAdmin && role != model.RoleSystem {
		role = model.RoleCleaner
	}
	c.Set("X-User-Id", userID)
	c.Set("X-User-Role", role)
	return c.SendStatus(fiber.StatusOK)
}
