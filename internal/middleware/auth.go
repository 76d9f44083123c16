package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/cleanflow/api/internal/auth"
	"github.com/cleanflow/api/internal/model"
	"github.com/cleanflow/api/pkg/response"
)

// AuthMiddleware resolves the acting user and role from a bearer token
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	jwtSecret string // fallback for legacy tokens
}

// NewAuthMiddleware creates auth middleware with JWKS verification only
func NewAuthMiddleware(verifier auth.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// NewAuthMiddlewareWithFallback accepts JWKS tokens and legacy HMAC tokens
func NewAuthMiddlewareWithFallback(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, jwtSecret: jwtSecret}
}

// NewLegacyAuthMiddleware creates auth middleware using only HMAC signing
func NewLegacyAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret}
}

// Authenticate validates the JWT from the Authorization header. Websocket
// clients may pass it as the token query parameter instead.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Query("token")
		if authHeader := c.Get("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return response.Unauthorized(c, "Invalid authorization header format")
			}
			tokenString = parts[1]
		}
		if tokenString == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		if m.verifier != nil {
			claims, err := m.verifier.Validate(tokenString)
			if err == nil {
				setActor(c, claims.UserID, claims.Role())
				return c.Next()
			}
			if m.jwtSecret == "" {
				return response.Unauthorized(c, "Invalid or expired token")
			}
		}

		if m.jwtSecret != "" {
			claims, err := auth.ValidateLegacyToken(tokenString, m.jwtSecret)
			if err != nil || claims.UserID == "" {
				return response.Unauthorized(c, "Invalid or expired token")
			}
			setActor(c, claims.UserID, claims.Role)
			return c.Next()
		}

		return response.Unauthorized(c, "Authentication not configured")
	}
}

func setActor(c *fiber.Ctx, userID, role string) {
	switch role {
	case model.RoleAdmin, model.RoleSystem:
	default:
		role = model.RoleCleaner
	}
	c.Locals("userId", userID)
	c.Locals("role", role)
}

// RequireRole rejects actors whose role is not one of roles
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := GetRole(c)
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return response.Forbidden(c, "Insufficient role for this operation")
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetRole extracts the actor role from context
func GetRole(c *fiber.Ctx) string {
	if role, ok := c.Locals("role").(string); ok {
		return role
	}
	return ""
}
