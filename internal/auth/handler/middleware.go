package handler

import (
	"strings"

	autherror "github.com/ansm0403/Shopping-mall/internal/errors"
	"github.com/gofiber/fiber/v2"
)

const localsClaimsKey = "claims"

// RequireAuth is the request guard: it extracts the bearer token, rejects
// blacklisted or invalid tokens, and attaches the verified claims to the
// request for downstream handlers.
func (h *AuthHandler) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return writeError(c, autherror.ErrInvalidToken.WithMessage("an authentication token is required"))
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := h.authService.VerifyAccessToken(c.Context(), token)
		if err != nil {
			return writeError(c, autherror.ErrInvalidToken)
		}

		c.Locals(localsClaimsKey, claims)

		return c.Next()
	}
}
