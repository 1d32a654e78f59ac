package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"favoro/config"
	"favoro/internal/common/response"
)

// RequireAuth accepts a bearer token, or a ?token= query parameter for
// websocket upgrades where the browser cannot set headers.
func RequireAuth(cfg config.AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")

		if authHeader := c.Get("Authorization"); authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return response.Unauthorized(c, "Invalid authorization header format")
			}
			token = tokenParts[1]
		}

		if token == "" {
			return response.Unauthorized(c, "Authorization header required")
		}

		claims, err := ValidateToken(token, cfg.Secret)
		if err != nil {
			return response.Unauthorized(c, "Invalid token")
		}

		c.Locals("clientID", claims.ClientID)

		return c.Next()
	}
}
