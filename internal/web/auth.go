package web

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v3"
)

const bearerPrefix = "Bearer "

// TokenMiddleware rejects changing requests that do not carry token as bearer
// credentials. Reads stay open. An empty token disables the check.
func TokenMiddleware(token string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if token == "" || isReadOnlyMethod(c.Method()) {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, bearerPrefix) {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		given := strings.TrimPrefix(header, bearerPrefix)
		if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid bearer token")
		}

		return c.Next()
	}
}

func isReadOnlyMethod(method string) bool {
	switch method {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
		return true
	}

	return false
}
