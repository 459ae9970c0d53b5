package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postqueue/internal/api/handlers"
	"github.com/maheshrc27/postqueue/pkg/utils"
)

// OrganizationMiddleware binds each request to the organization named in its
// bearer token. Handlers read the binding through handlers.GetOrganizationID.
type OrganizationMiddleware struct {
	secretKey       string
	defaultTimezone string
}

func NewOrganizationMiddleware(secretKey, defaultTimezone string) *OrganizationMiddleware {
	return &OrganizationMiddleware{secretKey: secretKey, defaultTimezone: defaultTimezone}
}

func (m *OrganizationMiddleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		claims, err := utils.ValidateToken(m.secretKey, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		tz := claims.Timezone
		if tz == "" {
			tz = m.defaultTimezone
		}
		c.Locals(handlers.LocalOrganizationID, claims.OrganizationID)
		c.Locals(handlers.LocalTimezone, tz)
		return c.Next()
	}
}
