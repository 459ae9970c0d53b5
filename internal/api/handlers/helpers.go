package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postqueue/internal/queue"
	"github.com/maheshrc27/postqueue/internal/repository"
)

const (
	LocalOrganizationID = "organization_id"
	LocalTimezone       = "timezone"
)

func GetOrganizationID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalOrganizationID).(string)
	return id
}

func GetTimezone(c *fiber.Ctx) string {
	tz, _ := c.Locals(LocalTimezone).(string)
	return tz
}

func errorResponse(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

// queueError maps manager errors onto HTTP statuses.
func queueError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, queue.ErrInvalidPlatform),
		errors.Is(err, queue.ErrInvalidPriority),
		errors.Is(err, queue.ErrInvalidStatus),
		errors.Is(err, queue.ErrInvalidPost):
		return errorResponse(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrMissingOrganization):
		return errorResponse(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, queue.ErrQueueItemNotFound):
		return errorResponse(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrTickInProgress):
		return errorResponse(c, fiber.StatusConflict, err.Error())
	}
	return errorResponse(c, fiber.StatusInternalServerError, err.Error())
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTimeQuery(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
