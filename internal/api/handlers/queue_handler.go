package handlers

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/queue"
	"github.com/maheshrc27/postqueue/internal/transfer"
)

type QueueHandler struct {
	managers queue.ManagerFactory
}

func NewQueueHandler(managers queue.ManagerFactory) *QueueHandler {
	return &QueueHandler{managers: managers}
}

func (h *QueueHandler) manager(c *fiber.Ctx) *queue.Manager {
	return h.managers(GetOrganizationID(c), GetTimezone(c))
}

func (h *QueueHandler) AddToQueue(c *fiber.Ctx) error {
	var req transfer.EnqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Unable to parse request body")
	}
	if req.ScheduledTime.IsZero() {
		return errorResponse(c, fiber.StatusBadRequest, "scheduled_time is required")
	}

	platforms := make([]models.Platform, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		platforms = append(platforms, models.Platform(p))
	}

	items, err := h.manager(c).AddToQueue(c.Context(), queue.PostRef{ID: req.PostID, Platforms: platforms},
		req.ScheduledTime, models.Priority(req.Priority))
	if err != nil {
		if len(items) == 0 {
			return queueError(c, err)
		}
		slog.Warn("post partially queued", "post_id", req.PostID, "error", err)
		return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
			"items": items,
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"items": items,
	})
}

func (h *QueueHandler) ListQueue(c *fiber.Ctx) error {
	filters := queue.QueueFilters{
		Priority: models.Priority(c.Query("priority")),
		PostID:   c.Query("post_id"),
		Limit:    c.QueryInt("limit", 0),
		Offset:   c.QueryInt("offset", 0),
	}
	for _, s := range splitList(c.Query("status")) {
		filters.Statuses = append(filters.Statuses, models.QueueStatus(s))
	}
	for _, p := range splitList(c.Query("platform")) {
		filters.Platforms = append(filters.Platforms, models.Platform(p))
	}

	var err error
	if filters.From, err = parseTimeQuery(c, "from"); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "from must be an RFC 3339 timestamp")
	}
	if filters.To, err = parseTimeQuery(c, "to"); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "to must be an RFC 3339 timestamp")
	}

	items, err := h.manager(c).GetQueuedPosts(c.Context(), filters)
	if err != nil {
		return queueError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(items)
}

func (h *QueueHandler) GetQueueItem(c *fiber.Ctx) error {
	item, err := h.manager(c).GetQueueItem(c.Context(), c.Params("id"))
	if err != nil {
		return queueError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(item)
}

func (h *QueueHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.manager(c).GetQueueStats(c.Context())
	if err != nil {
		return queueError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}

func (h *QueueHandler) BestTimes(c *fiber.Ctx) error {
	platform := models.Platform(c.Query("platform"))
	if platform == "" {
		return errorResponse(c, fiber.StatusBadRequest, "platform is required")
	}

	slots, err := h.manager(c).GetBestPostTimes(c.Context(), platform, c.QueryInt("days", 7))
	if err != nil {
		return queueError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(slots)
}

func (h *QueueHandler) Reschedule(c *fiber.Ctx) error {
	var req transfer.RescheduleRequest
	if err := c.BodyParser(&req); err != nil || req.ScheduledTime.IsZero() {
		return errorResponse(c, fiber.StatusBadRequest, "scheduled_time is required")
	}

	item, err := h.manager(c).ReschedulePost(c.Context(), c.Params("id"), req.ScheduledTime)
	if err != nil {
		return queueError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(item)
}

func (h *QueueHandler) UpdatePriority(c *fiber.Ctx) error {
	var req transfer.PriorityUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Unable to parse request body")
	}

	n, err := h.manager(c).BulkUpdatePriority(c.Context(), req.IDs, models.Priority(req.Priority))
	if err != nil {
		return queueError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.CountResponse{Count: n})
}

func (h *QueueHandler) Remove(c *fiber.Ctx) error {
	if err := h.manager(c).RemoveFromQueue(c.Context(), c.Params("id")); err != nil {
		return queueError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *QueueHandler) Process(c *fiber.Ctx) error {
	result, err := h.manager(c).ProcessQueue(c.Context())
	if err != nil {
		return queueError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *QueueHandler) ClearCompleted(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)
	if days < 0 {
		return errorResponse(c, fiber.StatusBadRequest, fmt.Sprintf("days must not be negative, got %d", days))
	}

	n, err := h.manager(c).ClearOldCompletedItems(c.Context(), days)
	if err != nil {
		return queueError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.CountResponse{Count: n})
}

// Register mounts the queue routes on router.
func (h *QueueHandler) Register(router fiber.Router) {
	router.Post("/queue", h.AddToQueue)
	router.Get("/queue", h.ListQueue)
	router.Get("/queue/stats", h.Stats)
	router.Get("/queue/best-times", h.BestTimes)
	router.Put("/queue/priority", h.UpdatePriority)
	router.Post("/queue/process", h.Process)
	router.Delete("/queue/completed", h.ClearCompleted)
	router.Get("/queue/:id", h.GetQueueItem)
	router.Put("/queue/:id/schedule", h.Reschedule)
	router.Delete("/queue/:id", h.Remove)
}
