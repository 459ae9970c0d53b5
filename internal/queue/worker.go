package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// ManagerFactory builds a Manager bound to one organization.
type ManagerFactory func(organizationID, timezone string) *Manager

// Worker runs queue ticks delivered through asynq.
type Worker struct {
	managers ManagerFactory
	timezone string
}

func NewWorker(managers ManagerFactory, timezone string) *Worker {
	return &Worker{managers: managers, timezone: timezone}
}

func (w *Worker) HandleProcessQueueTask(ctx context.Context, task *asynq.Task) error {
	var payload ProcessQueuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decoding %s payload: %v: %w", TaskTypeProcessQueue, err, asynq.SkipRetry)
	}
	if payload.OrganizationID == "" {
		return fmt.Errorf("%s task without organization: %w", TaskTypeProcessQueue, asynq.SkipRetry)
	}

	_, err := w.Tick(ctx, payload.OrganizationID)
	return err
}

// Tick processes one organization's due items. A tick already running
// elsewhere is not an error.
func (w *Worker) Tick(ctx context.Context, organizationID string) (*ProcessResult, error) {
	manager := w.managers(organizationID, w.timezone)
	result, err := manager.ProcessQueue(ctx)
	if err != nil {
		if errors.Is(err, ErrTickInProgress) {
			slog.Debug("queue tick skipped, already running", "organization_id", organizationID)
			return nil, nil
		}
		slog.Error("queue tick failed", "organization_id", organizationID, "error", err)
		return nil, err
	}
	return result, nil
}
