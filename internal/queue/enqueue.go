package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// AsynqTickScheduler enqueues a queue:process task to fire at the time an
// item becomes due. Task ids are bucketed per organization and minute, so
// many items due together produce one tick.
type AsynqTickScheduler struct {
	client *asynq.Client
}

func NewAsynqTickScheduler(client *asynq.Client) *AsynqTickScheduler {
	return &AsynqTickScheduler{client: client}
}

func (s *AsynqTickScheduler) ScheduleTick(ctx context.Context, organizationID string, at time.Time) error {
	payload, err := json.Marshal(ProcessQueuePayload{OrganizationID: organizationID})
	if err != nil {
		return err
	}

	minute := at.Truncate(time.Minute)
	if at.After(minute) {
		minute = minute.Add(time.Minute)
	}

	task := asynq.NewTask(TaskTypeProcessQueue, payload)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(minute),
		asynq.TaskID(fmt.Sprintf("tick:%s:%d", organizationID, minute.Unix())),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return err
	}

	slog.Debug("queue tick scheduled", "organization_id", organizationID, "at", minute)
	return nil
}
