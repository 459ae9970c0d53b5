package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postqueue/internal/queue"
	"github.com/maheshrc27/postqueue/internal/repository"
)

const concurrencyLimit = 10

// QueueSweepJob catches up on organizations whose items are due but whose
// scheduled tick never fired, or whose claims went stale, and prunes old
// completed items.
type QueueSweepJob struct {
	qr            repository.QueueRepository
	worker        *queue.Worker
	managers      queue.ManagerFactory
	timezone      string
	retentionDays int
	claimTimeout  time.Duration
	now           func() time.Time
}

func NewQueueSweepJob(
	qr repository.QueueRepository,
	worker *queue.Worker,
	managers queue.ManagerFactory,
	timezone string,
	retentionDays int,
	claimTimeout time.Duration) *QueueSweepJob {
	return &QueueSweepJob{
		qr:            qr,
		worker:        worker,
		managers:      managers,
		timezone:      timezone,
		retentionDays: retentionDays,
		claimTimeout:  claimTimeout,
		now:           time.Now,
	}
}

func (j *QueueSweepJob) ProcessDueQueues() {
	ctx := context.Background()

	now := j.now().UTC()
	orgs, err := j.qr.ListDueOrganizations(ctx, now, now.Add(-j.claimTimeout))
	if err != nil {
		if !repository.IsTableMissing(err) {
			slog.Info(err.Error())
		}
		return
	}

	j.forEach(orgs, func(org string) {
		result, err := j.worker.Tick(ctx, org)
		if err != nil {
			slog.Info("queue sweep failed", "organization_id", org, "error", err)
			return
		}
		if result != nil && len(result.Errors) > 0 {
			slog.Info("queue sweep finished with errors", "organization_id", org, "errors", len(result.Errors))
		}
	})
}

func (j *QueueSweepJob) ClearCompleted() {
	if j.retentionDays <= 0 {
		return
	}
	ctx := context.Background()

	orgs, err := j.qr.ListOrganizations(ctx)
	if err != nil {
		if !repository.IsTableMissing(err) {
			slog.Info(err.Error())
		}
		return
	}

	j.forEach(orgs, func(org string) {
		if _, err := j.managers(org, j.timezone).ClearOldCompletedItems(ctx, j.retentionDays); err != nil {
			slog.Info("queue retention failed", "organization_id", org, "error", err)
		}
	})
}

func (j *QueueSweepJob) forEach(orgs []string, fn func(org string)) {
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, org := range orgs {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(org string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			fn(org)
		}(org)
	}

	wg.Wait()
}
