package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postqueue/internal/metrics"
	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
)

// ProcessResult summarizes one tick. Processed and Failed count items that
// reached completed and terminal failed during the tick.
type ProcessResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Retried   int      `json:"retried"`
	Deferred  int      `json:"deferred"`
	Recovered int      `json:"recovered"`
	Errors    []string `json:"errors"`
}

func (r *ProcessResult) note(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// ProcessQueue runs one tick: every pending item that is due is admitted,
// claimed, published and moved along its state machine. A failure on one
// item never stops the others.
func (m *Manager) ProcessQueue(ctx context.Context) (*ProcessResult, error) {
	if err := m.checkOrganization(); err != nil {
		return nil, err
	}

	if m.opts.Locker != nil {
		unlock, ok, err := m.opts.Locker.TryLock(ctx, tickLockKey(m.organizationID), m.opts.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquiring tick lock: %w", err)
		}
		if !ok {
			return nil, ErrTickInProgress
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("failed to release tick lock", "organization_id", m.organizationID, "error", err)
			}
		}()
	}

	start := time.Now()
	defer func() { metrics.ObserveTick(time.Since(start)) }()

	result := &ProcessResult{Errors: []string{}}
	if err := m.recoverStaleClaims(ctx, result); err != nil {
		return nil, err
	}

	now := m.now()
	due, err := m.GetQueuedPosts(ctx, QueueFilters{
		Statuses: []models.QueueStatus{models.QueueStatusPending},
		To:       &now,
		Limit:    m.opts.ProcessBatch,
	})
	if err != nil {
		return nil, err
	}

	for _, item := range due {
		if ctx.Err() != nil {
			result.note("tick interrupted: %v", ctx.Err())
			break
		}
		m.processItem(ctx, item, result)
	}

	if len(due) > 0 || result.Recovered > 0 {
		slog.Info("queue tick finished",
			"organization_id", m.organizationID,
			"due", len(due),
			"recovered", result.Recovered,
			"processed", result.Processed,
			"retried", result.Retried,
			"deferred", result.Deferred,
			"failed", result.Failed)
	}
	return result, nil
}

func (m *Manager) processItem(ctx context.Context, item *models.QueueItem, result *ProcessResult) {
	now := m.now()

	admission := m.admitDispatch(ctx, item, now)
	if !admission.Allowed {
		m.deferItem(ctx, item, admission, result)
		return
	}

	claimed, err := m.claim(ctx, item, now)
	if err != nil {
		result.note("%s item %s: claim failed: %v", item.Platform, item.ID, err)
		return
	}
	if claimed == nil {
		slog.Debug("queue item claimed elsewhere", "id", item.ID)
		return
	}

	publishErr := m.publish(ctx, claimed)
	finished := m.now()
	t := NextTransition(claimed.Status, claimed.RetryCount, publishErr, finished)

	f := m.filter()
	f.IDs = []string{claimed.ID}
	f.Statuses = []models.QueueStatus{models.QueueStatusProcessing}
	if _, err := m.queue.Update(ctx, f, t.patch(finished)); err != nil {
		slog.Error("failed to record publish outcome", "id", claimed.ID, "status", t.Status, "error", err)
		result.note("%s item %s: recording %s failed: %v", claimed.Platform, claimed.ID, t.Status, err)
		return
	}

	switch t.Status {
	case models.QueueStatusCompleted:
		result.Processed++
		metrics.RecordItem(claimed.Platform, "completed")
		m.markPostPublished(ctx, claimed, finished, result)
	case models.QueueStatusPending:
		result.Retried++
		metrics.RecordItem(claimed.Platform, "retried")
		result.note("%s item %s: publish failed, retry %d/%d in %s: %v",
			claimed.Platform, claimed.ID, t.RetryCount, MaxRetryCount, t.RetryIn, publishErr)
		m.scheduleTick(ctx, *t.ScheduledTime)
	case models.QueueStatusFailed:
		result.Failed++
		metrics.RecordItem(claimed.Platform, "failed")
		result.note("%s item %s: permanently failed after %d attempts: %v",
			claimed.Platform, claimed.ID, t.RetryCount, publishErr)
	}
}

// RecoverStaleClaims fails the attempt of every item that has been in
// processing longer than the claim timeout, the same way a publish error
// would. It returns how many items were released.
func (m *Manager) RecoverStaleClaims(ctx context.Context) (int, error) {
	if err := m.checkOrganization(); err != nil {
		return 0, err
	}
	result := &ProcessResult{Errors: []string{}}
	if err := m.recoverStaleClaims(ctx, result); err != nil {
		return 0, err
	}
	return result.Recovered, nil
}

func (m *Manager) recoverStaleClaims(ctx context.Context, result *ProcessResult) error {
	now := m.now()
	cutoff := now.Add(-m.opts.ClaimTimeout)

	f := m.filter()
	f.Statuses = []models.QueueStatus{models.QueueStatusProcessing}
	f.AttemptedTo = &cutoff

	stale, err := m.queue.Select(ctx, f)
	if err != nil {
		if repository.IsTableMissing(err) {
			return nil
		}
		return err
	}

	for _, item := range stale {
		claimErr := fmt.Errorf("%w within %s", ErrClaimExpired, m.opts.ClaimTimeout)
		t := NextTransition(item.Status, item.RetryCount, claimErr, now)

		sf := m.filter()
		sf.IDs = []string{item.ID}
		sf.Statuses = []models.QueueStatus{models.QueueStatusProcessing}
		sf.AttemptedTo = &cutoff
		released, err := m.queue.Update(ctx, sf, t.patch(now))
		if err != nil {
			result.note("%s item %s: releasing stale claim failed: %v", item.Platform, item.ID, err)
			continue
		}
		if len(released) == 0 {
			continue
		}

		result.Recovered++
		metrics.RecordItem(item.Platform, "recovered")
		slog.Warn("released stale queue claim",
			"organization_id", m.organizationID,
			"id", item.ID,
			"platform", item.Platform,
			"claimed_at", item.LastAttemptAt,
			"status", t.Status)

		switch t.Status {
		case models.QueueStatusPending:
			result.note("%s item %s: %v, retry %d/%d in %s",
				item.Platform, item.ID, claimErr, t.RetryCount, MaxRetryCount, t.RetryIn)
			m.scheduleTick(ctx, *t.ScheduledTime)
		case models.QueueStatusFailed:
			result.Failed++
			result.note("%s item %s: %v, permanently failed after %d attempts",
				item.Platform, item.ID, claimErr, t.RetryCount)
		}
	}
	return nil
}

// claim moves the item from pending to processing. A nil item without error
// means another worker got there first.
func (m *Manager) claim(ctx context.Context, item *models.QueueItem, now time.Time) (*models.QueueItem, error) {
	status := models.QueueStatusProcessing
	f := m.filter()
	f.IDs = []string{item.ID}
	f.Statuses = []models.QueueStatus{models.QueueStatusPending}

	items, err := m.queue.Update(ctx, f, repository.QueueItemPatch{
		Status:        &status,
		LastAttemptAt: &now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func (m *Manager) publish(ctx context.Context, item *models.QueueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("publisher panicked", "id", item.ID, "platform", item.Platform, "panic", r)
			err = fmt.Errorf("publisher panicked: %v", r)
		}
	}()

	if m.publisher == nil {
		return ErrNoPublisher
	}
	return m.publisher.Publish(ctx, item)
}

func (m *Manager) deferItem(ctx context.Context, item *models.QueueItem, admission Admission, result *ProcessResult) {
	if m.opts.MaxDeferrals > 0 && item.DeferralCount >= m.opts.MaxDeferrals {
		status := models.QueueStatusFailed
		msg := fmt.Sprintf("deferred %d times by %s rate limit: %s", item.DeferralCount, item.Platform, admission.Reason)
		f := m.filter()
		f.IDs = []string{item.ID}
		f.Statuses = []models.QueueStatus{models.QueueStatusPending}
		if _, err := m.queue.Update(ctx, f, repository.QueueItemPatch{
			Status:       &status,
			ErrorMessage: &msg,
			UpdatedAt:    m.now(),
		}); err != nil {
			result.note("%s item %s: failing starved item: %v", item.Platform, item.ID, err)
			return
		}
		result.Failed++
		metrics.RecordItem(item.Platform, "starved")
		result.note("%s item %s: %s", item.Platform, item.ID, msg)
		return
	}

	if _, err := m.reschedule(ctx, item.ID, admission.SuggestedTime, item.DeferralCount+1); err != nil {
		result.note("%s item %s: deferral failed: %v", item.Platform, item.ID, err)
		return
	}
	result.Deferred++
	metrics.RecordItem(item.Platform, "deferred")
	result.note("%s item %s: rate limited (%s), moved to %s",
		item.Platform, item.ID, admission.Reason, admission.SuggestedTime.In(m.location).Format(time.RFC3339))
}

func (m *Manager) markPostPublished(ctx context.Context, item *models.QueueItem, at time.Time, result *ProcessResult) {
	if m.posts == nil {
		return
	}
	if err := m.posts.MarkPublished(ctx, m.organizationID, item.PostID, at); err != nil {
		if repository.IsTableMissing(err) {
			return
		}
		slog.Error("failed to mark post published", "post_id", item.PostID, "error", err)
		result.note("post %s: published on %s but status update failed: %v", item.PostID, item.Platform, err)
	}
}
