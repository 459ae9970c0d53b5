package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Options struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// NewID generates queue item ids. Defaults to nanoid.
	NewID func() (string, error)

	// MaxDeferrals is how many times a tick may push an item back for rate
	// limiting before the item is failed. Zero means unbounded.
	MaxDeferrals int

	// ProcessBatch caps how many due items one tick fetches. Zero fetches all.
	ProcessBatch int

	Locker  Locker
	LockTTL time.Duration

	// ClaimTimeout is how long an item may sit in processing before a tick
	// treats the attempt as failed. Defaults to 15 minutes.
	ClaimTimeout time.Duration

	Scheduler TickScheduler
}

// Manager owns the post queue of one organization.
type Manager struct {
	organizationID string
	location       *time.Location
	queue          repository.QueueRepository
	posts          repository.PostRepository
	publisher      Publisher
	opts           Options
}

func NewManager(
	organizationID string,
	timezone string,
	queue repository.QueueRepository,
	posts repository.PostRepository,
	publisher Publisher,
	opts Options) *Manager {
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		if timezone != "" {
			slog.Warn("unknown timezone, falling back to UTC", "timezone", timezone, "error", err)
		}
		loc = time.UTC
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() (string, error) { return gonanoid.New() }
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = 15 * time.Minute
	}

	return &Manager{
		organizationID: organizationID,
		location:       loc,
		queue:          queue,
		posts:          posts,
		publisher:      publisher,
		opts:           opts,
	}
}

func (m *Manager) OrganizationID() string {
	return m.organizationID
}

func (m *Manager) Location() *time.Location {
	return m.location
}

func (m *Manager) now() time.Time {
	return m.opts.Now().UTC()
}

func (m *Manager) filter() repository.QueueFilter {
	return repository.QueueFilter{OrganizationID: m.organizationID}
}

func (m *Manager) checkOrganization() error {
	if m.organizationID == "" {
		return fmt.Errorf("queue manager has no organization context: %w", repository.ErrMissingOrganization)
	}
	return nil
}

// PostRef identifies the content to enqueue and where it goes.
type PostRef struct {
	ID        string
	Platforms []models.Platform
}

// AddToQueue creates one pending item per target platform. Platforms whose
// rate limit rejects scheduledTime are queued at the limiter's suggested
// time instead. A failed insert does not stop the remaining platforms; the
// created items are returned together with the joined insert errors.
func (m *Manager) AddToQueue(ctx context.Context, post PostRef, scheduledTime time.Time, priority models.Priority) ([]*models.QueueItem, error) {
	if err := m.checkOrganization(); err != nil {
		return nil, err
	}
	if post.ID == "" {
		return nil, fmt.Errorf("%w: post id is required", ErrInvalidPost)
	}
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, priority)
	}

	var platforms []models.Platform
	for _, p := range post.Platforms {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPlatform, p)
		}
		if !slices.Contains(platforms, p) {
			platforms = append(platforms, p)
		}
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: post %s has no target platforms", ErrInvalidPost, post.ID)
	}

	scheduledTime = scheduledTime.UTC()
	created := make([]*models.QueueItem, 0, len(platforms))
	var errs []error

	for _, platform := range platforms {
		at := scheduledTime
		admission := m.admitScheduled(ctx, platform, scheduledTime)
		if !admission.Allowed {
			slog.Info("rate limit moved queue item",
				"organization_id", m.organizationID,
				"post_id", post.ID,
				"platform", platform,
				"requested", scheduledTime,
				"scheduled", admission.SuggestedTime,
				"reason", admission.Reason)
			at = admission.SuggestedTime
		}

		id, err := m.opts.NewID()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: generating id: %w", platform, err))
			continue
		}

		now := m.now()
		item, err := m.queue.Insert(ctx, &models.QueueItem{
			ID:             id,
			PostID:         post.ID,
			OrganizationID: m.organizationID,
			Platform:       platform,
			ScheduledTime:  at,
			Timezone:       m.location.String(),
			Status:         models.QueueStatusPending,
			Priority:       priority,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			slog.Error("failed to queue post", "post_id", post.ID, "platform", platform, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", platform, err))
			continue
		}

		created = append(created, item)
		m.scheduleTick(ctx, at)
	}

	return created, errors.Join(errs...)
}

// RemoveFromQueue deletes an item. Unknown ids are not an error.
func (m *Manager) RemoveFromQueue(ctx context.Context, id string) error {
	if err := m.checkOrganization(); err != nil {
		return err
	}

	f := m.filter()
	f.IDs = []string{id}
	if _, err := m.queue.Delete(ctx, f); err != nil {
		if repository.IsTableMissing(err) {
			return nil
		}
		return fmt.Errorf("removing queue item %s: %w", id, err)
	}
	return nil
}

// QueueFilters narrows GetQueuedPosts. Empty fields match everything.
type QueueFilters struct {
	Statuses  []models.QueueStatus
	Platforms []models.Platform
	Priority  models.Priority
	PostID    string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// GetQueuedPosts lists the organization's items ordered by scheduled time,
// then priority (high first).
func (m *Manager) GetQueuedPosts(ctx context.Context, filters QueueFilters) ([]*models.QueueItem, error) {
	if err := m.checkOrganization(); err != nil {
		return nil, err
	}

	f := m.filter()
	for _, s := range filters.Statuses {
		if !s.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
		}
	}
	for _, p := range filters.Platforms {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPlatform, p)
		}
	}
	if filters.Priority != "" {
		if !filters.Priority.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, filters.Priority)
		}
		f.Priorities = []models.Priority{filters.Priority}
	}
	f.Statuses = filters.Statuses
	f.Platforms = filters.Platforms
	f.PostID = filters.PostID
	f.ScheduledFrom = filters.From
	f.ScheduledTo = filters.To
	f.Limit = filters.Limit
	f.Offset = filters.Offset

	items, err := m.queue.Select(ctx, f)
	if err != nil {
		if repository.IsTableMissing(err) {
			return []*models.QueueItem{}, nil
		}
		return nil, fmt.Errorf("listing queue items: %w", err)
	}
	if items == nil {
		items = []*models.QueueItem{}
	}
	return items, nil
}

func (m *Manager) GetQueueItem(ctx context.Context, id string) (*models.QueueItem, error) {
	if err := m.checkOrganization(); err != nil {
		return nil, err
	}

	f := m.filter()
	f.IDs = []string{id}
	items, err := m.queue.Select(ctx, f)
	if err != nil {
		if repository.IsTableMissing(err) {
			return nil, ErrQueueItemNotFound
		}
		return nil, fmt.Errorf("loading queue item %s: %w", id, err)
	}
	if len(items) == 0 {
		return nil, ErrQueueItemNotFound
	}
	return items[0], nil
}

// ReschedulePost moves an item to newTime and puts it back into pending,
// whatever its current status.
func (m *Manager) ReschedulePost(ctx context.Context, id string, newTime time.Time) (*models.QueueItem, error) {
	if err := m.checkOrganization(); err != nil {
		return nil, err
	}
	return m.reschedule(ctx, id, newTime.UTC(), 0)
}

func (m *Manager) reschedule(ctx context.Context, id string, at time.Time, deferrals int) (*models.QueueItem, error) {
	status := models.QueueStatusPending
	f := m.filter()
	f.IDs = []string{id}

	items, err := m.queue.Update(ctx, f, repository.QueueItemPatch{
		Status:        &status,
		ScheduledTime: &at,
		DeferralCount: &deferrals,
		UpdatedAt:     m.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("rescheduling queue item %s: %w", id, err)
	}
	if len(items) == 0 {
		return nil, ErrQueueItemNotFound
	}

	m.scheduleTick(ctx, at)
	return items[0], nil
}

// BulkUpdatePriority sets priority on every listed item and returns how many
// rows changed.
func (m *Manager) BulkUpdatePriority(ctx context.Context, ids []string, priority models.Priority) (int, error) {
	if err := m.checkOrganization(); err != nil {
		return 0, err
	}
	if !priority.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, priority)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	f := m.filter()
	f.IDs = ids
	items, err := m.queue.Update(ctx, f, repository.QueueItemPatch{
		Priority:  &priority,
		UpdatedAt: m.now(),
	})
	if err != nil {
		if repository.IsTableMissing(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("updating priority: %w", err)
	}
	return len(items), nil
}

// ClearOldCompletedItems deletes completed items last updated more than
// daysOld days ago.
func (m *Manager) ClearOldCompletedItems(ctx context.Context, daysOld int) (int, error) {
	if err := m.checkOrganization(); err != nil {
		return 0, err
	}
	if daysOld < 0 {
		return 0, fmt.Errorf("days must not be negative, got %d", daysOld)
	}

	cutoff := m.now().AddDate(0, 0, -daysOld)
	f := m.filter()
	f.Statuses = []models.QueueStatus{models.QueueStatusCompleted}
	f.UpdatedBefore = &cutoff

	deleted, err := m.queue.Delete(ctx, f)
	if err != nil {
		if repository.IsTableMissing(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("clearing completed items: %w", err)
	}

	if len(deleted) > 0 {
		slog.Info("cleared completed queue items", "organization_id", m.organizationID, "count", len(deleted))
	}
	return len(deleted), nil
}

func (m *Manager) scheduleTick(ctx context.Context, at time.Time) {
	if m.opts.Scheduler == nil {
		return
	}
	if err := m.opts.Scheduler.ScheduleTick(ctx, m.organizationID, at); err != nil {
		slog.Warn("failed to schedule queue tick", "organization_id", m.organizationID, "at", at, "error", err)
	}
}
