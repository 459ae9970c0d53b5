package queue

import (
	"context"
	"errors"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
)

const TaskTypeProcessQueue = "queue:process"

type ProcessQueuePayload struct {
	OrganizationID string `json:"organization_id"`
}

var (
	ErrQueueItemNotFound = errors.New("queue item not found")
	ErrInvalidPlatform   = errors.New("invalid platform")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidPost       = errors.New("invalid post")
	ErrTickInProgress    = errors.New("queue tick already running for organization")
	ErrNoPublisher       = errors.New("no publisher configured")
	ErrClaimExpired      = errors.New("publish outcome never recorded")
)

// Publisher pushes a queue item's content to its platform. A nil error
// means the post is live.
type Publisher interface {
	Publish(ctx context.Context, item *models.QueueItem) error
}

// Locker guards a tick so only one worker processes an organization at a
// time. ok is false when someone else holds the lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// TickScheduler arranges for a tick to run for an organization at a given
// time. Implementations may coalesce requests.
type TickScheduler interface {
	ScheduleTick(ctx context.Context, organizationID string, at time.Time) error
}

func tickLockKey(organizationID string) string {
	return "postqueue:tick:" + organizationID
}
