package queue

import (
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
)

const (
	MaxRetryCount  = 3
	baseRetryDelay = 5 * time.Minute
)

// RetryDelay is the backoff before attempt retryCount: 2^retryCount * 5m.
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return time.Duration(1<<uint(retryCount)) * baseRetryDelay
}

// Transition is the state an item moves to after a publish attempt.
type Transition struct {
	Status        models.QueueStatus
	RetryCount    int
	ScheduledTime *time.Time
	ErrorMessage  *string
	RetryIn       time.Duration
}

// NextTransition computes where an item goes after a publish attempt. Only
// processing items move; anything else is returned unchanged. A failure
// that brings the retry count to MaxRetryCount is terminal.
func NextTransition(status models.QueueStatus, retryCount int, publishErr error, now time.Time) Transition {
	if status != models.QueueStatusProcessing {
		return Transition{Status: status, RetryCount: retryCount}
	}

	if publishErr == nil {
		return Transition{Status: models.QueueStatusCompleted, RetryCount: retryCount}
	}

	msg := publishErr.Error()
	next := retryCount + 1
	if next >= MaxRetryCount {
		return Transition{
			Status:       models.QueueStatusFailed,
			RetryCount:   min(next, MaxRetryCount),
			ErrorMessage: &msg,
		}
	}

	delay := RetryDelay(next)
	at := now.Add(delay)
	return Transition{
		Status:        models.QueueStatusPending,
		RetryCount:    next,
		ScheduledTime: &at,
		ErrorMessage:  &msg,
		RetryIn:       delay,
	}
}

func (t Transition) patch(now time.Time) repository.QueueItemPatch {
	status := t.Status
	retries := t.RetryCount
	p := repository.QueueItemPatch{
		Status:        &status,
		RetryCount:    &retries,
		ScheduledTime: t.ScheduledTime,
		ErrorMessage:  t.ErrorMessage,
		UpdatedAt:     now,
	}
	if t.Status == models.QueueStatusCompleted {
		p.ClearError = true
	}
	return p
}
