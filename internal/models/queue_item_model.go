package models

import "time"

type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformTiktok    Platform = "tiktok"
	PlatformYoutube   Platform = "youtube"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{
	PlatformTwitter,
	PlatformLinkedIn,
	PlatformFacebook,
	PlatformInstagram,
	PlatformTiktok,
	PlatformYoutube,
}

func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

var QueueStatuses = []QueueStatus{
	QueueStatusPending,
	QueueStatusProcessing,
	QueueStatusCompleted,
	QueueStatusFailed,
}

func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusCompleted, QueueStatusFailed:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

var Priorities = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Rank orders priorities for tie-breaking; higher ranks are processed first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// QueueItem is one (post, platform) scheduling unit stored in post_queue.
type QueueItem struct {
	ID             string      `db:"id" json:"id"`
	PostID         string      `db:"post_id" json:"post_id"`
	OrganizationID string      `db:"organization_id" json:"organization_id"`
	Platform       Platform    `db:"platform" json:"platform"`
	ScheduledTime  time.Time   `db:"scheduled_time" json:"scheduled_time"`
	Timezone       string      `db:"timezone" json:"timezone"`
	Status         QueueStatus `db:"status" json:"status"`
	Priority       Priority    `db:"priority" json:"priority"`
	RetryCount     int         `db:"retry_count" json:"retry_count"`
	DeferralCount  int         `db:"deferral_count" json:"deferral_count"`
	ErrorMessage   *string     `db:"error_message" json:"error_message"`
	LastAttemptAt  *time.Time  `db:"last_attempt_at" json:"last_attempt_at"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}
