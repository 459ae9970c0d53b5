package repository

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postqueue/internal/models"
)

// QueueFilter selects post_queue rows. OrganizationID is mandatory; every
// other field narrows the selection when set. Limit and Offset only apply
// to Select.
type QueueFilter struct {
	OrganizationID string
	IDs            []string
	ExcludeIDs     []string
	PostID         string
	Statuses       []models.QueueStatus
	Platforms      []models.Platform
	Priorities     []models.Priority
	ScheduledFrom  *time.Time
	ScheduledTo    *time.Time
	AttemptedFrom  *time.Time
	AttemptedTo    *time.Time
	UpdatedBefore  *time.Time
	Limit          int
	Offset         int
}

// QueueItemPatch describes the columns an Update changes. Nil fields are
// left untouched. A zero UpdatedAt is replaced by the current time.
type QueueItemPatch struct {
	Status        *models.QueueStatus
	ScheduledTime *time.Time
	Priority      *models.Priority
	RetryCount    *int
	DeferralCount *int
	ErrorMessage  *string
	ClearError    bool
	LastAttemptAt *time.Time
	UpdatedAt     time.Time
}

// where renders the filter as a SQL condition with placeholders starting at
// $start.
func (f QueueFilter) where(start int) (string, []interface{}, error) {
	if f.OrganizationID == "" {
		return "", nil, ErrMissingOrganization
	}

	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, start+len(args)-1))
	}

	add("organization_id = $%d", f.OrganizationID)
	if len(f.IDs) > 0 {
		add("id = ANY($%d)", pq.Array(f.IDs))
	}
	if len(f.ExcludeIDs) > 0 {
		add("NOT (id = ANY($%d))", pq.Array(f.ExcludeIDs))
	}
	if f.PostID != "" {
		add("post_id = $%d", f.PostID)
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", pq.Array(toStrings(f.Statuses)))
	}
	if len(f.Platforms) > 0 {
		add("platform = ANY($%d)", pq.Array(toStrings(f.Platforms)))
	}
	if len(f.Priorities) > 0 {
		add("priority = ANY($%d)", pq.Array(toStrings(f.Priorities)))
	}
	if f.ScheduledFrom != nil {
		add("scheduled_time >= $%d", *f.ScheduledFrom)
	}
	if f.ScheduledTo != nil {
		add("scheduled_time <= $%d", *f.ScheduledTo)
	}
	if f.AttemptedFrom != nil {
		add("last_attempt_at >= $%d", *f.AttemptedFrom)
	}
	if f.AttemptedTo != nil {
		add("last_attempt_at <= $%d", *f.AttemptedTo)
	}
	if f.UpdatedBefore != nil {
		add("updated_at < $%d", *f.UpdatedBefore)
	}

	return strings.Join(conds, " AND "), args, nil
}

// match is the in-memory twin of where.
func (f QueueFilter) match(item *models.QueueItem) bool {
	if item.OrganizationID != f.OrganizationID {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, item.ID) {
		return false
	}
	if slices.Contains(f.ExcludeIDs, item.ID) {
		return false
	}
	if f.PostID != "" && item.PostID != f.PostID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, item.Status) {
		return false
	}
	if len(f.Platforms) > 0 && !slices.Contains(f.Platforms, item.Platform) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, item.Priority) {
		return false
	}
	if f.ScheduledFrom != nil && item.ScheduledTime.Before(*f.ScheduledFrom) {
		return false
	}
	if f.ScheduledTo != nil && item.ScheduledTime.After(*f.ScheduledTo) {
		return false
	}
	if f.AttemptedFrom != nil && (item.LastAttemptAt == nil || item.LastAttemptAt.Before(*f.AttemptedFrom)) {
		return false
	}
	if f.AttemptedTo != nil && (item.LastAttemptAt == nil || item.LastAttemptAt.After(*f.AttemptedTo)) {
		return false
	}
	if f.UpdatedBefore != nil && !item.UpdatedAt.Before(*f.UpdatedBefore) {
		return false
	}
	return true
}

func (p QueueItemPatch) apply(item *models.QueueItem) {
	if p.Status != nil {
		item.Status = *p.Status
	}
	if p.ScheduledTime != nil {
		item.ScheduledTime = *p.ScheduledTime
	}
	if p.Priority != nil {
		item.Priority = *p.Priority
	}
	if p.RetryCount != nil {
		item.RetryCount = *p.RetryCount
	}
	if p.DeferralCount != nil {
		item.DeferralCount = *p.DeferralCount
	}
	if p.ClearError {
		item.ErrorMessage = nil
	} else if p.ErrorMessage != nil {
		msg := *p.ErrorMessage
		item.ErrorMessage = &msg
	}
	if p.LastAttemptAt != nil {
		at := *p.LastAttemptAt
		item.LastAttemptAt = &at
	}
	item.UpdatedAt = p.updatedAt()
}

func (p QueueItemPatch) updatedAt() time.Time {
	if p.UpdatedAt.IsZero() {
		return time.Now().UTC()
	}
	return p.UpdatedAt
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
