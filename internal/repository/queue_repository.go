package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
)

// QueueRepository is the record store behind the post queue. Every method
// that reads or writes rows takes a QueueFilter carrying the organization
// id, so tenant scoping is enforced here rather than left to callers.
type QueueRepository interface {
	Insert(ctx context.Context, item *models.QueueItem) (*models.QueueItem, error)
	Select(ctx context.Context, filter QueueFilter) ([]*models.QueueItem, error)
	Update(ctx context.Context, filter QueueFilter, patch QueueItemPatch) ([]*models.QueueItem, error)
	Delete(ctx context.Context, filter QueueFilter) ([]*models.QueueItem, error)
	Count(ctx context.Context, filter QueueFilter) (int, error)
	// ListDueOrganizations lists organizations with pending items due by now
	// or processing items claimed at or before claimedBefore.
	ListDueOrganizations(ctx context.Context, now, claimedBefore time.Time) ([]string, error)
	ListOrganizations(ctx context.Context) ([]string, error)
}

const queueColumns = `id, post_id, organization_id, platform, scheduled_time, timezone, status, priority,
	retry_count, deferral_count, error_message, last_attempt_at, created_at, updated_at`

const queueOrder = `ORDER BY scheduled_time ASC,
	CASE priority WHEN 'high' THEN 2 WHEN 'normal' THEN 1 ELSE 0 END DESC,
	created_at ASC, id ASC`

type queueRepository struct {
	db *sql.DB
}

func NewQueueRepository(db *sql.DB) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) Insert(ctx context.Context, item *models.QueueItem) (*models.QueueItem, error) {
	if item.OrganizationID == "" {
		return nil, ErrMissingOrganization
	}

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	query := `
		INSERT INTO post_queue (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + queueColumns

	row := r.db.QueryRowContext(ctx, query,
		item.ID,
		item.PostID,
		item.OrganizationID,
		string(item.Platform),
		item.ScheduledTime,
		item.Timezone,
		string(item.Status),
		string(item.Priority),
		item.RetryCount,
		item.DeferralCount,
		item.ErrorMessage,
		item.LastAttemptAt,
		item.CreatedAt,
		item.UpdatedAt,
	)

	created, err := scanQueueItem(row)
	if err != nil {
		slog.Info(err.Error())
		return nil, mapStoreError(err)
	}
	return created, nil
}

func (r *queueRepository) Select(ctx context.Context, filter QueueFilter) ([]*models.QueueItem, error) {
	query, args, err := buildSelect(filter)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	return scanQueueItems(rows)
}

func (r *queueRepository) Update(ctx context.Context, filter QueueFilter, patch QueueItemPatch) ([]*models.QueueItem, error) {
	query, args, err := buildUpdate(filter, patch)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	return scanQueueItems(rows)
}

func (r *queueRepository) Delete(ctx context.Context, filter QueueFilter) ([]*models.QueueItem, error) {
	where, args, err := filter.where(1)
	if err != nil {
		return nil, err
	}

	query := `DELETE FROM post_queue WHERE ` + where + ` RETURNING ` + queueColumns
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	return scanQueueItems(rows)
}

func (r *queueRepository) Count(ctx context.Context, filter QueueFilter) (int, error) {
	where, args, err := filter.where(1)
	if err != nil {
		return 0, err
	}

	var count int
	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM post_queue WHERE `+where, args...).Scan(&count)
	if err != nil {
		slog.Info(err.Error())
		return 0, mapStoreError(err)
	}
	return count, nil
}

func (r *queueRepository) ListDueOrganizations(ctx context.Context, now, claimedBefore time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT organization_id FROM post_queue
		WHERE (status = $1 AND scheduled_time <= $2)
		   OR (status = $3 AND last_attempt_at <= $4)`
	return r.listOrganizations(ctx, query,
		string(models.QueueStatusPending), now,
		string(models.QueueStatusProcessing), claimedBefore)
}

func (r *queueRepository) ListOrganizations(ctx context.Context) ([]string, error) {
	return r.listOrganizations(ctx, `SELECT DISTINCT organization_id FROM post_queue`)
}

func (r *queueRepository) listOrganizations(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	var orgs []string
	for rows.Next() {
		var org string
		if err := rows.Scan(&org); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func buildSelect(filter QueueFilter) (string, []interface{}, error) {
	where, args, err := filter.where(1)
	if err != nil {
		return "", nil, err
	}

	query := `SELECT ` + queueColumns + ` FROM post_queue WHERE ` + where + ` ` + queueOrder
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args, nil
}

// buildUpdate numbers the SET placeholders first and continues with the
// filter's.
func buildUpdate(filter QueueFilter, patch QueueItemPatch) (string, []interface{}, error) {
	var sets []string
	var args []interface{}
	set := func(column string, arg interface{}) {
		args = append(args, arg)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.ScheduledTime != nil {
		set("scheduled_time", *patch.ScheduledTime)
	}
	if patch.Priority != nil {
		set("priority", string(*patch.Priority))
	}
	if patch.RetryCount != nil {
		set("retry_count", *patch.RetryCount)
	}
	if patch.DeferralCount != nil {
		set("deferral_count", *patch.DeferralCount)
	}
	if patch.ClearError {
		sets = append(sets, "error_message = NULL")
	} else if patch.ErrorMessage != nil {
		set("error_message", *patch.ErrorMessage)
	}
	if patch.LastAttemptAt != nil {
		set("last_attempt_at", *patch.LastAttemptAt)
	}
	set("updated_at", patch.updatedAt())

	where, whereArgs, err := filter.where(len(args) + 1)
	if err != nil {
		return "", nil, err
	}
	args = append(args, whereArgs...)

	query := `UPDATE post_queue SET ` + strings.Join(sets, ", ") + ` WHERE ` + where + ` RETURNING ` + queueColumns
	return query, args, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var (
		item          models.QueueItem
		platform      string
		status        string
		priority      string
		errorMessage  sql.NullString
		lastAttemptAt sql.NullTime
	)

	err := row.Scan(&item.ID, &item.PostID, &item.OrganizationID, &platform, &item.ScheduledTime,
		&item.Timezone, &status, &priority, &item.RetryCount, &item.DeferralCount,
		&errorMessage, &lastAttemptAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	item.Platform = models.Platform(platform)
	item.Status = models.QueueStatus(status)
	item.Priority = models.Priority(priority)
	if errorMessage.Valid {
		item.ErrorMessage = &errorMessage.String
	}
	if lastAttemptAt.Valid {
		item.LastAttemptAt = &lastAttemptAt.Time
	}
	return &item, nil
}

func scanQueueItems(rows *sql.Rows) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, mapStoreError(err)
	}
	return items, nil
}
