package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelect(t *testing.T) {
	t.Run("no paging", func(t *testing.T) {
		query, args, err := buildSelect(QueueFilter{OrganizationID: "org-a", PostID: "p1"})
		require.NoError(t, err)
		assert.Equal(t, "SELECT "+queueColumns+" FROM post_queue WHERE organization_id = $1 AND post_id = $2 "+queueOrder, query)
		assert.Equal(t, []interface{}{"org-a", "p1"}, args)
	})

	t.Run("limit and offset follow the filter", func(t *testing.T) {
		to := t0
		query, args, err := buildSelect(QueueFilter{
			OrganizationID: "org-a",
			Platforms:      []models.Platform{models.PlatformTwitter},
			ScheduledTo:    &to,
			Limit:          20,
			Offset:         40,
		})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(query, queueOrder+" LIMIT $4 OFFSET $5"), query)
		assert.Contains(t, query, "WHERE organization_id = $1 AND platform = ANY($2) AND scheduled_time <= $3 ")
		require.Len(t, args, 5)
		assert.Equal(t, pq.Array([]string{"twitter"}), args[1])
		assert.Equal(t, t0, args[2])
		assert.Equal(t, 20, args[3])
		assert.Equal(t, 40, args[4])
	})

	t.Run("offset without limit", func(t *testing.T) {
		query, args, err := buildSelect(QueueFilter{OrganizationID: "org-a", Offset: 10})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(query, " OFFSET $2"), query)
		assert.NotContains(t, query, "LIMIT")
		assert.Equal(t, []interface{}{"org-a", 10}, args)
	})

	t.Run("unscoped", func(t *testing.T) {
		_, _, err := buildSelect(QueueFilter{Limit: 5})
		assert.ErrorIs(t, err, ErrMissingOrganization)
	})
}

func TestBuildUpdate(t *testing.T) {
	t.Run("set placeholders precede the filter", func(t *testing.T) {
		status := models.QueueStatusPending
		retries := 2
		msg := "rate limited"
		at := t0.Add(10 * time.Minute)

		query, args, err := buildUpdate(
			QueueFilter{OrganizationID: "org-a", IDs: []string{"q1"}, Statuses: []models.QueueStatus{models.QueueStatusProcessing}},
			QueueItemPatch{Status: &status, ScheduledTime: &at, RetryCount: &retries, ErrorMessage: &msg, UpdatedAt: t0},
		)
		require.NoError(t, err)
		assert.Equal(t, "UPDATE post_queue SET status = $1, scheduled_time = $2, retry_count = $3, error_message = $4, updated_at = $5"+
			" WHERE organization_id = $6 AND id = ANY($7) AND status = ANY($8) RETURNING "+queueColumns, query)
		assert.Equal(t, []interface{}{
			"pending", at, 2, "rate limited", t0,
			"org-a", pq.Array([]string{"q1"}), pq.Array([]string{"processing"}),
		}, args)
	})

	t.Run("clearing the error takes no placeholder", func(t *testing.T) {
		msg := "ignored"
		priority := models.PriorityHigh
		query, args, err := buildUpdate(
			QueueFilter{OrganizationID: "org-b"},
			QueueItemPatch{Priority: &priority, ClearError: true, ErrorMessage: &msg, UpdatedAt: t0},
		)
		require.NoError(t, err)
		assert.Contains(t, query, "SET priority = $1, error_message = NULL, updated_at = $2 WHERE organization_id = $3 ")
		assert.Equal(t, []interface{}{"high", t0, "org-b"}, args)
	})

	t.Run("updated_at defaults to now", func(t *testing.T) {
		before := time.Now().UTC()
		query, args, err := buildUpdate(QueueFilter{OrganizationID: "org-a"}, QueueItemPatch{})
		require.NoError(t, err)
		assert.Contains(t, query, "SET updated_at = $1 WHERE organization_id = $2 ")
		require.Len(t, args, 2)
		stamp, ok := args[0].(time.Time)
		require.True(t, ok)
		assert.False(t, stamp.Before(before))
	})

	t.Run("unscoped", func(t *testing.T) {
		_, _, err := buildUpdate(QueueFilter{}, QueueItemPatch{})
		assert.ErrorIs(t, err, ErrMissingOrganization)
	})
}
