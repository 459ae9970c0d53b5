package queue

import (
	"context"
	"testing"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddToQueueCreatesOneItemPerPlatform(t *testing.T) {
	e := newEnv()
	m := e.manager(orgA, func(o *Options) { o.NewID = sequentialIDs() })
	at := baseTime.Add(time.Hour)

	items, err := m.AddToQueue(context.Background(), PostRef{
		ID:        "post-1",
		Platforms: []models.Platform{models.PlatformTwitter, models.PlatformLinkedIn, models.PlatformTwitter, models.PlatformFacebook},
	}, at, "")
	require.NoError(t, err)
	require.Len(t, items, 3)

	seen := map[models.Platform]bool{}
	for _, item := range items {
		seen[item.Platform] = true
		assert.Equal(t, "post-1", item.PostID)
		assert.Equal(t, orgA, item.OrganizationID)
		assert.Equal(t, models.QueueStatusPending, item.Status)
		assert.Equal(t, models.PriorityNormal, item.Priority)
		assert.Equal(t, 0, item.RetryCount)
		assert.True(t, item.ScheduledTime.Equal(at))
		assert.NotEmpty(t, item.ID)
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, "q001", items[0].ID)
	assert.Equal(t, models.PlatformTwitter, items[0].Platform)
	assert.Equal(t, "q003", items[2].ID)
	assert.Len(t, e.scheduler.ticks, 3)
}

func TestAddToQueueValidation(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	_, err := e.manager(orgA).AddToQueue(ctx, PostRef{ID: "p", Platforms: []models.Platform{"myspace"}}, baseTime, "")
	assert.ErrorIs(t, err, ErrInvalidPlatform)

	_, err = e.manager(orgA).AddToQueue(ctx, PostRef{ID: "p", Platforms: []models.Platform{models.PlatformTwitter}}, baseTime, "urgent")
	assert.ErrorIs(t, err, ErrInvalidPriority)

	_, err = e.manager(orgA).AddToQueue(ctx, PostRef{ID: "p"}, baseTime, "")
	assert.ErrorIs(t, err, ErrInvalidPost)

	_, err = e.manager("").AddToQueue(ctx, PostRef{ID: "p", Platforms: []models.Platform{models.PlatformTwitter}}, baseTime, "")
	assert.ErrorIs(t, err, repository.ErrMissingOrganization)
}

func TestAddToQueueReschedulesRateLimitedPlatforms(t *testing.T) {
	e := newEnv()
	m := e.manager(orgA)
	e.seed(t, models.QueueItem{ID: "existing", Platform: models.PlatformYoutube, ScheduledTime: baseTime})

	items, err := m.AddToQueue(context.Background(), PostRef{
		ID:        "post-2",
		Platforms: []models.Platform{models.PlatformYoutube, models.PlatformTwitter},
	}, baseTime.Add(10*time.Minute), models.PriorityHigh)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byPlatform := map[models.Platform]*models.QueueItem{}
	for _, item := range items {
		byPlatform[item.Platform] = item
	}
	// youtube needs an hour between posts
	assert.True(t, byPlatform[models.PlatformYoutube].ScheduledTime.Equal(baseTime.Add(time.Hour)))
	assert.True(t, byPlatform[models.PlatformTwitter].ScheduledTime.Equal(baseTime.Add(10*time.Minute)))
}

func TestGetQueuedPostsOrdering(t *testing.T) {
	e := newEnv()
	at := baseTime.Add(time.Hour)
	e.seed(t, models.QueueItem{ID: "low", Platform: models.PlatformTwitter, ScheduledTime: at, Priority: models.PriorityLow})
	e.seed(t, models.QueueItem{ID: "later", Platform: models.PlatformTwitter, ScheduledTime: at.Add(time.Minute), Priority: models.PriorityHigh})
	e.seed(t, models.QueueItem{ID: "high", Platform: models.PlatformLinkedIn, ScheduledTime: at, Priority: models.PriorityHigh})
	e.seed(t, models.QueueItem{ID: "normal", Platform: models.PlatformFacebook, ScheduledTime: at, Priority: models.PriorityNormal})
	e.seed(t, models.QueueItem{ID: "earliest", Platform: models.PlatformTwitter, ScheduledTime: at.Add(-time.Minute), Priority: models.PriorityLow})

	items, err := e.manager(orgA).GetQueuedPosts(context.Background(), QueueFilters{})
	require.NoError(t, err)

	var ids []string
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{"earliest", "high", "normal", "low", "later"}, ids)
}

func TestGetQueuedPostsFilters(t *testing.T) {
	e := newEnv()
	e.seed(t, models.QueueItem{ID: "a", Platform: models.PlatformTwitter, ScheduledTime: baseTime})
	e.seed(t, models.QueueItem{ID: "b", Platform: models.PlatformTwitter, ScheduledTime: baseTime.Add(time.Hour), Status: models.QueueStatusFailed})
	e.seed(t, models.QueueItem{ID: "c", Platform: models.PlatformTiktok, ScheduledTime: baseTime.Add(2 * time.Hour), Priority: models.PriorityHigh})
	m := e.manager(orgA)
	ctx := context.Background()

	items, err := m.GetQueuedPosts(ctx, QueueFilters{Platforms: []models.Platform{models.PlatformTwitter}})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = m.GetQueuedPosts(ctx, QueueFilters{Statuses: []models.QueueStatus{models.QueueStatusPending}})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	from, to := baseTime.Add(30*time.Minute), baseTime.Add(90*time.Minute)
	items, err = m.GetQueuedPosts(ctx, QueueFilters{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)

	items, err = m.GetQueuedPosts(ctx, QueueFilters{Priority: models.PriorityHigh})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0].ID)

	items, err = m.GetQueuedPosts(ctx, QueueFilters{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)

	_, err = m.GetQueuedPosts(ctx, QueueFilters{Statuses: []models.QueueStatus{"archived"}})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestTenantIsolation(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	a := e.manager(orgA)
	b := e.manager(orgB)

	items, err := a.AddToQueue(ctx, PostRef{ID: "post-a", Platforms: []models.Platform{models.PlatformLinkedIn}}, baseTime.Add(time.Hour), "")
	require.NoError(t, err)
	id := items[0].ID

	listed, err := b.GetQueuedPosts(ctx, QueueFilters{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = b.GetQueueItem(ctx, id)
	assert.ErrorIs(t, err, ErrQueueItemNotFound)

	require.NoError(t, b.RemoveFromQueue(ctx, id))

	_, err = b.ReschedulePost(ctx, id, baseTime.Add(3*time.Hour))
	assert.ErrorIs(t, err, ErrQueueItemNotFound)

	n, err := b.BulkUpdatePriority(ctx, []string{id}, models.PriorityHigh)
	require.NoError(t, err)
	assert.Zero(t, n)

	stats, err := b.GetQueueStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)

	item, err := a.GetQueueItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityNormal, item.Priority)
	assert.True(t, item.ScheduledTime.Equal(baseTime.Add(time.Hour)))
}

func TestRemoveFromQueueIsIdempotent(t *testing.T) {
	e := newEnv()
	e.seed(t, models.QueueItem{ID: "x", Platform: models.PlatformTwitter, ScheduledTime: baseTime})
	m := e.manager(orgA)
	ctx := context.Background()

	require.NoError(t, m.RemoveFromQueue(ctx, "x"))
	require.NoError(t, m.RemoveFromQueue(ctx, "x"))
	require.NoError(t, m.RemoveFromQueue(ctx, "never-existed"))

	_, err := m.GetQueueItem(ctx, "x")
	assert.ErrorIs(t, err, ErrQueueItemNotFound)
}

func TestReschedulePostResetsState(t *testing.T) {
	e := newEnv()
	msg := "gave up"
	e.seed(t, models.QueueItem{
		ID:            "x",
		Platform:      models.PlatformTwitter,
		ScheduledTime: baseTime,
		Status:        models.QueueStatusFailed,
		RetryCount:    3,
		DeferralCount: 4,
		ErrorMessage:  &msg,
	})

	newTime := baseTime.Add(48 * time.Hour)
	item, err := e.manager(orgA).ReschedulePost(context.Background(), "x", newTime)
	require.NoError(t, err)

	assert.Equal(t, models.QueueStatusPending, item.Status)
	assert.True(t, item.ScheduledTime.Equal(newTime))
	assert.Equal(t, 0, item.DeferralCount)
	assert.Equal(t, 3, item.RetryCount)
	assert.Contains(t, e.scheduler.ticks, newTime)

	_, err = e.manager(orgA).ReschedulePost(context.Background(), "missing", newTime)
	assert.ErrorIs(t, err, ErrQueueItemNotFound)
}

func TestBulkUpdatePriority(t *testing.T) {
	e := newEnv()
	for _, id := range []string{"a", "b", "c"} {
		e.seed(t, models.QueueItem{ID: id, Platform: models.PlatformTwitter, ScheduledTime: baseTime})
	}
	m := e.manager(orgA)
	ctx := context.Background()

	n, err := m.BulkUpdatePriority(ctx, []string{"a", "c", "ghost"}, models.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, models.PriorityHigh, e.get(t, "a").Priority)
	assert.Equal(t, models.PriorityNormal, e.get(t, "b").Priority)

	n, err = m.BulkUpdatePriority(ctx, nil, models.PriorityLow)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = m.BulkUpdatePriority(ctx, []string{"a"}, "critical")
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestClearOldCompletedItems(t *testing.T) {
	e := newEnv()
	e.seed(t, models.QueueItem{ID: "old", Platform: models.PlatformTwitter, ScheduledTime: baseTime,
		Status: models.QueueStatusCompleted, UpdatedAt: baseTime.AddDate(0, 0, -40)})
	e.seed(t, models.QueueItem{ID: "recent", Platform: models.PlatformTwitter, ScheduledTime: baseTime,
		Status: models.QueueStatusCompleted, UpdatedAt: baseTime.AddDate(0, 0, -10)})
	e.seed(t, models.QueueItem{ID: "old-failed", Platform: models.PlatformTwitter, ScheduledTime: baseTime,
		Status: models.QueueStatusFailed, UpdatedAt: baseTime.AddDate(0, 0, -40)})
	e.seed(t, models.QueueItem{ID: "old-pending", Platform: models.PlatformTwitter, ScheduledTime: baseTime,
		UpdatedAt: baseTime.AddDate(0, 0, -40)})
	e.seed(t, models.QueueItem{ID: "other-org", OrganizationID: orgB, Platform: models.PlatformTwitter, ScheduledTime: baseTime,
		Status: models.QueueStatusCompleted, UpdatedAt: baseTime.AddDate(0, 0, -40)})

	n, err := e.manager(orgA).ClearOldCompletedItems(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := e.manager(orgA).GetQueuedPosts(context.Background(), QueueFilters{})
	require.NoError(t, err)
	assert.Len(t, remaining, 3)

	other, err := e.manager(orgB).GetQueuedPosts(context.Background(), QueueFilters{})
	require.NoError(t, err)
	assert.Len(t, other, 1)

	_, err = e.manager(orgA).ClearOldCompletedItems(context.Background(), -1)
	assert.Error(t, err)
}

func TestGetQueueStats(t *testing.T) {
	e := newEnv()
	e.seed(t, models.QueueItem{ID: "a", Platform: models.PlatformTwitter, ScheduledTime: baseTime, Priority: models.PriorityHigh})
	e.seed(t, models.QueueItem{ID: "b", Platform: models.PlatformTwitter, ScheduledTime: baseTime, Status: models.QueueStatusCompleted})
	e.seed(t, models.QueueItem{ID: "c", Platform: models.PlatformYoutube, ScheduledTime: baseTime, Status: models.QueueStatusFailed, Priority: models.PriorityLow})
	e.seed(t, models.QueueItem{ID: "d", Platform: models.PlatformTiktok, ScheduledTime: baseTime, Status: models.QueueStatusProcessing})

	stats, err := e.manager(orgA).GetQueueStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Processing)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, map[models.Platform]int{
		models.PlatformTwitter:   2,
		models.PlatformLinkedIn:  0,
		models.PlatformFacebook:  0,
		models.PlatformInstagram: 0,
		models.PlatformTiktok:    1,
		models.PlatformYoutube:   1,
	}, stats.ByPlatform)
	assert.Equal(t, map[models.Priority]int{
		models.PriorityHigh:   1,
		models.PriorityNormal: 2,
		models.PriorityLow:    1,
	}, stats.ByPriority)
}

func TestMissingTableDegradesGracefully(t *testing.T) {
	m := NewManager(orgA, "UTC", failingRepo{err: repository.ErrTableMissing}, nil, nil, Options{Now: newClock(baseTime).Now})
	ctx := context.Background()

	items, err := m.GetQueuedPosts(ctx, QueueFilters{})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	stats, err := m.GetQueueStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Len(t, stats.ByPlatform, len(models.Platforms))

	assert.NoError(t, m.RemoveFromQueue(ctx, "x"))

	n, err := m.ClearOldCompletedItems(ctx, 30)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = m.BulkUpdatePriority(ctx, []string{"x"}, models.PriorityHigh)
	require.NoError(t, err)
	assert.Zero(t, n)

	admission, err := m.CheckRateLimit(ctx, models.PlatformTwitter, baseTime)
	require.NoError(t, err)
	assert.True(t, admission.Allowed)

	result, err := m.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
}

func TestStoreErrorsSurface(t *testing.T) {
	m := NewManager(orgA, "UTC", failingRepo{err: errStoreDown}, nil, nil, Options{Now: newClock(baseTime).Now})
	ctx := context.Background()

	_, err := m.GetQueuedPosts(ctx, QueueFilters{})
	assert.ErrorIs(t, err, errStoreDown)

	_, err = m.GetQueueStats(ctx)
	assert.ErrorIs(t, err, errStoreDown)

	items, err := m.AddToQueue(ctx, PostRef{ID: "p", Platforms: []models.Platform{models.PlatformTwitter, models.PlatformTiktok}}, baseTime, "")
	assert.ErrorIs(t, err, errStoreDown)
	assert.Empty(t, items)
}

func TestNewManagerFallsBackToUTC(t *testing.T) {
	e := newEnv()
	m := NewManager(orgA, "Not/AZone", e.repo, e.posts, nil, Options{})
	assert.Equal(t, time.UTC, m.Location())

	m = NewManager(orgA, "Asia/Tokyo", e.repo, e.posts, nil, Options{})
	assert.Equal(t, "Asia/Tokyo", m.Location().String())
}
