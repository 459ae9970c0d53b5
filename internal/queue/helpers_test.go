package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
	"github.com/stretchr/testify/require"
)

const (
	orgA = "org-a"
	orgB = "org-b"
)

// Monday 2026-10-19 08:00 UTC
var baseTime = time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type publishFunc func(ctx context.Context, item *models.QueueItem) error

func (f publishFunc) Publish(ctx context.Context, item *models.QueueItem) error { return f(ctx, item) }

// recordingPublisher counts attempts and fails the platforms listed in fail.
type recordingPublisher struct {
	mu       sync.Mutex
	attempts []string
	fail     map[models.Platform]error
}

func (p *recordingPublisher) Publish(_ context.Context, item *models.QueueItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = append(p.attempts, item.ID)
	return p.fail[item.Platform]
}

func (p *recordingPublisher) Attempts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.attempts...)
}

type fakeScheduler struct {
	mu    sync.Mutex
	ticks []time.Time
}

func (s *fakeScheduler) ScheduleTick(_ context.Context, _ string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, at)
	return nil
}

type fakeLocker struct {
	held     bool
	unlocked int
	err      error
}

func (l *fakeLocker) TryLock(_ context.Context, _ string, _ time.Duration) (func(context.Context) error, bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func(context.Context) error {
		l.held = false
		l.unlocked++
		return nil
	}, true, nil
}

// failingRepo returns err from every call.
type failingRepo struct {
	err error
}

func (r failingRepo) Insert(context.Context, *models.QueueItem) (*models.QueueItem, error) {
	return nil, r.err
}

func (r failingRepo) Select(context.Context, repository.QueueFilter) ([]*models.QueueItem, error) {
	return nil, r.err
}

func (r failingRepo) Update(context.Context, repository.QueueFilter, repository.QueueItemPatch) ([]*models.QueueItem, error) {
	return nil, r.err
}

func (r failingRepo) Delete(context.Context, repository.QueueFilter) ([]*models.QueueItem, error) {
	return nil, r.err
}

func (r failingRepo) Count(context.Context, repository.QueueFilter) (int, error) {
	return 0, r.err
}

func (r failingRepo) ListDueOrganizations(context.Context, time.Time, time.Time) ([]string, error) {
	return nil, r.err
}

func (r failingRepo) ListOrganizations(context.Context) ([]string, error) {
	return nil, r.err
}

var errStoreDown = errors.New("connection refused")

type env struct {
	clock     *fakeClock
	repo      *repository.MemoryQueueRepository
	posts     *repository.MemoryPostRepository
	publisher *recordingPublisher
	scheduler *fakeScheduler
}

func newEnv(posts ...*models.Post) *env {
	return &env{
		clock:     newClock(baseTime),
		repo:      repository.NewMemoryQueueRepository(),
		posts:     repository.NewMemoryPostRepository(posts...),
		publisher: &recordingPublisher{fail: map[models.Platform]error{}},
		scheduler: &fakeScheduler{},
	}
}

func (e *env) manager(org string, mutate ...func(*Options)) *Manager {
	opts := Options{Now: e.clock.Now, Scheduler: e.scheduler}
	for _, fn := range mutate {
		fn(&opts)
	}
	return NewManager(org, "UTC", e.repo, e.posts, e.publisher, opts)
}

// seed writes an item straight into the store, bypassing admission.
func (e *env) seed(t *testing.T, item models.QueueItem) *models.QueueItem {
	t.Helper()
	if item.OrganizationID == "" {
		item.OrganizationID = orgA
	}
	if item.PostID == "" {
		item.PostID = "post-" + item.ID
	}
	if item.Status == "" {
		item.Status = models.QueueStatusPending
	}
	if item.Priority == "" {
		item.Priority = models.PriorityNormal
	}
	if item.Timezone == "" {
		item.Timezone = "UTC"
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = e.clock.Now()
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	created, err := e.repo.Insert(context.Background(), &item)
	require.NoError(t, err)
	return created
}

func (e *env) get(t *testing.T, id string) *models.QueueItem {
	t.Helper()
	items, err := e.repo.Select(context.Background(), repository.QueueFilter{OrganizationID: orgA, IDs: []string{id}})
	require.NoError(t, err)
	require.Len(t, items, 1, "item %s", id)
	return items[0]
}

func sequentialIDs() func() (string, error) {
	n := 0
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("q%03d", n), nil
	}
}

func (e *env) managerWith(pub Publisher, mutate ...func(*Options)) *Manager {
	opts := Options{Now: e.clock.Now, Scheduler: e.scheduler}
	for _, fn := range mutate {
		fn(&opts)
	}
	return NewManager(orgA, "UTC", e.repo, e.posts, pub, opts)
}

// stealingRepo loses every pending to processing claim, as if another worker
// won the race.
type stealingRepo struct {
	*repository.MemoryQueueRepository
}

func (r stealingRepo) Update(ctx context.Context, f repository.QueueFilter, p repository.QueueItemPatch) ([]*models.QueueItem, error) {
	if p.Status != nil && *p.Status == models.QueueStatusProcessing {
		return nil, nil
	}
	return r.MemoryQueueRepository.Update(ctx, f, p)
}

// outcomeLosingRepo fails every write that moves an item out of processing
// while fail is set, leaving the claim in place as a crashed worker would.
type outcomeLosingRepo struct {
	*repository.MemoryQueueRepository
	fail bool
}

func (r *outcomeLosingRepo) Update(ctx context.Context, f repository.QueueFilter, p repository.QueueItemPatch) ([]*models.QueueItem, error) {
	if r.fail && slices.Equal(f.Statuses, []models.QueueStatus{models.QueueStatusProcessing}) {
		return nil, errStoreDown
	}
	return r.MemoryQueueRepository.Update(ctx, f, p)
}
