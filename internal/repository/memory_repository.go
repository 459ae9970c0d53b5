package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
)

var (
	_ QueueRepository = (*MemoryQueueRepository)(nil)
	_ PostRepository  = (*MemoryPostRepository)(nil)
)

// MemoryQueueRepository keeps post_queue rows in process memory. It applies
// the same organization scoping and ordering as the postgres store and is
// used for tests and local development.
type MemoryQueueRepository struct {
	mu    sync.RWMutex
	items map[string]*models.QueueItem
}

func NewMemoryQueueRepository() *MemoryQueueRepository {
	return &MemoryQueueRepository{items: make(map[string]*models.QueueItem)}
}

func (m *MemoryQueueRepository) Insert(_ context.Context, item *models.QueueItem) (*models.QueueItem, error) {
	if item.OrganizationID == "" {
		return nil, ErrMissingOrganization
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.ID]; ok {
		return nil, fmt.Errorf("%w: queue item %s", ErrConflict, item.ID)
	}

	cp := *item
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	m.items[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (m *MemoryQueueRepository) Select(_ context.Context, filter QueueFilter) ([]*models.QueueItem, error) {
	if filter.OrganizationID == "" {
		return nil, ErrMissingOrganization
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	items := m.matching(filter)
	sortQueueItems(items)

	if filter.Offset > 0 {
		if filter.Offset >= len(items) {
			return nil, nil
		}
		items = items[filter.Offset:]
	}
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (m *MemoryQueueRepository) Update(_ context.Context, filter QueueFilter, patch QueueItemPatch) ([]*models.QueueItem, error) {
	if filter.OrganizationID == "" {
		return nil, ErrMissingOrganization
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var updated []*models.QueueItem
	for _, item := range m.items {
		if !filter.match(item) {
			continue
		}
		patch.apply(item)
		cp := *item
		updated = append(updated, &cp)
	}
	sortQueueItems(updated)
	return updated, nil
}

func (m *MemoryQueueRepository) Delete(_ context.Context, filter QueueFilter) ([]*models.QueueItem, error) {
	if filter.OrganizationID == "" {
		return nil, ErrMissingOrganization
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := m.matching(filter)
	for _, item := range deleted {
		delete(m.items, item.ID)
	}
	sortQueueItems(deleted)
	return deleted, nil
}

func (m *MemoryQueueRepository) Count(_ context.Context, filter QueueFilter) (int, error) {
	if filter.OrganizationID == "" {
		return 0, ErrMissingOrganization
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.matching(filter)), nil
}

func (m *MemoryQueueRepository) ListDueOrganizations(_ context.Context, now, claimedBefore time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var orgs []string
	for _, item := range m.items {
		due := item.Status == models.QueueStatusPending && !item.ScheduledTime.After(now)
		stale := item.Status == models.QueueStatusProcessing && item.LastAttemptAt != nil && !item.LastAttemptAt.After(claimedBefore)
		if (due || stale) && !slices.Contains(orgs, item.OrganizationID) {
			orgs = append(orgs, item.OrganizationID)
		}
	}
	sort.Strings(orgs)
	return orgs, nil
}

func (m *MemoryQueueRepository) ListOrganizations(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var orgs []string
	for _, item := range m.items {
		if !slices.Contains(orgs, item.OrganizationID) {
			orgs = append(orgs, item.OrganizationID)
		}
	}
	sort.Strings(orgs)
	return orgs, nil
}

// matching returns copies of every row the filter selects. Callers hold the lock.
func (m *MemoryQueueRepository) matching(filter QueueFilter) []*models.QueueItem {
	var out []*models.QueueItem
	for _, item := range m.items {
		if filter.match(item) {
			cp := *item
			out = append(out, &cp)
		}
	}
	return out
}

func sortQueueItems(items []*models.QueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.ScheduledTime.Equal(b.ScheduledTime) {
			return a.ScheduledTime.Before(b.ScheduledTime)
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// MemoryPostRepository is the in-memory counterpart of the posts table.
type MemoryPostRepository struct {
	mu    sync.RWMutex
	posts map[string]*models.Post
}

func NewMemoryPostRepository(posts ...*models.Post) *MemoryPostRepository {
	m := &MemoryPostRepository{posts: make(map[string]*models.Post)}
	for _, p := range posts {
		cp := *p
		m.posts[p.ID] = &cp
	}
	return m
}

func (m *MemoryPostRepository) GetByID(_ context.Context, organizationID, id string) (*models.Post, error) {
	if organizationID == "" {
		return nil, ErrMissingOrganization
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.posts[id]
	if !ok || p.OrganizationID != organizationID {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryPostRepository) MarkPublished(_ context.Context, organizationID, id string, publishedAt time.Time) error {
	if organizationID == "" {
		return ErrMissingOrganization
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[id]
	if !ok || p.OrganizationID != organizationID {
		return nil
	}
	at := publishedAt
	p.Status = models.PostStatusPublished
	p.PublishedAt = &at
	p.UpdatedAt = publishedAt
	return nil
}
