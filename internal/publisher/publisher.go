package publisher

import (
	"context"
	"fmt"
	"sync"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/queue"
)

var ErrNoPublisher = queue.ErrNoPublisher

var _ queue.Publisher = (*Registry)(nil)

// Registry routes each queue item to the publisher registered for its
// platform. Platforms without one go to the fallback when set.
type Registry struct {
	mu         sync.RWMutex
	publishers map[models.Platform]queue.Publisher
	fallback   queue.Publisher
}

func NewRegistry() *Registry {
	return &Registry{publishers: make(map[models.Platform]queue.Publisher)}
}

func (r *Registry) Register(platform models.Platform, p queue.Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[platform] = p
}

func (r *Registry) SetFallback(p queue.Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = p
}

func (r *Registry) Lookup(platform models.Platform) (queue.Publisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.publishers[platform]; ok {
		return p, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

func (r *Registry) Publish(ctx context.Context, item *models.QueueItem) error {
	p, ok := r.Lookup(item.Platform)
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoPublisher, item.Platform)
	}
	return p.Publish(ctx, item)
}
