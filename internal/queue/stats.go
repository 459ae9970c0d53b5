package queue

import (
	"context"
	"fmt"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
)

type QueueStats struct {
	Total      int                     `json:"total"`
	Pending    int                     `json:"pending"`
	Processing int                     `json:"processing"`
	Completed  int                     `json:"completed"`
	Failed     int                     `json:"failed"`
	ByPlatform map[models.Platform]int `json:"by_platform"`
	ByPriority map[models.Priority]int `json:"by_priority"`
}

func newQueueStats() *QueueStats {
	s := &QueueStats{
		ByPlatform: make(map[models.Platform]int, len(models.Platforms)),
		ByPriority: make(map[models.Priority]int, len(models.Priorities)),
	}
	for _, p := range models.Platforms {
		s.ByPlatform[p] = 0
	}
	for _, p := range models.Priorities {
		s.ByPriority[p] = 0
	}
	return s
}

func (s *QueueStats) add(item *models.QueueItem) {
	s.Total++
	switch item.Status {
	case models.QueueStatusPending:
		s.Pending++
	case models.QueueStatusProcessing:
		s.Processing++
	case models.QueueStatusCompleted:
		s.Completed++
	case models.QueueStatusFailed:
		s.Failed++
	}
	s.ByPlatform[item.Platform]++
	s.ByPriority[item.Priority]++
}

// GetQueueStats tallies every item of the organization. A missing queue
// table yields all-zero stats.
func (m *Manager) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	if err := m.checkOrganization(); err != nil {
		return nil, err
	}

	stats := newQueueStats()
	items, err := m.queue.Select(ctx, m.filter())
	if err != nil {
		if repository.IsTableMissing(err) {
			return stats, nil
		}
		return nil, fmt.Errorf("loading queue stats: %w", err)
	}

	for _, item := range items {
		stats.add(item)
	}
	return stats, nil
}
