package publisher

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
)

var ErrSimulatedFailure = errors.New("simulated publish failure")

// Simulated stands in for a platform API: it waits Delay and then succeeds
// with probability SuccessRate.
type Simulated struct {
	SuccessRate float64
	Delay       time.Duration

	roll func() float64
}

func NewSimulated(successRate float64, delay time.Duration) *Simulated {
	return &Simulated{SuccessRate: successRate, Delay: delay, roll: rand.Float64}
}

func (s *Simulated) Publish(ctx context.Context, item *models.QueueItem) error {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.roll() >= s.SuccessRate {
		return ErrSimulatedFailure
	}
	slog.Debug("simulated publish", "id", item.ID, "platform", item.Platform, "post_id", item.PostID)
	return nil
}
