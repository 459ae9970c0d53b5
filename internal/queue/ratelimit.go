package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
)

// RateLimit is a platform's publishing budget.
type RateLimit struct {
	RequestsPerWindow int
	Window            time.Duration
	MinInterval       time.Duration
}

var PlatformRateLimits = map[models.Platform]RateLimit{
	models.PlatformTwitter:   {RequestsPerWindow: 300, Window: 180 * time.Minute, MinInterval: 30 * time.Second},
	models.PlatformLinkedIn:  {RequestsPerWindow: 100, Window: 1440 * time.Minute, MinInterval: 60 * time.Second},
	models.PlatformFacebook:  {RequestsPerWindow: 50, Window: 60 * time.Minute, MinInterval: 60 * time.Second},
	models.PlatformInstagram: {RequestsPerWindow: 25, Window: 1440 * time.Minute, MinInterval: 300 * time.Second},
	models.PlatformTiktok:    {RequestsPerWindow: 10, Window: 1440 * time.Minute, MinInterval: 600 * time.Second},
	models.PlatformYoutube:   {RequestsPerWindow: 6, Window: 1440 * time.Minute, MinInterval: 3600 * time.Second},
}

// Admission is the outcome of a rate limit check. SuggestedTime is only set
// when Allowed is false.
type Admission struct {
	Allowed       bool      `json:"allowed"`
	SuggestedTime time.Time `json:"suggested_time,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

var scheduledStatuses = []models.QueueStatus{
	models.QueueStatusPending,
	models.QueueStatusProcessing,
	models.QueueStatusCompleted,
}

// CheckRateLimit reports whether platform can take another post at the
// given time given what is already scheduled.
func (m *Manager) CheckRateLimit(ctx context.Context, platform models.Platform, at time.Time) (Admission, error) {
	if err := m.checkOrganization(); err != nil {
		return Admission{}, err
	}
	if !platform.Valid() {
		return Admission{}, fmt.Errorf("%w: %q", ErrInvalidPlatform, platform)
	}
	return m.admitScheduled(ctx, platform, at.UTC()), nil
}

// admitScheduled checks a candidate slot against scheduled times. The window
// is [at-Window, at]; the minimum interval applies to neighbors on both
// sides of at. A denied slot is moved forward until it passes both checks,
// so the suggestion is always admissible. Store failures admit.
func (m *Manager) admitScheduled(ctx context.Context, platform models.Platform, at time.Time) Admission {
	limit, ok := PlatformRateLimits[platform]
	if !ok {
		return Admission{Allowed: true}
	}

	from := at.Add(-limit.Window)
	if lo := at.Add(-limit.MinInterval); lo.Before(from) {
		from = lo
	}

	f := m.filter()
	f.Platforms = []models.Platform{platform}
	f.Statuses = scheduledStatuses
	f.ScheduledFrom = &from

	items, err := m.queue.Select(ctx, f)
	if err != nil {
		if !repository.IsTableMissing(err) {
			slog.Warn("rate limit check failed, admitting", "platform", platform, "error", err)
		}
		return Admission{Allowed: true}
	}

	times := make([]time.Time, 0, len(items))
	for _, item := range items {
		times = append(times, item.ScheduledTime)
	}
	sortTimes(times)

	candidate := at
	reason := ""
	// every step moves past at least one scheduled time for good
	for step := 0; step <= len(times); step++ {
		next, why := nextSlot(limit, times, candidate)
		if why == "" {
			break
		}
		if reason == "" {
			reason = fmt.Sprintf("%s %s", platform, why)
		}
		candidate = next
	}

	if reason == "" {
		return Admission{Allowed: true}
	}
	return Admission{SuggestedTime: candidate, Reason: reason}
}

// nextSlot returns the earliest time after at that resolves the first
// violation found at at, or an empty reason when at is admissible. times
// must be sorted.
func nextSlot(limit RateLimit, times []time.Time, at time.Time) (time.Time, string) {
	windowStart := at.Add(-limit.Window)
	var inWindow []time.Time
	for _, t := range times {
		if !t.Before(windowStart) && !t.After(at) {
			inWindow = append(inWindow, t)
		}
	}
	if len(inWindow) >= limit.RequestsPerWindow {
		// the slot frees up once enough of the oldest posts leave the window
		pivot := inWindow[len(inWindow)-limit.RequestsPerWindow]
		return pivot.Add(limit.Window + time.Minute),
			fmt.Sprintf("allows %d posts per %s", limit.RequestsPerWindow, limit.Window)
	}

	var nearest time.Time
	conflict := false
	for _, t := range times {
		if absDuration(t.Sub(at)) < limit.MinInterval {
			nearest = t
			conflict = true
		}
	}
	if conflict {
		return nearest.Add(limit.MinInterval),
			fmt.Sprintf("needs %s between posts", limit.MinInterval)
	}
	return time.Time{}, ""
}

// admitDispatch is the tick-time check. It counts real publish attempts by
// lastAttemptAt, so pending items that are due together never hold each
// other back.
func (m *Manager) admitDispatch(ctx context.Context, item *models.QueueItem, now time.Time) Admission {
	limit, ok := PlatformRateLimits[item.Platform]
	if !ok {
		return Admission{Allowed: true}
	}

	from := now.Add(-limit.Window)
	f := m.filter()
	f.Platforms = []models.Platform{item.Platform}
	f.Statuses = []models.QueueStatus{models.QueueStatusProcessing, models.QueueStatusCompleted}
	f.AttemptedFrom = &from
	f.AttemptedTo = &now
	f.ExcludeIDs = []string{item.ID}

	attempted, err := m.queue.Select(ctx, f)
	if err != nil {
		if !repository.IsTableMissing(err) {
			slog.Warn("rate limit check failed, admitting", "platform", item.Platform, "error", err)
		}
		return Admission{Allowed: true}
	}

	times := make([]time.Time, 0, len(attempted))
	for _, a := range attempted {
		if a.LastAttemptAt != nil {
			times = append(times, *a.LastAttemptAt)
		}
	}
	if len(times) == 0 {
		return Admission{Allowed: true}
	}
	sortTimes(times)

	if len(times) >= limit.RequestsPerWindow {
		pivot := times[len(times)-limit.RequestsPerWindow]
		return Admission{
			SuggestedTime: pivot.Add(limit.Window + time.Minute),
			Reason:        fmt.Sprintf("%s allows %d posts per %s", item.Platform, limit.RequestsPerWindow, limit.Window),
		}
	}

	latest := times[len(times)-1]
	if now.Sub(latest) < limit.MinInterval {
		return Admission{
			SuggestedTime: latest.Add(limit.MinInterval),
			Reason:        fmt.Sprintf("%s needs %s between posts", item.Platform, limit.MinInterval),
		}
	}

	return Admission{Allowed: true}
}

func sortTimes(ts []time.Time) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
