package queue

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
)

const (
	defaultDaysAhead = 7
	maxTimeSlots     = 20
	baseSlotScore    = 50
)

// TimeSlot is a suggested publishing time. Time is expressed in the
// organization's timezone.
type TimeSlot struct {
	Time   time.Time `json:"time"`
	Score  int       `json:"score"`
	Reason string    `json:"reason"`
}

type audienceWindow struct {
	days  []time.Weekday
	hours []int
}

var optimalWindows = map[models.Platform]audienceWindow{
	models.PlatformTwitter:   {days: []time.Weekday{time.Tuesday, time.Wednesday, time.Thursday}, hours: []int{9, 12, 15, 17}},
	models.PlatformLinkedIn:  {days: []time.Weekday{time.Tuesday, time.Wednesday, time.Thursday}, hours: []int{8, 10, 12, 17}},
	models.PlatformFacebook:  {days: []time.Weekday{time.Tuesday, time.Wednesday, time.Friday}, hours: []int{9, 13, 15}},
	models.PlatformInstagram: {days: []time.Weekday{time.Monday, time.Wednesday, time.Friday}, hours: []int{11, 13, 17, 19}},
	models.PlatformTiktok:    {days: []time.Weekday{time.Tuesday, time.Thursday, time.Friday}, hours: []int{6, 10, 19, 22}},
	models.PlatformYoutube:   {days: []time.Weekday{time.Thursday, time.Friday, time.Saturday}, hours: []int{12, 15, 18}},
}

func primeWindow(hour int) (string, bool) {
	switch {
	case hour >= 9 && hour <= 11:
		return "morning", true
	case hour >= 17 && hour <= 19:
		return "evening", true
	}
	return "", false
}

// GetBestPostTimes ranks upcoming slots for platform over the next daysAhead
// days. Slots already holding a pending or processing item on the same
// platform are penalized.
func (m *Manager) GetBestPostTimes(ctx context.Context, platform models.Platform, daysAhead int) ([]TimeSlot, error) {
	if err := m.checkOrganization(); err != nil {
		return nil, err
	}
	window, ok := optimalWindows[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlatform, platform)
	}
	if daysAhead <= 0 {
		daysAhead = defaultDaysAhead
	}

	now := m.now().In(m.location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.location)
	horizon := today.AddDate(0, 0, daysAhead)

	occupied, err := m.occupiedMinutes(ctx, platform, now, horizon)
	if err != nil {
		return nil, err
	}

	var slots []TimeSlot
	for d := 0; d < daysAhead; d++ {
		day := today.AddDate(0, 0, d)
		optimalDay := slices.Contains(window.days, day.Weekday())

		for _, hour := range window.hours {
			at := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, m.location)
			if !at.After(now) {
				continue
			}
			slots = append(slots, scoreSlot(at, optimalDay, occupied[at.Unix()]))
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Score != slots[j].Score {
			return slots[i].Score > slots[j].Score
		}
		return slots[i].Time.Before(slots[j].Time)
	})
	if len(slots) > maxTimeSlots {
		slots = slots[:maxTimeSlots]
	}
	if slots == nil {
		slots = []TimeSlot{}
	}
	return slots, nil
}

func scoreSlot(at time.Time, optimalDay, conflict bool) TimeSlot {
	score := baseSlotScore
	reason := "Available slot"

	if optimalDay {
		score += 20
		reason = "Optimal day for engagement"
	}
	if period, prime := primeWindow(at.Hour()); prime {
		score += 10
		if optimalDay {
			reason = fmt.Sprintf("Optimal day, prime %s hours", period)
		} else {
			reason = fmt.Sprintf("Prime %s hours", period)
		}
	}
	if conflict {
		score -= 30
		reason = "A post is already scheduled at this time"
	} else {
		score += 15
	}

	return TimeSlot{Time: at, Score: max(0, min(100, score)), Reason: reason}
}

// occupiedMinutes returns the unix minutes in [from, to) that already hold a
// live item for platform.
func (m *Manager) occupiedMinutes(ctx context.Context, platform models.Platform, from, to time.Time) (map[int64]bool, error) {
	fromUTC, toUTC := from.UTC(), to.UTC()
	items, err := m.GetQueuedPosts(ctx, QueueFilters{
		Statuses:  []models.QueueStatus{models.QueueStatusPending, models.QueueStatusProcessing},
		Platforms: []models.Platform{platform},
		From:      &fromUTC,
		To:        &toUTC,
	})
	if err != nil {
		return nil, err
	}

	occupied := make(map[int64]bool, len(items))
	for _, item := range items {
		occupied[item.ScheduledTime.Truncate(time.Minute).Unix()] = true
	}
	return occupied, nil
}
