package transfer

import "time"

type EnqueueRequest struct {
	PostID        string    `json:"post_id"`
	Platforms     []string  `json:"platforms"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Priority      string    `json:"priority"`
}

type RescheduleRequest struct {
	ScheduledTime time.Time `json:"scheduled_time"`
}

type PriorityUpdateRequest struct {
	IDs      []string `json:"ids"`
	Priority string   `json:"priority"`
}

type CountResponse struct {
	Count int `json:"count"`
}
