package models

import "time"

// Post is the authored content a queue item points at. The queue only ever
// touches Status and PublishedAt.
type Post struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	PostType       string     `db:"post_type" json:"post_type"`
	Caption        string     `db:"caption" json:"caption"`
	Title          string     `db:"title" json:"title"`
	Status         string     `db:"status" json:"status"` // draft, scheduled, published, failed
	PublishedAt    *time.Time `db:"published_at" json:"published_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

type MediaAsset struct {
	ID           int64     `db:"id"`
	FileName     string    `db:"file_name"`
	FileType     string    `db:"file_type"`
	FileSize     int64     `db:"file_size"`
	FileURL      string    `db:"file_url"`
	ThumbnailURL string    `db:"thumbnail_url"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}

const (
	PostStatusDraft     = "draft"
	PostStatusScheduled = "scheduled"
	PostStatusPublished = "published"
	PostStatusFailed    = "failed"
)

const (
	PostTypeSingle   = "single"
	PostTypeMultiple = "multiple"
)
