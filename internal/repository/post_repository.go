package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
)

// PostRepository exposes the slice of the posts table the queue needs:
// reading content for publishers and flipping the publish status.
type PostRepository interface {
	GetByID(ctx context.Context, organizationID, id string) (*models.Post, error)
	MarkPublished(ctx context.Context, organizationID, id string, publishedAt time.Time) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) GetByID(ctx context.Context, organizationID, id string) (*models.Post, error) {
	if organizationID == "" {
		return nil, ErrMissingOrganization
	}

	query := `
		SELECT id, organization_id, post_type, caption, title, status, published_at, created_at, updated_at
		FROM posts
		WHERE id = $1 AND organization_id = $2
	`
	row := r.db.QueryRowContext(ctx, query, id, organizationID)

	var post models.Post
	var publishedAt sql.NullTime
	err := row.Scan(&post.ID, &post.OrganizationID, &post.PostType, &post.Caption, &post.Title,
		&post.Status, &publishedAt, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, mapStoreError(err)
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}

	return &post, nil
}

func (r *postRepository) MarkPublished(ctx context.Context, organizationID, id string, publishedAt time.Time) error {
	if organizationID == "" {
		return ErrMissingOrganization
	}

	query := `
		UPDATE posts
		SET status = $1,
			published_at = $2,
			updated_at = $2
		WHERE id = $3 AND organization_id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusPublished, publishedAt, id, organizationID)
	if err != nil {
		slog.Info(err.Error())
		return mapStoreError(err)
	}
	return nil
}
