package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postqueue/internal/models"
)

type PostMediaRepository interface {
	ListByPostID(ctx context.Context, postID string) ([]*models.MediaAsset, error)
}

type postMediaRepository struct {
	db *sql.DB
}

func NewPostMediaRepository(db *sql.DB) PostMediaRepository {
	return &postMediaRepository{db: db}
}

func (r *postMediaRepository) ListByPostID(ctx context.Context, postID string) ([]*models.MediaAsset, error) {
	query := `
		SELECT ma.id, ma.file_name, ma.file_type, ma.file_size, ma.file_url,
			COALESCE(ma.thumbnail_url, ''), pm.display_order, ma.created_at
		FROM post_media pm
		JOIN media_assets ma ON ma.id = pm.asset_id
		WHERE pm.post_id = $1
		ORDER BY pm.display_order
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	var assets []*models.MediaAsset
	for rows.Next() {
		var ma models.MediaAsset
		if err := rows.Scan(&ma.ID, &ma.FileName, &ma.FileType, &ma.FileSize, &ma.FileURL,
			&ma.ThumbnailURL, &ma.DisplayOrder, &ma.CreatedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		assets = append(assets, &ma)
	}
	return assets, rows.Err()
}
