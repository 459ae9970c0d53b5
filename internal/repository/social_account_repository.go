package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/maheshrc27/postqueue/internal/models"
)

type SocialAccountRepository interface {
	GetByPlatform(ctx context.Context, organizationID string, platform models.Platform) (*models.SocialAccount, error)
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

// GetByPlatform returns the organization's active account on platform, or
// nil when none is connected.
func (r *socialAccountRepository) GetByPlatform(ctx context.Context, organizationID string, platform models.Platform) (*models.SocialAccount, error) {
	if organizationID == "" {
		return nil, ErrMissingOrganization
	}

	query := `
		SELECT id, organization_id, platform, account_id, account_name, account_username,
			access_token, refresh_token, token_expires_at, account_status, created_at, updated_at
		FROM social_accounts
		WHERE organization_id = $1 AND platform = $2 AND account_status = 'active'
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var sa models.SocialAccount
	var p string
	err := r.db.QueryRowContext(ctx, query, organizationID, string(platform)).Scan(
		&sa.ID, &sa.OrganizationID, &p, &sa.AccountID, &sa.AccountName, &sa.AccountUsername,
		&sa.AccessToken, &sa.RefreshToken, &sa.TokenExpiresAt, &sa.AccountStatus, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, mapStoreError(err)
	}
	sa.Platform = models.Platform(p)

	return &sa, nil
}
