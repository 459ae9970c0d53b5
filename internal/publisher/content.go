package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
	"github.com/maheshrc27/postqueue/pkg/utils"
)

var (
	ErrPostNotFound        = errors.New("post not found")
	ErrAccountNotConnected = errors.New("no connected account")
	ErrNoMedia             = errors.New("post has no media")
)

// Content is everything a platform client needs to publish one item.
type Content struct {
	Post        *models.Post
	Media       []*models.MediaAsset
	Account     *models.SocialAccount
	AccessToken string
}

// ContentSource loads a queue item's post, its media and the organization's
// account on the item's platform, with the access token unsealed.
type ContentSource struct {
	posts    repository.PostRepository
	media    repository.PostMediaRepository
	accounts repository.SocialAccountRepository
	cipher   *utils.TokenCipher
}

func NewContentSource(
	posts repository.PostRepository,
	media repository.PostMediaRepository,
	accounts repository.SocialAccountRepository,
	cipher *utils.TokenCipher) *ContentSource {
	return &ContentSource{
		posts:    posts,
		media:    media,
		accounts: accounts,
		cipher:   cipher,
	}
}

func (s *ContentSource) Load(ctx context.Context, item *models.QueueItem) (*Content, error) {
	post, err := s.posts.GetByID(ctx, item.OrganizationID, item.PostID)
	if err != nil {
		return nil, fmt.Errorf("loading post %s: %w", item.PostID, err)
	}
	if post == nil {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, item.PostID)
	}

	acc, err := s.accounts.GetByPlatform(ctx, item.OrganizationID, item.Platform)
	if err != nil {
		return nil, fmt.Errorf("loading %s account: %w", item.Platform, err)
	}
	if acc == nil {
		return nil, fmt.Errorf("%w on %s", ErrAccountNotConnected, item.Platform)
	}

	token, err := s.cipher.Open(acc.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("unsealing %s access token: %w", item.Platform, err)
	}

	media, err := s.media.ListByPostID(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("loading media for post %s: %w", post.ID, err)
	}

	return &Content{
		Post:        post,
		Media:       media,
		Account:     acc,
		AccessToken: token,
	}, nil
}

// MediaURLs returns the file URLs of the post's media in display order.
func (c *Content) MediaURLs() []string {
	urls := make([]string, 0, len(c.Media))
	for _, m := range c.Media {
		if m.FileURL != "" {
			urls = append(urls, m.FileURL)
		}
	}
	return urls
}
