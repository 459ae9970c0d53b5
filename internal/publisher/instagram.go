package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/transfer"
)

const (
	instagramGraphBase = "https://graph.instagram.com/v21.0"
	instagramMaxItems  = 10
)

// Instagram publishes through the Graph API: one media container per
// image or reel, an extra carousel container for multi-item posts, then
// media_publish.
type Instagram struct {
	content *ContentSource
	client  *http.Client
	baseURL string
}

func NewInstagram(content *ContentSource, client *http.Client) *Instagram {
	return &Instagram{content: content, client: client, baseURL: instagramGraphBase}
}

func (p *Instagram) Publish(ctx context.Context, item *models.QueueItem) error {
	c, err := p.content.Load(ctx, item)
	if err != nil {
		return err
	}
	if len(c.Media) == 0 {
		return fmt.Errorf("%w: instagram needs at least one image or video", ErrNoMedia)
	}

	accountID := c.Account.AccountID
	media := c.Media
	if len(media) > instagramMaxItems {
		media = media[:instagramMaxItems]
	}

	var creationID string
	if len(media) == 1 {
		req := p.container(media[0], c.AccessToken)
		req.Caption = c.Post.Caption
		creationID, err = p.createContainer(ctx, accountID, req)
		if err != nil {
			return err
		}
	} else {
		children := make([]string, 0, len(media))
		for _, m := range media {
			req := p.container(m, c.AccessToken)
			req.IsCarouselItem = true
			id, err := p.createContainer(ctx, accountID, req)
			if err != nil {
				return fmt.Errorf("carousel item %s: %w", m.FileName, err)
			}
			children = append(children, id)
		}

		creationID, err = p.createContainer(ctx, accountID, transfer.InstagramContainerRequest{
			MediaType:   "CAROUSEL",
			Caption:     c.Post.Caption,
			Children:    children,
			AccessToken: c.AccessToken,
		})
		if err != nil {
			return err
		}
	}

	var published transfer.InstagramIDResponse
	err = p.call(ctx, "/"+accountID+"/media_publish", transfer.InstagramPublishRequest{
		CreationID:  creationID,
		AccessToken: c.AccessToken,
	}, &published)
	if err != nil {
		return fmt.Errorf("publishing instagram container: %w", err)
	}

	slog.Info("post published to instagram", "post_id", c.Post.ID, "media_id", published.ID)
	return nil
}

func (p *Instagram) container(m *models.MediaAsset, accessToken string) transfer.InstagramContainerRequest {
	req := transfer.InstagramContainerRequest{AccessToken: accessToken}
	if KindFromFileType(m.FileType) == MediaKindVideo {
		req.MediaType = "REELS"
		req.VideoURL = m.FileURL
	} else {
		req.ImageURL = m.FileURL
	}
	return req
}

func (p *Instagram) createContainer(ctx context.Context, accountID string, req transfer.InstagramContainerRequest) (string, error) {
	var out transfer.InstagramIDResponse
	if err := p.call(ctx, "/"+accountID+"/media", req, &out); err != nil {
		return "", fmt.Errorf("creating instagram container: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("no media ID returned from Instagram")
	}
	return out.ID, nil
}

func (p *Instagram) call(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var graphErr transfer.InstagramErrorResponse
		if json.Unmarshal(raw, &graphErr) == nil && graphErr.Error.Message != "" {
			return fmt.Errorf("instagram returned status %d: %s", resp.StatusCode, graphErr)
		}
		return fmt.Errorf("unexpected status code from Instagram: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	return nil
}
