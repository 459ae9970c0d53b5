package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/transfer"
)

const tiktokAPIBase = "https://open.tiktokapis.com"

// TikTok direct-posts videos or photo sets. TikTok pulls the media from
// the stored URLs itself.
type TikTok struct {
	content *ContentSource
	client  *http.Client
	baseURL string
}

func NewTikTok(content *ContentSource, client *http.Client) *TikTok {
	return &TikTok{content: content, client: client, baseURL: tiktokAPIBase}
}

func (p *TikTok) Publish(ctx context.Context, item *models.QueueItem) error {
	c, err := p.content.Load(ctx, item)
	if err != nil {
		return err
	}
	urls := c.MediaURLs()
	if len(urls) == 0 {
		return fmt.Errorf("%w: tiktok needs a video or photos", ErrNoMedia)
	}

	creator, err := p.creatorInfo(ctx, c.AccessToken)
	if err != nil {
		return err
	}
	privacy := transfer.TiktokPrivacyPublic
	if opts := creator.Data.PrivacyLevelOptions; len(opts) > 0 && !slices.Contains(opts, privacy) {
		privacy = opts[0]
	}

	var (
		path    string
		payload interface{}
	)
	if c.Post.PostType == models.PostTypeMultiple || KindFromFileType(c.Media[0].FileType) == MediaKindImage {
		path = "/v2/post/publish/content/init/"
		payload = transfer.TiktokPhotoRequest{
			PostInfo: transfer.TiktokPhotoPostInfo{
				Title:        truncate(c.Post.Title, 90),
				Description:  c.Post.Caption,
				PrivacyLevel: privacy,
				AutoAddMusic: true,
			},
			SourceInfo: transfer.TiktokPhotoSourceInfo{
				Source:      transfer.TiktokSourcePullFromURL,
				PhotoImages: urls,
			},
			PostMode:  transfer.TiktokPostModeDirect,
			MediaType: transfer.TiktokMediaTypePhoto,
		}
	} else {
		path = "/v2/post/publish/video/init/"
		payload = transfer.TiktokVideoRequest{
			PostInfo: transfer.TiktokVideoPostInfo{
				Title:                 c.Post.Caption,
				PrivacyLevel:          privacy,
				VideoCoverTimestampMs: 1000,
			},
			SourceInfo: transfer.TiktokVideoSourceInfo{
				Source:   transfer.TiktokSourcePullFromURL,
				VideoURL: urls[0],
			},
		}
	}

	var result transfer.TiktokPublishResponse
	if err := p.post(ctx, path, c.AccessToken, payload, &result); err != nil {
		return err
	}
	if !result.Error.OK() {
		return fmt.Errorf("tiktok rejected post: %s (%s)", result.Error.Message, result.Error.Code)
	}

	slog.Info("post sent to tiktok", "post_id", c.Post.ID, "publish_id", result.Data.PublishID)
	return nil
}

func (p *TikTok) creatorInfo(ctx context.Context, accessToken string) (*transfer.TiktokCreatorInfoResponse, error) {
	var info transfer.TiktokCreatorInfoResponse
	if err := p.post(ctx, "/v2/post/publish/creator_info/query/", accessToken, nil, &info); err != nil {
		return nil, fmt.Errorf("querying tiktok creator info: %w", err)
	}
	if !info.Error.OK() {
		return nil, fmt.Errorf("querying tiktok creator info: %s (%s)", info.Error.Message, info.Error.Code)
	}
	return &info, nil
}

func (p *TikTok) post(ctx context.Context, path, accessToken string, payload, out interface{}) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var failed struct {
			Error transfer.TiktokError `json:"error"`
		}
		_ = json.Unmarshal(raw, &failed)
		return fmt.Errorf("tiktok returned status %d: %s", resp.StatusCode, failed.Error.Message)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding tiktok response: %w", err)
	}
	return nil
}
