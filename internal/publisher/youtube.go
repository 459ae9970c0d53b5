package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maheshrc27/postqueue/internal/models"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const youtubeCategoryPeopleAndBlogs = "22"

// YouTube uploads the post's first video through the Data API.
type YouTube struct {
	content  *ContentSource
	media    MediaSource
	client   *http.Client
	endpoint string
}

func NewYouTube(content *ContentSource, media MediaSource, client *http.Client) *YouTube {
	return &YouTube{content: content, media: media, client: client}
}

func (p *YouTube) Publish(ctx context.Context, item *models.QueueItem) error {
	c, err := p.content.Load(ctx, item)
	if err != nil {
		return err
	}
	if len(c.Media) == 0 {
		return fmt.Errorf("%w: youtube needs a video", ErrNoMedia)
	}

	body, err := p.media.Open(ctx, c.Media[0].FileURL)
	if err != nil {
		return err
	}
	kind, body, err := Sniff(body)
	if err != nil {
		return fmt.Errorf("reading video: %w", err)
	}
	defer body.Close()
	if kind != MediaKindVideo {
		return fmt.Errorf("youtube media %s is %s, not a video", c.Media[0].FileName, kind)
	}

	service, err := p.service(ctx, c.AccessToken)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	title := c.Post.Title
	if title == "" {
		title = truncate(c.Post.Caption, 100)
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: c.Post.Caption,
			CategoryId:  youtubeCategoryPeopleAndBlogs,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	resp, err := service.Videos.Insert([]string{"snippet", "status"}, video).Media(body).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("uploading to youtube: %w", err)
	}

	slog.Info("video uploaded to youtube", "post_id", c.Post.ID, "video_id", resp.Id)
	return nil
}

func (p *YouTube) service(ctx context.Context, accessToken string) (*youtube.Service, error) {
	if p.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	return youtube.NewService(ctx, opts...)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
