package publisher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	config "github.com/maheshrc27/postqueue/configs"
)

// sniffLen covers the magic numbers filetype knows about.
const sniffLen = 261

type MediaKind string

const (
	MediaKindVideo   MediaKind = "video"
	MediaKindImage   MediaKind = "image"
	MediaKindUnknown MediaKind = "unknown"
)

// MediaSource opens a stored media file for streaming.
type MediaSource interface {
	Open(ctx context.Context, fileURL string) (io.ReadCloser, error)
}

// R2MediaStore reads media objects straight from the Cloudflare R2 bucket
// the uploads were written to.
type R2MediaStore struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

func NewR2MediaStore(ctx context.Context, cfg config.R2) (*R2MediaStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})

	return &R2MediaStore{
		client:    client,
		bucket:    cfg.BucketName,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
	}, nil
}

func (s *R2MediaStore) Open(ctx context.Context, fileURL string) (io.ReadCloser, error) {
	key, err := objectKey(s.publicURL, fileURL)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("fetching %s from r2: %w", key, err)
	}
	return out.Body, nil
}

// objectKey maps a public media URL back to its bucket key.
func objectKey(publicURL, fileURL string) (string, error) {
	if publicURL != "" && strings.HasPrefix(fileURL, publicURL+"/") {
		return strings.TrimPrefix(fileURL, publicURL+"/"), nil
	}

	u, err := url.Parse(fileURL)
	if err != nil {
		return "", fmt.Errorf("parsing media url: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", fmt.Errorf("media url %q has no object key", fileURL)
	}
	return key, nil
}

// HTTPMediaSource downloads media over plain HTTP.
type HTTPMediaSource struct {
	client *http.Client
}

func NewHTTPMediaSource(client *http.Client) *HTTPMediaSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPMediaSource{client: client}
}

func (s *HTTPMediaSource) Open(ctx context.Context, fileURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading media: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("downloading media: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

type sniffedReader struct {
	io.Reader
	io.Closer
}

// Sniff peeks at the head of r to classify it and returns a reader that
// still yields the full stream.
func Sniff(r io.ReadCloser) (MediaKind, io.ReadCloser, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		r.Close()
		return MediaKindUnknown, nil, err
	}
	head = head[:n]

	kind := MediaKindUnknown
	switch {
	case filetype.IsVideo(head):
		kind = MediaKindVideo
	case filetype.IsImage(head):
		kind = MediaKindImage
	}

	return kind, sniffedReader{Reader: io.MultiReader(bytes.NewReader(head), r), Closer: r}, nil
}

// KindFromFileType classifies a stored MIME type such as "video/mp4".
func KindFromFileType(fileType string) MediaKind {
	switch {
	case strings.HasPrefix(fileType, "video/"):
		return MediaKindVideo
	case strings.HasPrefix(fileType, "image/"):
		return MediaKindImage
	}
	if ext := strings.TrimPrefix(fileType, "."); filetype.IsSupported(ext) {
		switch filetype.GetType(ext).MIME.Type {
		case "video":
			return MediaKindVideo
		case "image":
			return MediaKindImage
		}
	}
	return MediaKindUnknown
}
