// Package video looks up the title and thumbnail of a linked video.
package video

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/trailerwatch/lib/classifier"
	"github.com/fiffu/trailerwatch/lib/models"
	"go.uber.org/zap"
)

const (
	DefaultYoutubeOEmbedURL = "https://www.youtube.com/oembed"
	DefaultVimeoOEmbedURL   = "https://vimeo.com/api/oembed.json"
)

var ErrNoTitle = errors.New("video: no title found")

// Source resolves metadata for a video id produced by the classifier.
type Source interface {
	Info(ctx context.Context, videoID string) (*models.VideoInfo, error)
}

type Client struct {
	log              *zap.Logger
	transport        http.RoundTripper
	youtubeOEmbedURL string
	vimeoOEmbedURL   string
}

var _ Source = (*Client)(nil)

func NewClient(log *zap.Logger, transport http.RoundTripper, youtubeOEmbedURL, vimeoOEmbedURL string) *Client {
	if youtubeOEmbedURL == "" {
		youtubeOEmbedURL = DefaultYoutubeOEmbedURL
	}
	if vimeoOEmbedURL == "" {
		vimeoOEmbedURL = DefaultVimeoOEmbedURL
	}
	return &Client{log, transport, youtubeOEmbedURL, vimeoOEmbedURL}
}

type oembed struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Info asks the host's oEmbed endpoint first and falls back to scraping the
// watch page when that fails.
func (c *Client) Info(ctx context.Context, videoID string) (*models.VideoInfo, error) {
	watchURL := classifier.WatchURL(videoID)

	info, err := c.fromOEmbed(ctx, videoID, watchURL)
	if err == nil {
		return info, nil
	}
	c.log.Sugar().Debugw("oEmbed lookup failed, scraping page", "video_id", videoID, "err", err)

	info, scrapeErr := c.fromPage(ctx, videoID, watchURL)
	if scrapeErr != nil {
		return nil, fmt.Errorf("video %s: %w", videoID, errors.Join(err, scrapeErr))
	}
	return info, nil
}

func (c *Client) fromOEmbed(ctx context.Context, videoID, watchURL string) (*models.VideoInfo, error) {
	endpoint := c.youtubeOEmbedURL
	if classifier.IsVimeoID(videoID) {
		endpoint = c.vimeoOEmbedURL
	}

	var resp oembed
	err := requests.URL(endpoint).
		Param("url", watchURL).
		Param("format", "json").
		Transport(c.transport).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Title) == "" {
		return nil, ErrNoTitle
	}
	return &models.VideoInfo{
		VideoID:      videoID,
		URL:          watchURL,
		Title:        strings.TrimSpace(resp.Title),
		Author:       resp.AuthorName,
		ThumbnailURL: resp.ThumbnailURL,
	}, nil
}
