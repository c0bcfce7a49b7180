// Package feed reads candidate posts from a subreddit's hot listing.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/trailerwatch/lib/models"
)

const DefaultBaseURL = "https://www.reddit.com"

// Source lists the current hot items of the watched feed.
type Source interface {
	Hot(ctx context.Context, limit int) ([]models.FeedItem, error)
}

type Reddit struct {
	baseURL   string
	subreddit string
	userAgent string
	transport http.RoundTripper
}

var _ Source = (*Reddit)(nil)

type Option func(*Reddit)

func WithBaseURL(baseURL string) Option {
	return func(r *Reddit) {
		if baseURL != "" {
			r.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(r *Reddit) { r.userAgent = ua }
}

func NewReddit(subreddit string, transport http.RoundTripper, opts ...Option) *Reddit {
	r := &Reddit{
		baseURL:   DefaultBaseURL,
		subreddit: subreddit,
		transport: transport,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data struct {
				ID            string `json:"id"`
				URL           string `json:"url"`
				Title         string `json:"title"`
				LinkFlairText string `json:"link_flair_text"`
				Score         int    `json:"score"`
				Stickied      bool   `json:"stickied"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (r *Reddit) Hot(ctx context.Context, limit int) ([]models.FeedItem, error) {
	var resp listing
	rb := requests.URL(r.baseURL).
		Pathf("/r/%s/hot.json", r.subreddit).
		Param("limit", strconv.Itoa(limit)).
		Param("raw_json", "1").
		Transport(r.transport).
		ToJSON(&resp)
	if r.userAgent != "" {
		rb = rb.Header("User-Agent", r.userAgent)
	}
	if err := rb.Fetch(ctx); err != nil {
		return nil, fmt.Errorf("reddit: fetch r/%s: %w", r.subreddit, err)
	}

	items := make([]models.FeedItem, 0, len(resp.Data.Children))
	for _, child := range resp.Data.Children {
		// Listings only carry link posts as t3.
		if child.Kind != "t3" {
			continue
		}
		post := child.Data
		items = append(items, models.FeedItem{
			ID:        post.ID,
			URL:       post.URL,
			Title:     post.Title,
			FlairText: post.LinkFlairText,
			Score:     post.Score,
		})
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items, nil
}
