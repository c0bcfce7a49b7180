package video

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/carlmjohnson/requests"
	"github.com/fiffu/trailerwatch/lib/models"
	"golang.org/x/net/html"
)

var whitespace = regexp.MustCompile(`\s+`)

func (c *Client) fromPage(ctx context.Context, videoID, watchURL string) (*models.VideoInfo, error) {
	var body string
	err := requests.URL(watchURL).
		Transport(c.transport).
		ToString(&body).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := htmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	title := metaContent(doc, "//meta[@property = 'og:title']")
	if title == "" {
		title = selectText(doc, "/html/head/title")
	}
	if title == "" {
		return nil, ErrNoTitle
	}
	return &models.VideoInfo{
		VideoID:      videoID,
		URL:          watchURL,
		Title:        title,
		ThumbnailURL: imageURL(doc),
	}, nil
}

func imageURL(n *html.Node) string {
	if url := metaContent(n, "//meta[@property = 'og:image']"); url != "" {
		return url
	}
	return metaContent(n, "//meta[@name = 'twitter:image']")
}

func metaContent(n *html.Node, xpath string) string {
	elem := htmlquery.FindOne(n, xpath)
	if elem == nil {
		return ""
	}
	return compactWhitespace(htmlquery.SelectAttr(elem, "content"))
}

func selectText(n *html.Node, xpath string) string {
	node := htmlquery.FindOne(n, xpath)
	if node == nil {
		return ""
	}
	buf := new(bytes.Buffer)
	dig(node, buf)
	return compactWhitespace(buf.String())
}

func dig(n *html.Node, buf *bytes.Buffer) {
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		dig(c, buf)
	}
}

func compactWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
