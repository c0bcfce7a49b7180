package senders

import (
	"fmt"

	"github.com/fiffu/trailerwatch/lib/models"
)

type trailerMessage struct {
	*models.DistributionEvent
}

func (m trailerMessage) Subject() string {
	return fmt.Sprintf("New trailer: %s", m.Movie.Title)
}

// Link is the post's video, or the catalog's trailer when the post has none.
func (m trailerMessage) Link() string {
	if m.VideoURL != "" {
		return m.VideoURL
	}
	return m.Movie.TrailerURL
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
