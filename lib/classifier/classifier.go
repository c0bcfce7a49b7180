// Package classifier decides whether feed items link to movie trailers.
package classifier

import (
	"strings"

	"github.com/fiffu/trailerwatch/lib/models"
	"golang.org/x/text/cases"
)

var Keywords = []string{"trailer", "teaser"}

// Stage1 is the cheap check run on a feed item before anything is fetched.
func Stage1(item models.FeedItem, scoreThreshold int) (models.TrailerCandidate, bool) {
	if item.Score < scoreThreshold {
		return models.TrailerCandidate{}, false
	}
	if !HasKeyword(item.Title) && !HasKeyword(item.FlairText) {
		return models.TrailerCandidate{}, false
	}
	videoID, ok := VideoID(item.URL)
	if !ok {
		return models.TrailerCandidate{}, false
	}
	return models.TrailerCandidate{FeedItem: item, VideoID: videoID}, true
}

// Stage2 confirms a candidate against the title of the linked video, which
// filters out reaction videos posted under a "trailer" headline.
func Stage2(videoTitle string) bool {
	return HasKeyword(videoTitle)
}

func HasKeyword(s string) bool {
	if s == "" {
		return false
	}
	// Casers carry state, so each call gets its own.
	folded := cases.Fold().String(s)
	for _, kw := range Keywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}
