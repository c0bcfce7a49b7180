package models

// FeedItem is one post from the external feed, valid for a single poll.
type FeedItem struct {
	ID        string
	URL       string
	Title     string
	FlairText string
	Score     int
}

// TrailerCandidate is a FeedItem that passed the first classification stage.
type TrailerCandidate struct {
	FeedItem
	VideoID string
}

// VideoInfo is what the video host reports about a linked video.
type VideoInfo struct {
	VideoID      string
	URL          string
	Title        string
	Author       string
	ThumbnailURL string
}

// MovieInfo is resolved catalog metadata. Only Title is guaranteed; a missing
// TrailerURL is represented by the empty string.
type MovieInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PosterURL   string `json:"poster_url"`
	Rating      string `json:"rating"`
	Genres      string `json:"genres"`
	ReleaseDate string `json:"release_date"`
	TrailerURL  string `json:"trailer_url,omitempty"`
}

// DistributionEvent is handed from the pipeline to the dispatcher.
type DistributionEvent struct {
	ID         string
	VideoID    string
	VideoURL   string
	VideoTitle string
	Movie      MovieInfo
}
