package classifier

import (
	"net/url"
	"regexp"
	"strings"
)

const vimeoPrefix = "vimeo:"

var (
	youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	vimeoIDPattern   = regexp.MustCompile(`^[0-9]+$`)
)

// VideoID extracts a stable identifier from a video link. YouTube ids are
// returned as-is, other hosts are prefixed with their name.
func VideoID(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtube-nocookie.com":
		return youtubeID(u, segments)
	case "youtu.be":
		return validYoutubeID(segments[0])
	case "vimeo.com", "player.vimeo.com":
		return vimeoID(segments)
	}
	return "", false
}

func IsVideoURL(rawURL string) bool {
	_, ok := VideoID(rawURL)
	return ok
}

// IsVimeoID reports whether id was produced from a Vimeo link.
func IsVimeoID(id string) bool {
	return strings.HasPrefix(id, vimeoPrefix)
}

// WatchURL rebuilds a canonical link from an id returned by VideoID.
func WatchURL(id string) string {
	if IsVimeoID(id) {
		return "https://vimeo.com/" + strings.TrimPrefix(id, vimeoPrefix)
	}
	return "https://www.youtube.com/watch?v=" + id
}

func youtubeID(u *url.URL, segments []string) (string, bool) {
	if len(segments) == 1 && segments[0] == "watch" {
		return validYoutubeID(u.Query().Get("v"))
	}
	if len(segments) >= 2 {
		switch segments[0] {
		case "shorts", "embed", "live", "v":
			return validYoutubeID(segments[1])
		}
	}
	return "", false
}

func validYoutubeID(id string) (string, bool) {
	if youtubeIDPattern.MatchString(id) {
		return id, true
	}
	return "", false
}

func vimeoID(segments []string) (string, bool) {
	// vimeo.com/<id>, vimeo.com/channels/<name>/<id>, player.vimeo.com/video/<id>
	last := segments[len(segments)-1]
	if vimeoIDPattern.MatchString(last) {
		return vimeoPrefix + last, true
	}
	return "", false
}
