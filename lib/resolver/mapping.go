package resolver

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fiffu/trailerwatch/lib/catalog"
	"github.com/fiffu/trailerwatch/lib/models"
)

const (
	notAvailable = "N/A"

	movieURLPrefix  = "https://www.themoviedb.org/movie/"
	posterURLPrefix = "https://image.tmdb.org/t/p/original"
	releaseLayout   = "2 Jan 2006"
)

func (r *Resolver) toMovieInfo(m *catalog.Movie) models.MovieInfo {
	info := models.MovieInfo{
		Title:       m.Title,
		Description: m.Overview,
		Rating:      rating(m.VoteAverage),
		Genres:      genres(m.Genres),
		ReleaseDate: releaseDate(m.ReleaseDate),
		TrailerURL:  r.trailerURL(m),
	}
	if m.ID != 0 {
		info.URL = fmt.Sprintf("%s%d", movieURLPrefix, m.ID)
	}
	if m.PosterPath != "" {
		info.PosterURL = posterURLPrefix + "/" + strings.TrimPrefix(m.PosterPath, "/")
	}
	return info
}

func rating(voteAverage float64) string {
	if voteAverage <= 0 {
		return notAvailable
	}
	return fmt.Sprintf("%d%%", int(math.Round(voteAverage*10)))
}

func genres(gs []catalog.Genre) string {
	names := make([]string, 0, len(gs))
	for _, g := range gs {
		if g.Name != "" {
			names = append(names, g.Name)
		}
	}
	if len(names) == 0 {
		return notAvailable
	}
	return strings.Join(names, ", ")
}

func releaseDate(s string) string {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return notAvailable
	}
	return t.Format(releaseLayout)
}

// trailerURL links the first video typed "Trailer". Hosts we cannot build a
// link for leave the movie without one.
func (r *Resolver) trailerURL(m *catalog.Movie) string {
	for _, v := range m.Videos.Results {
		if v.Type != "Trailer" {
			continue
		}
		switch v.Site {
		case "YouTube":
			return "https://youtu.be/" + v.Key
		case "Vimeo":
			return "https://vimeo.com/" + v.Key
		default:
			r.log.Sugar().Infow("Unhandled trailer site", "site", v.Site, "movie_id", m.ID)
			return ""
		}
	}
	return ""
}
