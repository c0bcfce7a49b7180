package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/fiffu/trailerwatch/lib/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCatalog struct {
	search   []catalog.Movie
	details  map[int64]*catalog.Movie
	discover []catalog.Movie

	queries  []string
	detailed []int64
	err      error
}

func (f *fakeCatalog) SearchMovies(ctx context.Context, query string) ([]catalog.Movie, error) {
	f.queries = append(f.queries, query)
	return f.search, f.err
}

func (f *fakeCatalog) MovieDetails(ctx context.Context, id int64) (*catalog.Movie, error) {
	f.detailed = append(f.detailed, id)
	if m, ok := f.details[id]; ok {
		return m, nil
	}
	return &catalog.Movie{ID: id}, f.err
}

func (f *fakeCatalog) DiscoverMovies(ctx context.Context, releasedFrom time.Time) ([]catalog.Movie, error) {
	return f.discover, f.err
}

func TestGuessTitle(t *testing.T) {
	tests := map[string]string{
		"Some Movie | Official Trailer (2024)": "Some Movie",
		"Dune: Part Two (2024) Final Trailer":  "Dune: Part Two",
		"Nosferatu - Official Teaser":          "Nosferatu",
		"Sinners – Official Trailer":           "Sinners",
		"  Untitled  ":                         "Untitled",
		"| Official Trailer":                   "",
	}
	for raw, want := range tests {
		assert.Equal(t, want, GuessTitle(raw), raw)
	}
}

func TestResolveByTitleGuess_PicksClosestTitle(t *testing.T) {
	fc := &fakeCatalog{
		search: []catalog.Movie{
			{ID: 240, Title: "The Godfather Part II"},
			{ID: 238, Title: "The Godfather"},
			{ID: 242, Title: "The Godfather Part III"},
		},
		details: map[int64]*catalog.Movie{
			238: {ID: 238, Title: "The Godfather", VoteAverage: 8.7},
		},
	}
	r := NewResolver(zap.NewNop(), fc)

	info, err := r.ResolveByTitleGuess(context.Background(), "The Godfather | 50th Anniversary Trailer")
	require.NoError(t, err)
	assert.Equal(t, "The Godfather", info.Title)
	assert.Equal(t, []string{"The Godfather"}, fc.queries)
	assert.Equal(t, []int64{238}, fc.detailed)
}

func TestClosestTitle(t *testing.T) {
	titles := []string{"The Godfather", "Godzilla", "The Godfather Part II", "City of God"}
	tests := map[string]string{
		"godfather":        "The Godfather",
		"godfather part 2": "The Godfather Part II",
		"GODZILLA ":        "Godzilla",
		"city of god":      "City of God",
	}
	for query, want := range tests {
		assert.Equal(t, want, titles[ClosestTitle(query, titles)], query)
	}
}

func TestClosestTitle_TieKeepsFirst(t *testing.T) {
	assert.Equal(t, 0, ClosestTitle("abc", []string{"abd", "abe"}))
	assert.Equal(t, 1, ClosestTitle("  ALIEN ", []string{"Aliens", "alien"}))
	assert.Equal(t, 0, ClosestTitle("x", nil))
}

func TestResolve_EmptyCatalogResult(t *testing.T) {
	r := NewResolver(zap.NewNop(), &fakeCatalog{})

	_, err := r.ResolveByTitleGuess(context.Background(), "Nothing Like This | Trailer")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.ResolveByTitleGuess(context.Background(), "| Trailer")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_CatalogErrorPassesThrough(t *testing.T) {
	r := NewResolver(zap.NewNop(), &fakeCatalog{err: catalog.ErrUnavailable})
	_, err := r.FindMovie(context.Background(), "Alien")
	assert.ErrorIs(t, err, catalog.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMapping(t *testing.T) {
	r := NewResolver(zap.NewNop(), &fakeCatalog{})

	m := &catalog.Movie{
		ID:          238,
		Title:       "The Godfather",
		Overview:    "Spanning the years 1945 to 1955...",
		PosterPath:  "/3bhkrj58Vtu7enYsRolD1fZdja1.jpg",
		ReleaseDate: "1972-03-14",
		VoteAverage: 8.689,
		Genres:      []catalog.Genre{{Name: "Drama"}, {Name: "Crime"}},
	}
	m.Videos.Results = []catalog.Video{
		{Key: "featurette", Site: "YouTube", Type: "Featurette"},
		{Key: "abc", Site: "YouTube", Type: "Trailer"},
	}

	info := r.toMovieInfo(m)
	assert.Equal(t, "87%", info.Rating)
	assert.Equal(t, "Drama, Crime", info.Genres)
	assert.Equal(t, "14 Mar 1972", info.ReleaseDate)
	assert.Equal(t, "https://www.themoviedb.org/movie/238", info.URL)
	assert.Equal(t, "https://image.tmdb.org/t/p/original/3bhkrj58Vtu7enYsRolD1fZdja1.jpg", info.PosterURL)
	assert.Equal(t, "https://youtu.be/abc", info.TrailerURL)
}

func TestMapping_MissingFields(t *testing.T) {
	r := NewResolver(zap.NewNop(), &fakeCatalog{})

	info := r.toMovieInfo(&catalog.Movie{Title: "Obscure"})
	assert.Equal(t, "Obscure", info.Title)
	assert.Equal(t, "N/A", info.Rating)
	assert.Equal(t, "N/A", info.Genres)
	assert.Equal(t, "N/A", info.ReleaseDate)
	assert.Empty(t, info.URL)
	assert.Empty(t, info.PosterURL)
	assert.Empty(t, info.TrailerURL)
}

func TestTrailerURL(t *testing.T) {
	r := NewResolver(zap.NewNop(), &fakeCatalog{})
	tests := []struct {
		site string
		want string
	}{
		{"YouTube", "https://youtu.be/abc"},
		{"Vimeo", "https://vimeo.com/abc"},
		{"UnknownSite", ""},
	}
	for _, tc := range tests {
		m := &catalog.Movie{Title: "M"}
		m.Videos.Results = []catalog.Video{{Key: "abc", Site: tc.site, Type: "Trailer"}}
		info := r.toMovieInfo(m)
		assert.Equal(t, tc.want, info.TrailerURL, tc.site)
		assert.Equal(t, "M", info.Title)
	}
}

func TestUpcoming(t *testing.T) {
	fc := &fakeCatalog{discover: []catalog.Movie{
		{ID: 1, Title: "First", ReleaseDate: "2026-11-01"},
		{ID: 2, Title: "Second"},
	}}
	r := NewResolver(zap.NewNop(), fc)

	infos, err := r.Upcoming(context.Background(), time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "1 Nov 2026", infos[0].ReleaseDate)
	assert.Equal(t, "N/A", infos[1].ReleaseDate)
}
