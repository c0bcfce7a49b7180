// Package resolver maps a video title to the movie it advertises.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/fiffu/trailerwatch/lib/catalog"
	"github.com/fiffu/trailerwatch/lib/models"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

var ErrNotFound = errors.New("movie not found")

type Resolver struct {
	log     *zap.Logger
	catalog catalog.Catalog
}

func NewResolver(log *zap.Logger, c catalog.Catalog) *Resolver {
	return &Resolver{log, c}
}

// GuessTitle keeps the text before the first separator uploaders put between
// the movie name and the rest, as in "Movie Title | Official Trailer".
func GuessTitle(raw string) string {
	if i := strings.IndexAny(raw, "|(-–"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

func (r *Resolver) ResolveByTitleGuess(ctx context.Context, rawTitle string) (*models.MovieInfo, error) {
	return r.FindMovie(ctx, GuessTitle(rawTitle))
}

// FindMovie searches the catalog for query and returns the closest title.
func (r *Resolver) FindMovie(ctx context.Context, query string) (*models.MovieInfo, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty title", ErrNotFound)
	}

	results, err := r.catalog.SearchMovies(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no results for %q", ErrNotFound, query)
	}

	titles := make([]string, len(results))
	for i, m := range results {
		titles[i] = m.Title
	}
	best := results[ClosestTitle(query, titles)]

	movie, err := r.catalog.MovieDetails(ctx, best.ID)
	if err != nil {
		return nil, err
	}
	info := r.toMovieInfo(movie)
	return &info, nil
}

// Upcoming lists the most popular movies released on or after asOf.
func (r *Resolver) Upcoming(ctx context.Context, asOf time.Time) ([]models.MovieInfo, error) {
	results, err := r.catalog.DiscoverMovies(ctx, asOf)
	if err != nil {
		return nil, err
	}
	infos := make([]models.MovieInfo, len(results))
	for i := range results {
		infos[i] = r.toMovieInfo(&results[i])
	}
	return infos, nil
}

// ClosestTitle returns the index of the title with the smallest edit distance
// to target. Ties keep the earlier index.
func ClosestTitle(target string, titles []string) int {
	target = normalize(target)
	index, distance := 0, -1
	for i, title := range titles {
		d := levenshtein.ComputeDistance(target, normalize(title))
		if distance < 0 || d < distance {
			index, distance = i, d
		}
	}
	return index
}

func normalize(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
