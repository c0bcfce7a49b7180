package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fiffu/trailerwatch/lib/catalog"
	"github.com/fiffu/trailerwatch/lib/dbtest"
	"github.com/fiffu/trailerwatch/lib/ledger"
	"github.com/fiffu/trailerwatch/lib/models"
	"github.com/fiffu/trailerwatch/lib/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeFeed struct {
	items []models.FeedItem
	err   error
}

func (f *fakeFeed) Hot(ctx context.Context, limit int) ([]models.FeedItem, error) {
	return f.items, f.err
}

type fakeVideos struct {
	titles map[string]string // video id -> title
}

func (f *fakeVideos) Info(ctx context.Context, videoID string) (*models.VideoInfo, error) {
	title, ok := f.titles[videoID]
	if !ok {
		return nil, errors.New("video unavailable")
	}
	return &models.VideoInfo{VideoID: videoID, Title: title}, nil
}

type fakeResolver struct {
	err error
}

func (f *fakeResolver) ResolveByTitleGuess(ctx context.Context, rawTitle string) (*models.MovieInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	guess := resolver.GuessTitle(rawTitle)
	if strings.HasPrefix(guess, "Unknown") {
		return nil, resolver.ErrNotFound
	}
	return &models.MovieInfo{Title: guess}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.DistributionEvent
}

func (e *recordingEmitter) Emit(ctx context.Context, evt models.DistributionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

type fixture struct {
	db       *gorm.DB
	feed     *fakeFeed
	resolver *fakeResolver
	emitter  *recordingEmitter
	pipeline *Pipeline
}

func newFixture(t *testing.T, items []models.FeedItem, titles map[string]string) *fixture {
	db := dbtest.Open(t)
	f := &fixture{
		db:       db,
		feed:     &fakeFeed{items: items},
		resolver: &fakeResolver{},
		emitter:  &recordingEmitter{},
	}
	f.pipeline = New(zap.NewNop(), f.feed, &fakeVideos{titles}, ledger.NewLedger(db), f.resolver, f.emitter, 3, 0)
	return f
}

func (f *fixture) seenCount(t *testing.T) int64 {
	var count int64
	require.NoError(t, f.db.Model(&models.SeenTrailer{}).Count(&count).Error)
	return count
}

func item(id, url, title string, score int) models.FeedItem {
	return models.FeedItem{ID: id, URL: url, Title: title, Score: score}
}

var defaultOpts = RunOptions{PollLimit: 10, ScoreThreshold: 300}

func TestRun_SecondRunDoesNotRedistribute(t *testing.T) {
	f := newFixture(t,
		[]models.FeedItem{item("p1", "https://youtu.be/AAAAAAAAAAA", "Arrival 2 - Official Trailer", 900)},
		map[string]string{
			"AAAAAAAAAAA": "Arrival 2 | Official Trailer",
			"BBBBBBBBBBB": "Dune 3 | Teaser Trailer",
		},
	)
	ctx := context.Background()

	report, err := f.pipeline.Run(ctx, defaultOpts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Emitted)
	require.Len(t, f.emitter.events, 1)
	evt := f.emitter.events[0]
	assert.Equal(t, "AAAAAAAAAAA", evt.VideoID)
	assert.Equal(t, "https://youtu.be/AAAAAAAAAAA", evt.VideoURL)
	assert.Equal(t, "Arrival 2", evt.Movie.Title)
	assert.NotEmpty(t, evt.ID)

	// The next snapshot overlaps the first and adds one new trailer.
	f.feed.items = []models.FeedItem{
		item("p2", "https://youtu.be/BBBBBBBBBBB", "Dune 3 teaser", 1200),
		item("p1", "https://youtu.be/AAAAAAAAAAA", "Arrival 2 - Official Trailer", 950),
	}
	report, err = f.pipeline.Run(ctx, defaultOpts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Emitted)
	assert.Equal(t, 1, report.Duplicate)
	require.Len(t, f.emitter.events, 2)
	assert.Equal(t, "BBBBBBBBBBB", f.emitter.events[1].VideoID)
	assert.Equal(t, "Dune 3", f.emitter.events[1].Movie.Title)
	assert.EqualValues(t, 2, f.seenCount(t))
}

func TestRun_RepostSeenStillMarks(t *testing.T) {
	f := newFixture(t,
		[]models.FeedItem{item("p1", "https://youtu.be/AAAAAAAAAAA", "Arrival 2 - Official Trailer", 900)},
		map[string]string{"AAAAAAAAAAA": "Arrival 2 | Official Trailer"},
	)
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, defaultOpts)
	require.NoError(t, err)

	report, err := f.pipeline.Run(ctx, RunOptions{PollLimit: 10, ScoreThreshold: 0, RepostSeen: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Emitted)
	assert.Len(t, f.emitter.events, 2)
	assert.EqualValues(t, 1, f.seenCount(t))
}

func TestRun_FeedOutageMarksNothing(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.feed.err = errors.New("503 Service Unavailable")

	report, err := f.pipeline.Run(context.Background(), defaultOpts)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.Fetched)
	assert.Empty(t, f.emitter.events)
	assert.EqualValues(t, 0, f.seenCount(t))
}

func TestRun_DropsAreCounted(t *testing.T) {
	f := newFixture(t,
		[]models.FeedItem{
			item("ok", "https://youtu.be/AAAAAAAAAAA", "Arrival 2 trailer", 900),
			item("low", "https://youtu.be/BBBBBBBBBBB", "Low score trailer", 10),
			item("text", "https://reddit.com/r/movies/x", "Trailer discussion", 900),
			item("dupe", "https://www.youtube.com/watch?v=AAAAAAAAAAA", "Arrival 2 trailer again", 900),
			item("gone", "https://youtu.be/CCCCCCCCCCC", "Deleted trailer", 900),
			item("react", "https://youtu.be/DDDDDDDDDDD", "Trailer reaction", 900),
			item("nomatch", "https://youtu.be/EEEEEEEEEEE", "Unknown trailer", 900),
		},
		map[string]string{
			"AAAAAAAAAAA": "Arrival 2 | Official Trailer",
			"DDDDDDDDDDD": "We watched it so you don't have to",
			"EEEEEEEEEEE": "Unknown Film | Teaser",
		},
	)

	report, err := f.pipeline.Run(context.Background(), defaultOpts)
	require.NoError(t, err)
	assert.Equal(t, 7, report.Fetched)
	assert.Equal(t, 2, report.Ignored)
	assert.Equal(t, 1, report.Duplicate)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Unconfirmed)
	assert.Equal(t, 1, report.Unresolved)
	assert.Equal(t, 1, report.Emitted)

	// Unresolved items are marked before resolution and stay marked.
	assert.EqualValues(t, 2, f.seenCount(t))
}

func TestRun_CatalogOutageAborts(t *testing.T) {
	f := newFixture(t,
		[]models.FeedItem{item("p1", "https://youtu.be/AAAAAAAAAAA", "Arrival 2 trailer", 900)},
		map[string]string{"AAAAAAAAAAA": "Arrival 2 | Official Trailer"},
	)
	f.resolver.err = catalog.ErrUnavailable
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, defaultOpts)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, catalog.ErrUnavailable)
	assert.Empty(t, f.emitter.events)
	assert.EqualValues(t, 0, f.seenCount(t))

	// Once the catalog is back the same trailer goes out.
	f.resolver.err = nil
	report, err := f.pipeline.Run(ctx, defaultOpts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Emitted)
	assert.EqualValues(t, 1, f.seenCount(t))
}

func TestRun_CatalogUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	log := zap.NewNop()
	tmdb, err := catalog.New(log, "key", http.DefaultTransport, catalog.WithBaseURL(server.URL), catalog.WithRateLimit(0))
	require.NoError(t, err)

	db := dbtest.Open(t)
	emitter := &recordingEmitter{}
	src := &fakeFeed{items: []models.FeedItem{
		item("p1", "https://youtu.be/AAAAAAAAAAA", "Arrival 2 trailer", 900),
		item("p2", "https://youtu.be/BBBBBBBBBBB", "Dune 3 teaser", 900),
		item("p3", "https://youtu.be/CCCCCCCCCCC", "Heat 2 official trailer", 900),
	}}
	videos := &fakeVideos{map[string]string{
		"AAAAAAAAAAA": "Arrival 2 | Official Trailer",
		"BBBBBBBBBBB": "Dune 3 | Teaser",
		"CCCCCCCCCCC": "Heat 2 | Official Trailer",
	}}
	p := New(log, src, videos, ledger.NewLedger(db), resolver.NewResolver(log, tmdb), emitter, 3, 0)
	f := &fixture{db: db}

	for run := 0; run < 2; run++ {
		report, err := p.Run(context.Background(), defaultOpts)
		assert.ErrorIs(t, err, ErrSourceUnavailable)
		assert.ErrorIs(t, err, catalog.ErrUnavailable)
		require.NotNil(t, report)
		assert.Equal(t, 0, report.Duplicate, "run %d", run)
		assert.Equal(t, 0, report.Emitted)
		assert.EqualValues(t, 0, f.seenCount(t))
	}
	assert.Empty(t, emitter.events)
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t,
		[]models.FeedItem{item("p1", "https://youtu.be/AAAAAAAAAAA", "Arrival 2 trailer", 900)},
		map[string]string{"AAAAAAAAAAA": "Arrival 2 | Official Trailer"},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Run(ctx, defaultOpts)
	assert.Error(t, err)
	assert.Empty(t, f.emitter.events)
}
