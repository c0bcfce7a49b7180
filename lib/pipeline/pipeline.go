// Package pipeline turns one page of the feed into distribution events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fiffu/trailerwatch/lib/catalog"
	"github.com/fiffu/trailerwatch/lib/classifier"
	"github.com/fiffu/trailerwatch/lib/feed"
	"github.com/fiffu/trailerwatch/lib/metrics"
	"github.com/fiffu/trailerwatch/lib/models"
	"github.com/fiffu/trailerwatch/lib/resolver"
	"github.com/fiffu/trailerwatch/lib/video"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrSourceUnavailable aborts a run: the feed could not be read, or the movie
// catalog could not answer. The next scheduled run retries.
var ErrSourceUnavailable = errors.New("source unavailable")

type Stage string

const (
	StageFetching    Stage = "fetching"
	StageClassifying Stage = "classifying"
	StageDeduping    Stage = "deduping"
	StageResolving   Stage = "resolving"
	StageEmitting    Stage = "emitting"
	StageDone        Stage = "done"
)

type Ledger interface {
	WasSeen(ctx context.Context, videoID string) (bool, error)
	MarkSeen(ctx context.Context, videoID string) (inserted bool, err error)
	Forget(ctx context.Context, videoID string) (bool, error)
}

type Resolver interface {
	ResolveByTitleGuess(ctx context.Context, rawTitle string) (*models.MovieInfo, error)
}

// Emitter receives each event that survives a run.
type Emitter interface {
	Emit(ctx context.Context, event models.DistributionEvent)
}

type RunOptions struct {
	PollLimit      int  `json:"poll_limit"`
	ScoreThreshold int  `json:"score_threshold"`
	RepostSeen     bool `json:"repost_seen"`
}

type Pipeline struct {
	log      *zap.Logger
	feed     feed.Source
	videos   video.Source
	ledger   Ledger
	resolver Resolver
	emitter  Emitter

	concurrency  int
	fetchTimeout time.Duration
}

func New(log *zap.Logger, src feed.Source, videos video.Source, ledger Ledger, res Resolver, emitter Emitter, concurrency int, fetchTimeout time.Duration) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{log, src, videos, ledger, res, emitter, concurrency, fetchTimeout}
}

func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	start := time.Now()
	log := p.log.Sugar().With("run_id", report.RunID)

	report, err := p.run(ctx, log, opts, report)

	report.Elapsed = time.Since(start)
	report.observe()
	metrics.PipelineRuns.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		log.Errorw("Run aborted", append(report.keyvals(), "err", err)...)
		return report, err
	}
	log.Infow("Run completed", report.keyvals()...)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, log *zap.SugaredLogger, opts RunOptions, report *Report) (*Report, error) {
	log.Debugw("Run stage", "stage", StageFetching, "poll_limit", opts.PollLimit)
	items, err := p.fetch(ctx, opts.PollLimit)
	if err != nil {
		return report, err
	}
	report.Fetched = len(items)

	log.Debugw("Run stage", "stage", StageClassifying)
	candidates := make([]models.TrailerCandidate, 0, len(items))
	for _, item := range items {
		cand, ok := classifier.Stage1(item, opts.ScoreThreshold)
		if !ok {
			log.Debugw("Ignored feed item", "item_id", item.ID, "title", item.Title)
			report.Ignored++
			continue
		}
		candidates = append(candidates, cand)
	}

	log.Debugw("Run stage", "stage", StageDeduping)
	candidates, err = p.dedup(ctx, log, candidates, opts.RepostSeen, report)
	if err != nil {
		return report, err
	}

	log.Debugw("Run stage", "stage", StageResolving, "candidates", len(candidates))
	events, err := p.resolveAll(ctx, log, candidates, opts.RepostSeen, report)

	// Anything resolved was already marked seen, so it goes out even if the
	// run is being aborted.
	log.Debugw("Run stage", "stage", StageEmitting, "events", len(events))
	for _, evt := range events {
		if ctx.Err() != nil {
			break
		}
		p.emitter.Emit(ctx, evt)
		report.Emitted++
		report.Events = append(report.Events, evt)
	}
	if err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	log.Debugw("Run stage", "stage", StageDone)
	return report, nil
}

func (p *Pipeline) fetch(ctx context.Context, limit int) ([]models.FeedItem, error) {
	ctx, cancel := p.withFetchTimeout(ctx)
	defer cancel()

	items, err := p.feed.Hot(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// dedup keeps the first candidate per video and, unless reposting, drops
// videos the ledger already holds.
func (p *Pipeline) dedup(ctx context.Context, log *zap.SugaredLogger, candidates []models.TrailerCandidate, repostSeen bool, report *Report) ([]models.TrailerCandidate, error) {
	unique := make([]models.TrailerCandidate, 0, len(candidates))
	inRun := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		if inRun[cand.VideoID] {
			report.Duplicate++
			continue
		}
		inRun[cand.VideoID] = true

		if !repostSeen {
			seen, err := p.ledger.WasSeen(ctx, cand.VideoID)
			if err != nil {
				return nil, fmt.Errorf("ledger lookup %s: %w", cand.VideoID, err)
			}
			if seen {
				log.Debugw("Already distributed", "video_id", cand.VideoID)
				report.Duplicate++
				continue
			}
		}
		unique = append(unique, cand)
	}
	return unique, nil
}

func (p *Pipeline) resolveAll(ctx context.Context, log *zap.SugaredLogger, candidates []models.TrailerCandidate, repostSeen bool, report *Report) ([]models.DistributionEvent, error) {
	var mu sync.Mutex
	events := make([]*models.DistributionEvent, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, cand := range candidates {
		g.Go(func() error {
			evt, m, err := p.process(gctx, log, cand, repostSeen)
			mu.Lock()
			defer mu.Unlock()
			report.Add(m)
			events[i] = evt
			return err
		})
	}
	err := g.Wait()

	out := make([]models.DistributionEvent, 0, len(events))
	for _, evt := range events {
		if evt != nil {
			out = append(out, *evt)
		}
	}
	return out, err
}

// process takes one candidate through lookup, confirmation, claim and
// resolution. Only a catalog outage is returned as an error; every other
// failure drops this item alone.
func (p *Pipeline) process(ctx context.Context, log *zap.SugaredLogger, cand models.TrailerCandidate, repostSeen bool) (*models.DistributionEvent, *Report, error) {
	log = log.With("video_id", cand.VideoID)

	info, err := p.videoInfo(ctx, cand.VideoID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Report{}, nil
		}
		log.Warnw("Video lookup failed", "err", err)
		return nil, &Report{Failed: 1}, nil
	}

	if !classifier.Stage2(info.Title) {
		log.Debugw("Linked video is not a trailer", "video_title", info.Title)
		return nil, &Report{Unconfirmed: 1}, nil
	}

	inserted, err := p.ledger.MarkSeen(ctx, cand.VideoID)
	if err != nil {
		log.Errorw("Failed to mark video seen", "err", err)
		return nil, &Report{Failed: 1}, nil
	}
	if !inserted && !repostSeen {
		return nil, &Report{Duplicate: 1}, nil
	}

	movie, err := p.resolver.ResolveByTitleGuess(ctx, info.Title)
	switch {
	case errors.Is(err, catalog.ErrUnavailable):
		p.release(ctx, log, cand.VideoID, inserted)
		return nil, &Report{Failed: 1}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	case err != nil && errors.Is(context.Cause(ctx), ErrSourceUnavailable):
		// Another worker hit the outage and cancelled this lookup.
		p.release(ctx, log, cand.VideoID, inserted)
		return nil, &Report{}, nil
	case errors.Is(err, resolver.ErrNotFound):
		log.Infow("No movie matched", "video_title", info.Title)
		return nil, &Report{Unresolved: 1}, nil
	case err != nil:
		log.Warnw("Movie lookup failed", "video_title", info.Title, "err", err)
		return nil, &Report{Failed: 1}, nil
	}

	return &models.DistributionEvent{
		ID:         uuid.NewString(),
		VideoID:    cand.VideoID,
		VideoURL:   cand.URL,
		VideoTitle: info.Title,
		Movie:      *movie,
	}, &Report{}, nil
}

// release gives back a claim taken by this run so the next run can retry the
// video.
func (p *Pipeline) release(ctx context.Context, log *zap.SugaredLogger, videoID string, inserted bool) {
	if !inserted {
		return
	}
	if _, err := p.ledger.Forget(context.WithoutCancel(ctx), videoID); err != nil {
		log.Errorw("Failed to release claim", "err", err)
	}
}

func (p *Pipeline) videoInfo(ctx context.Context, videoID string) (*models.VideoInfo, error) {
	ctx, cancel := p.withFetchTimeout(ctx)
	defer cancel()
	return p.videos.Info(ctx, videoID)
}

func (p *Pipeline) withFetchTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.fetchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.fetchTimeout)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
