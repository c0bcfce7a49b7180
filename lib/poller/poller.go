// Package poller runs the ingestion pipeline on a schedule, one run at a time.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fiffu/trailerwatch/config"
	"github.com/fiffu/trailerwatch/lib/pipeline"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrRunInProgress = errors.New("a run is already in progress")

type Runner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Report, error)
}

type Poller struct {
	log    *zap.Logger
	runner Runner

	mu         sync.Mutex
	alarmClock *alarmClock
	cancel     context.CancelFunc
	done       chan struct{}

	interval    time.Duration
	opts        pipeline.RunOptions  // scheduled runs
	startupOpts *pipeline.RunOptions // first run only, when backfilling
}

func NewPoller(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, runner *pipeline.Pipeline) *Poller {
	p := New(log, runner, cfg.Poll.Interval, pipeline.RunOptions{
		PollLimit:      cfg.Poll.Limit,
		ScoreThreshold: cfg.Poll.ScoreThreshold,
		RepostSeen:     cfg.Poll.RepostSeen,
	})
	if b := cfg.Backfill(); b != nil {
		p.startupOpts = &pipeline.RunOptions{
			PollLimit:      b.Limit,
			ScoreThreshold: b.ScoreThreshold,
			RepostSeen:     b.RepostSeen,
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// ctx only lives as long as the start hook.
			p.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop poller")
			p.Stop(ctx)
			return nil
		},
	})
	return p
}

func New(log *zap.Logger, runner Runner, interval time.Duration, opts pipeline.RunOptions) *Poller {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Poller{
		log:        log,
		runner:     runner,
		alarmClock: NewAlarmClock(interval),
		interval:   interval,
		opts:       opts,
	}
}

func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	c := p.alarmClock.Start(ctx)

	go func() {
		defer close(p.done)
		for evt := range c {
			p.handleEvent(ctx, evt)
		}
	}()
	p.log.Sugar().Infow("Poller started", "interval", p.interval.String())
}

// Stop cancels any in-flight run and waits for it, or for ctx, to finish.
func (p *Poller) Stop(ctx context.Context) {
	if p.cancel == nil {
		return
	}
	p.cancel()
	select {
	case <-p.done:
	case <-ctx.Done():
	}
	p.log.Sugar().Info("Poller stopped")
}

func (p *Poller) handleEvent(ctx context.Context, evt Event) {
	opts := p.opts
	if _, ok := evt.(startupWakeupEvent); ok && p.startupOpts != nil {
		opts = *p.startupOpts
		p.log.Sugar().Infow("Backfilling on startup", "poll_limit", opts.PollLimit, "repost_seen", opts.RepostSeen)
	}

	_, err := p.RunNow(ctx, opts)
	switch {
	case errors.Is(err, ErrRunInProgress):
		p.log.Sugar().Infow("Skipping scheduled run, previous run still in flight", "scheduled_at", evt.Timestamp())
	case errors.Is(err, pipeline.ErrSourceUnavailable):
		p.log.Sugar().Warnw("Run aborted, will retry on next trigger", "err", err)
	case err != nil && ctx.Err() == nil:
		p.log.Sugar().Errorw("Run failed", "err", err)
	}
}

// RunNow runs the pipeline unless another run holds the lock.
func (p *Poller) RunNow(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Report, error) {
	if !p.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.mu.Unlock()
	return p.runner.Run(ctx, opts)
}

func (p *Poller) Options() pipeline.RunOptions {
	return p.opts
}
