package app

import (
	"net/http"

	"github.com/fiffu/trailerwatch/config"
	"github.com/fiffu/trailerwatch/lib/catalog"
	"github.com/fiffu/trailerwatch/lib/dispatcher"
	"github.com/fiffu/trailerwatch/lib/feed"
	"github.com/fiffu/trailerwatch/lib/ledger"
	"github.com/fiffu/trailerwatch/lib/pipeline"
	"github.com/fiffu/trailerwatch/lib/registry"
	"github.com/fiffu/trailerwatch/lib/resolver"
	"github.com/fiffu/trailerwatch/lib/video"
	"github.com/fiffu/trailerwatch/senders"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewLedger(db *gorm.DB) *ledger.Ledger {
	return ledger.NewLedger(db)
}

func NewRegistry(db *gorm.DB) *registry.Registry {
	return registry.NewRegistry(db)
}

func NewFeed(cfg *config.Config, transport http.RoundTripper) feed.Source {
	return feed.NewReddit(cfg.Reddit.Subreddit, transport,
		feed.WithBaseURL(cfg.Reddit.BaseURL),
		feed.WithUserAgent(cfg.UserAgent),
	)
}

func NewVideoSource(cfg *config.Config, log *zap.Logger, transport http.RoundTripper) video.Source {
	return video.NewClient(log, transport, cfg.Video.YoutubeOEmbedURL, cfg.Video.VimeoOEmbedURL)
}

func NewCatalog(cfg *config.Config, log *zap.Logger, transport http.RoundTripper) (catalog.Catalog, error) {
	return catalog.New(log, cfg.TMDB.APIKey, transport,
		catalog.WithBaseURL(cfg.TMDB.BaseURL),
		catalog.WithLanguage(cfg.TMDB.Language),
		catalog.WithRateLimit(cfg.TMDB.RequestsPerSecond),
	)
}

func NewResolver(log *zap.Logger, c catalog.Catalog) *resolver.Resolver {
	return resolver.NewResolver(log, c)
}

func NewDispatcher(cfg *config.Config, log *zap.Logger, reg *registry.Registry, senderRegistry senders.Registry) *dispatcher.Dispatcher {
	return dispatcher.New(log, reg, senderRegistry, cfg.Delivery.Timeout, cfg.Delivery.Parallelism)
}

func NewPipeline(
	cfg *config.Config,
	log *zap.Logger,
	src feed.Source,
	videos video.Source,
	l *ledger.Ledger,
	res *resolver.Resolver,
	d *dispatcher.Dispatcher,
) *pipeline.Pipeline {
	return pipeline.New(log, src, videos, l, res, d, cfg.Pipeline.Concurrency, cfg.Pipeline.FetchTimeout)
}
