package app

import (
	"context"
	"fmt"
	"time"

	"github.com/fiffu/trailerwatch/lib/dispatcher"
	"github.com/fiffu/trailerwatch/lib/ledger"
	"github.com/fiffu/trailerwatch/lib/models"
	"github.com/fiffu/trailerwatch/lib/pipeline"
	"github.com/fiffu/trailerwatch/lib/poller"
	"github.com/fiffu/trailerwatch/lib/registry"
	"github.com/fiffu/trailerwatch/lib/resolver"
	"github.com/fiffu/trailerwatch/senders"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service struct {
	log        *zap.Logger
	ledger     *ledger.Ledger
	registry   *registry.Registry
	resolver   *resolver.Resolver
	dispatcher *dispatcher.Dispatcher
	poller     *poller.Poller
	senders    senders.Registry

	now func() time.Time
}

func NewService(
	log *zap.Logger,
	l *ledger.Ledger,
	reg *registry.Registry,
	res *resolver.Resolver,
	d *dispatcher.Dispatcher,
	p *poller.Poller,
	senderRegistry senders.Registry,
) *Service {
	return &Service{log, l, reg, res, d, p, senderRegistry, time.Now}
}

func (svc *Service) Subscribe(ctx context.Context, endpointID, platform, credential string) (*models.Subscription, error) {
	if _, ok := svc.senders[platform]; !ok {
		return nil, fmt.Errorf("%w: %s", senders.ErrUnsupportedPlatform, platform)
	}
	sub, err := svc.registry.Add(ctx, endpointID, platform, credential)
	if err != nil {
		return nil, err
	}
	svc.log.Sugar().Infow("Endpoint subscribed", "endpoint_id", endpointID, "platform", platform)
	return sub, nil
}

func (svc *Service) Unsubscribe(ctx context.Context, endpointID string) error {
	if err := svc.registry.Unsubscribe(ctx, endpointID); err != nil {
		return err
	}
	svc.log.Sugar().Infow("Endpoint unsubscribed", "endpoint_id", endpointID)
	return nil
}

// RemoveSubscription forgets the endpoint entirely, as when its channel is
// deleted.
func (svc *Service) RemoveSubscription(ctx context.Context, endpointID string) error {
	if err := svc.registry.Remove(ctx, endpointID); err != nil {
		return err
	}
	svc.log.Sugar().Infow("Endpoint removed", "endpoint_id", endpointID)
	return nil
}

func (svc *Service) ListSubscriptions(ctx context.Context, activeOnly bool) (models.Subscriptions, error) {
	if activeOnly {
		return svc.registry.ListActive(ctx)
	}
	return svc.registry.List(ctx)
}

func (svc *Service) FindMovie(ctx context.Context, query string) (*models.MovieInfo, error) {
	return svc.resolver.FindMovie(ctx, query)
}

func (svc *Service) Upcoming(ctx context.Context) ([]models.MovieInfo, error) {
	return svc.resolver.Upcoming(ctx, svc.now().UTC())
}

// BroadcastUpcoming sends one event per upcoming movie to every subscriber.
func (svc *Service) BroadcastUpcoming(ctx context.Context) (int, error) {
	movies, err := svc.Upcoming(ctx)
	if err != nil {
		return 0, err
	}
	for _, movie := range movies {
		svc.dispatcher.Dispatch(ctx, models.DistributionEvent{
			ID:       uuid.NewString(),
			VideoURL: movie.TrailerURL,
			Movie:    movie,
		})
	}
	svc.log.Sugar().Infow("Broadcast upcoming movies", "count", len(movies))
	return len(movies), nil
}

func (svc *Service) ListTrailers(ctx context.Context, since time.Time) (models.SeenTrailers, error) {
	return svc.ledger.SeenSince(ctx, since)
}

func (svc *Service) ForgetTrailer(ctx context.Context, videoID string) (bool, error) {
	return svc.ledger.Forget(ctx, videoID)
}

func (svc *Service) Run(ctx context.Context, opts *pipeline.RunOptions) (*pipeline.Report, error) {
	if opts == nil {
		defaults := svc.poller.Options()
		opts = &defaults
	}
	return svc.poller.RunNow(ctx, *opts)
}
