// Package dispatcher fans a distribution event out to every active
// subscription.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fiffu/trailerwatch/lib/metrics"
	"github.com/fiffu/trailerwatch/lib/models"
	"github.com/fiffu/trailerwatch/senders"
	"go.uber.org/zap"
)

type Registry interface {
	ListActive(ctx context.Context) (models.Subscriptions, error)
	MarkDead(ctx context.Context, endpointID, reason string) error
}

type Result struct {
	EndpointID string          `json:"endpoint_id"`
	Platform   string          `json:"platform"`
	Outcome    senders.Outcome `json:"-"`
	MessageID  string          `json:"message_id,omitempty"`
	Err        error           `json:"-"`
}

type Dispatcher struct {
	log      *zap.Logger
	registry Registry
	senders  senders.Registry

	timeout     time.Duration
	parallelism int
}

func New(log *zap.Logger, registry Registry, senderRegistry senders.Registry, timeout time.Duration, parallelism int) *Dispatcher {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Dispatcher{log, registry, senderRegistry, timeout, parallelism}
}

// Emit lets the pipeline hand events straight to Dispatch.
func (d *Dispatcher) Emit(ctx context.Context, evt models.DistributionEvent) {
	d.Dispatch(ctx, evt)
}

// Dispatch delivers evt to each active subscription concurrently. Endpoints
// that fail permanently are marked dead; transient failures are only logged.
func (d *Dispatcher) Dispatch(ctx context.Context, evt models.DistributionEvent) []Result {
	subs, err := d.registry.ListActive(ctx)
	if err != nil {
		d.log.Sugar().Errorw("Failed to list subscriptions", "event_id", evt.ID, "err", err)
		return nil
	}

	results := make([]Result, len(subs))
	sem := make(chan struct{}, d.parallelism)
	var wg sync.WaitGroup

	for i := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = Result{EndpointID: subs[i].EndpointID, Platform: subs[i].Platform, Outcome: senders.OutcomeTransient, Err: ctx.Err()}
				return
			}
			results[i] = d.deliver(ctx, &subs[i], &evt)
		}()
	}
	wg.Wait()

	var delivered, permanent, transient int
	for _, r := range results {
		switch r.Outcome {
		case senders.OutcomeDelivered:
			delivered++
		case senders.OutcomePermanent:
			permanent++
		default:
			transient++
		}
	}
	d.log.Sugar().Infow("Dispatched event",
		"event_id", evt.ID,
		"video_id", evt.VideoID,
		"delivered", delivered,
		"dead", permanent,
		"failed", transient,
	)
	return results
}

func (d *Dispatcher) deliver(ctx context.Context, sub *models.Subscription, evt *models.DistributionEvent) Result {
	res := Result{EndpointID: sub.EndpointID, Platform: sub.Platform}
	log := d.log.Sugar().With("endpoint_id", sub.EndpointID, "platform", sub.Platform, "event_id", evt.ID)

	sender, ok := d.senders[sub.Platform]
	if !ok {
		res.Outcome = senders.OutcomeTransient
		res.Err = fmt.Errorf("%w: %s", senders.ErrUnsupportedPlatform, sub.Platform)
		log.Warnw("No sender for platform")
		metrics.Deliveries.WithLabelValues(sub.Platform, res.Outcome.String()).Inc()
		return res
	}

	sendCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	res.MessageID, res.Err = sender.Send(sendCtx, sub, evt)
	res.Outcome = senders.Classify(res.Err)
	metrics.Deliveries.WithLabelValues(sub.Platform, res.Outcome.String()).Inc()

	switch res.Outcome {
	case senders.OutcomeDelivered:
		log.Debugw("Delivered", "message_id", res.MessageID)

	case senders.OutcomePermanent:
		log.Warnw("Endpoint is gone, unsubscribing", "err", res.Err)
		// The delivery context may have expired, the registry write must not.
		if err := d.registry.MarkDead(context.WithoutCancel(ctx), sub.EndpointID, res.Err.Error()); err != nil {
			log.Errorw("Failed to mark endpoint dead", "err", err)
		} else {
			metrics.DeadEndpoints.Inc()
		}

	default:
		log.Infow("Delivery failed", "err", res.Err)
	}
	return res
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}
