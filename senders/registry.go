package senders

import (
	"context"
	"net/http"

	"github.com/fiffu/trailerwatch/config"
	"github.com/fiffu/trailerwatch/lib/models"
	"go.uber.org/zap"
)

// Sender delivers an event to one subscription and returns the platform's
// message id.
type Sender interface {
	Send(ctx context.Context, sub *models.Subscription, evt *models.DistributionEvent) (string, error)
}

// Registry is keyed by Subscription.Platform.
type Registry map[string]Sender

const (
	PlatformDiscord = "discord"
	PlatformEmail   = "email"
)

func NewSenderRegistry(log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	return map[string]Sender{
		PlatformDiscord: &discordSender{base: base},
		PlatformEmail:   &mailgunSender{base: base},
	}
}

func (r Registry) Platforms() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	return out
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}
