package senders

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fiffu/trailerwatch/lib/models"
	"github.com/fiffu/trailerwatch/senders/email"
	"github.com/mailgun/mailgun-go/v4"
)

type mailgunSender struct {
	base
	apiBase string
}

// Send mails the event to the address stored as the subscription's credential.
func (e *mailgunSender) Send(ctx context.Context, sub *models.Subscription, evt *models.DistributionEvent) (string, error) {
	mg := mailgun.NewMailgun(e.cfg.Mailgun.Domain, e.cfg.Mailgun.APIKey)
	mg.Client().Transport = e.transport
	if e.apiBase != "" {
		mg.SetAPIBase(e.apiBase)
	}

	format := &email.TrailerEmailFormat{Event: evt, BotName: e.cfg.BotName}

	// Create message with empty body first.
	message := mg.NewMessage(e.cfg.Mailgun.SenderFrom, format.Subject(), "", sub.Credential)
	// SetHtml with the payload proper. This will assign the MIME type properly.
	message.SetHtml(format.Body())

	if e.cfg.Mailgun.TimeoutSecs > 0 {
		timeout := time.Duration(e.cfg.Mailgun.TimeoutSecs) * time.Second
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	_, id, err := mg.Send(ctx, message)
	return id, classifyMailgunError(err)
}

// Mailgun rejects malformed recipients with a 400. Auth and quota errors are
// about our account, not the subscriber.
func classifyMailgunError(err error) error {
	var unexpected *mailgun.UnexpectedResponseError
	if !errors.As(err, &unexpected) {
		return err
	}
	return &DeliveryError{
		Platform:  PlatformEmail,
		Status:    unexpected.Actual,
		Permanent: unexpected.Actual == http.StatusBadRequest,
		Err:       err,
	}
}
