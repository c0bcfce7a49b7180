package senders

import (
	"context"
	"errors"
	"fmt"
)

type Outcome int

const (
	OutcomeDelivered Outcome = iota
	// OutcomePermanent means the endpoint is gone or its credential was
	// revoked. The subscription should not be tried again.
	OutcomePermanent
	// OutcomeTransient covers everything else; the next event is tried as usual.
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomePermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// DeliveryError is a rejection reported by the remote platform.
type DeliveryError struct {
	Platform  string
	Status    int
	Code      int // platform-specific error code, when the platform sends one
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed (status %d): %v", e.Platform, e.Status, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Classify maps the error from Sender.Send to a delivery outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeDelivered
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTransient
	}
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) && deliveryErr.Permanent {
		return OutcomePermanent
	}
	return OutcomeTransient
}
