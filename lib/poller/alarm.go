package poller

import (
	"context"
	"time"
)

type Event interface {
	Timestamp() time.Time
}

type event struct{ timestamp time.Time }

func (e event) Timestamp() time.Time { return e.timestamp }

// startupWakeupEvent fires once when the clock starts.
type startupWakeupEvent struct {
	event
}

type pollWakeupEvent struct {
	event
}

type alarmClock struct {
	wakeupInterval time.Duration
	C              chan Event
}

func NewAlarmClock(wakeupInterval time.Duration) *alarmClock {
	return &alarmClock{
		wakeupInterval: wakeupInterval,
		C:              make(chan Event),
	}
}

// Start emits a startup event, then one event per interval until ctx is done.
// Ticks that arrive while the previous event is still being handled are
// dropped by the ticker rather than queued.
func (a *alarmClock) Start(ctx context.Context) <-chan Event {
	go func() {
		defer close(a.C)

		ticker := time.NewTicker(a.wakeupInterval)
		defer ticker.Stop()

		select {
		case a.C <- startupWakeupEvent{event{time.Now().UTC()}}:
		case <-ctx.Done():
			return
		}

		for {
			select {
			case t := <-ticker.C:
				select {
				case a.C <- pollWakeupEvent{event{t.UTC()}}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return a.C
}
