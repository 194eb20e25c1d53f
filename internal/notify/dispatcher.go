package notify

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Dispatcher runs notification sends off the request path. Each dispatch gets
// its own goroutine, deadline and exponential backoff; the outcome is logged
// and never reaches the caller. A submission or login therefore cannot be
// blocked or reverted by a broken mail transport.
type Dispatcher struct {
	logger     *zap.SugaredLogger
	timeout    time.Duration
	maxRetries uint64
	baseDelay  time.Duration
}

func NewDispatcher(logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		logger:     logger,
		timeout:    90 * time.Second,
		maxRetries: 3,
		baseDelay:  2 * time.Second,
	}
}

// Dispatch schedules send. The name only labels log lines. The context given
// to send carries the dispatch deadline, not the originating request's.
func (d *Dispatcher) Dispatch(name string, send func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		backoff := retry.WithMaxRetries(d.maxRetries, retry.NewExponential(d.baseDelay))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := send(ctx); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			d.logger.Warnw("notification delivery failed", "notification", name, "err", err)
			return
		}
		d.logger.Debugw("notification delivered", "notification", name)
	}()
}
