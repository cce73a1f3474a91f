package orders

import (
	"context"
	"errors"
	"time"

	"storefront/internal/api"
	"storefront/internal/session"

	"go.uber.org/zap"
)

// DefaultPollInterval is how often the admin order list is refreshed
const DefaultPollInterval = 10 * time.Second

// Poller refreshes the order list on a fixed interval until stopped
type Poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartPolling fetches the order list every interval in the background.
// Polling ends when ctx is canceled, Stop is called, or the session is gone.
func (c *Controller) StartPolling(ctx context.Context, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Poller{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := c.FetchOrders(ctx)
				if errors.Is(err, session.ErrNotAuthenticated) || api.IsAuth(err) {
					c.logger.Info("Stopping order polling", zap.Error(err))
					return
				}
			}
		}
	}()

	return p
}

// Stop ends polling and waits for the in-flight fetch, if any, to return
func (p *Poller) Stop() {
	p.cancel()
	<-p.done
}

// Done is closed once polling has ended
func (p *Poller) Done() <-chan struct{} {
	return p.done
}
