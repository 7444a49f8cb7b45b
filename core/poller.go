package orchestration

import (
	"context"
	"sync"
	"time"
)

const defaultPollInterval = time.Second

// poller is a cancellable polling subscription. Every pull-based
// coordination loop (join-request status, pending-request lists, broadcast
// room status) runs behind one so its lifecycle is explicit: started when
// the owning state becomes applicable, stopped the moment it is not.
type poller struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// startPoller invokes poll immediately and then on every interval tick until
// poll returns false, Stop is called, or ctx is cancelled.
func startPoller(ctx context.Context, interval time.Duration, poll func(context.Context) bool) *poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &poller{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		defer cancel()

		if !poll(ctx) {
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !poll(ctx) {
					return
				}
			}
		}
	}()

	return p
}

// Stop cancels the subscription and waits for the loop to exit. Safe to call
// repeatedly and concurrently.
func (p *poller) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(p.cancel)
	<-p.done
}
