package sessions

import (
	"context"
	"time"

	"github.com/haasonsaas/callbridge/internal/observability"
)

// Janitor periodically evicts idle sessions from a store. It is owned by
// the gateway: started when the server starts serving and stopped during
// shutdown.
type Janitor struct {
	store    Sweeper
	interval time.Duration
	idleFor  time.Duration
	logger   *observability.Logger
	metrics  *observability.Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

// NewJanitor creates a janitor sweeping store every interval, evicting
// sessions idle longer than idleFor. Logger and metrics may be nil.
func NewJanitor(store Sweeper, interval, idleFor time.Duration,
	logger *observability.Logger, metrics *observability.Metrics) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if idleFor <= 0 {
		idleFor = 10 * time.Minute
	}
	return &Janitor{
		store:    store,
		interval: interval,
		idleFor:  idleFor,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start launches the sweep loop. Calling Start on a running janitor is a
// no-op.
func (j *Janitor) Start() {
	if j.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := j.store.SweepIdle(j.idleFor)
				if removed > 0 && j.metrics != nil {
					j.metrics.SessionsEvicted(removed)
				}
				if removed > 0 && j.logger != nil {
					j.logger.Info(ctx, "evicted idle call sessions",
						"removed", removed,
						"idle_threshold", j.idleFor.String(),
					)
				}
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
	j.cancel = nil
}
