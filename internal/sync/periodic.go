package sync

import (
	"context"
	"sync"
	"time"

	"github.com/bolasblack/syncx/internal/incremental"
)

const (
	// PeriodicRefreshInterval is the default interval between pulls.
	PeriodicRefreshInterval = 30 * time.Second
	// RefreshTimeout is the maximum time to wait for a single pull.
	RefreshTimeout = 10 * time.Second
)

// StartPeriodicRefresh starts a background goroutine that pulls remote
// deltas into the snapshot file at regular intervals. Failed pulls are
// logged and retried on the next tick; conflicts land in the conflict
// cache. The returned stop function stops the ticker and returns the
// latest cached conflicts.
func (p *Project) StartPeriodicRefresh(ctx context.Context, interval time.Duration) (stop func() []incremental.ConflictInfo) {
	if interval <= 0 {
		interval = PeriodicRefreshInterval
	}
	return p.startPeriodic(ctx, interval, func(ctx context.Context) error {
		_, err := p.Pull(ctx)
		return err
	})
}

func (p *Project) startPeriodic(ctx context.Context, interval time.Duration, refresh func(context.Context) error) (stop func() []incremental.ConflictInfo) {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, RefreshTimeout)
				if err := refresh(tickCtx); err != nil {
					p.logger.Debug("periodic refresh failed", "error", err)
				}
				cancel()
			}
		}
	}()

	return func() []incremental.ConflictInfo {
		close(done)
		wg.Wait()
		conflicts, err := p.Conflicts()
		if err != nil {
			return nil
		}
		return conflicts
	}
}
