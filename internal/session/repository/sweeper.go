package repository

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically reclaims expired sessions. Expiry is already
// lazy-checked on every Get; the sweep only bounds storage growth.
type Sweeper struct {
	repo     Repository
	interval time.Duration
	nowF     func() time.Time
}

// NewSweeper returns a Sweeper purging via repo every interval.
func NewSweeper(repo Repository, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		repo:     repo,
		interval: interval,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps until ctx is cancelled. Errors are logged and the loop keeps
// going; a flaky store must not kill the sweeper.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.repo.PurgeExpired(ctx, w.nowF())
			if err != nil {
				log.Printf("session sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("session sweep: purged %d expired sessions", n)
			}
		}
	}
}
