package services

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper ends sessions that have gone quiet.
type Sweeper interface {
	SweepIdleSessions(ctx context.Context, idle time.Duration) (int, error)
}

// StartScheduler runs the idle-session sweep every interval until ctx is
// cancelled. The returned channel is closed once the loop has exited.
func StartScheduler(ctx context.Context, sweeper Sweeper, interval, idle time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 || idle <= 0 {
		slog.Info("idle session sweeper disabled")
		close(done)
		return done
	}
	go func() {
		defer close(done)
		slog.Info("scheduler started", "interval", interval, "idle_timeout", idle)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := sweeper.SweepIdleSessions(ctx, idle)
				if err != nil {
					slog.Warn("idle session sweep failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("ended idle sessions", "count", n)
				}
			}
		}
	}()
	return done
}
