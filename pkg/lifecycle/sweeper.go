package lifecycle

import (
	"context"
	"time"

	"github.com/organlink/platform/pkg/common/logger"
)

// RunSweeper expires stale PENDING matches and retries undelivered
// notifications every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx, ttl)
		}
	}
}

func (m *Manager) sweep(ctx context.Context, ttl time.Duration) {
	if _, err := m.ExpireStale(ctx, ttl); err != nil {
		logger.Log.WithError(err).Error("match expiry sweep failed")
	}
	if sent, err := m.RelayOutbox(ctx, 100); err != nil {
		logger.Log.WithError(err).WithField("sent", sent).Warn("notification relay incomplete")
	} else if sent > 0 {
		logger.WithField("sent", sent).Info("Relayed pending notifications")
	}
}
