package background

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner deletes expired rows and reports how many were removed
type Cleaner interface {
	Name() string
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanerFunc adapts a delete function to Cleaner
type CleanerFunc struct {
	Label string
	Fn    func(ctx context.Context) (int64, error)
}

func (c CleanerFunc) Name() string { return c.Label }

func (c CleanerFunc) DeleteExpired(ctx context.Context) (int64, error) { return c.Fn(ctx) }

// CleanupManager periodically purges expired attempt history and revoked
// sessions
type CleanupManager struct {
	cleaners []Cleaner
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

func NewCleanupManager(logger *slog.Logger, interval time.Duration, cleaners ...Cleaner) *CleanupManager {
	return &CleanupManager{
		cleaners: cleaners,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one pass immediately, then on every tick until ctx is done or
// Stop is called
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce runs every cleaner. A failing cleaner does not stop the others.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, c := range cm.cleaners {
		rows, err := c.DeleteExpired(cleanupCtx)
		if err != nil {
			cm.logger.Error("cleanup failed", slog.String("target", c.Name()), slog.Any("error", err))
			continue
		}
		if rows > 0 {
			cm.logger.Info("cleanup completed", slog.String("target", c.Name()), slog.Int64("rows_deleted", rows))
		}
	}
}

func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
