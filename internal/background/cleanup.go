package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ResetSweeper clears password reset credentials whose expiry has passed
type ResetSweeper interface {
	ClearExpiredResets(ctx context.Context) (int64, error)
}

// CleanupManager periodically clears expired password reset credentials
type CleanupManager struct {
	sweeper  ResetSweeper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(sweeper ResetSweeper, logger *slog.Logger, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupManager{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep immediately and then on every tick until stopped
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cleared, err := cm.sweeper.ClearExpiredResets(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to clear expired password resets", slog.Any("error", err))
		return
	}

	if cleared > 0 {
		cm.logger.Info("expired password resets cleared", slog.Int64("accounts", cleared))
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
