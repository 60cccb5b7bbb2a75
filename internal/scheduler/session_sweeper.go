package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/mkobayashi/kaitori-backend/internal/app/service"
	"github.com/mkobayashi/kaitori-backend/pkg/logger"
	"github.com/mkobayashi/kaitori-backend/pkg/redis"
	"github.com/robfig/cron/v3"
)

const (
	sweepLockKey  = "kaitori:cart:sweep-lock"
	sweepLockTTL  = time.Minute
	sweepBatchMax = 500
)

// SessionSweeper periodically expires stale cart sessions and releases their
// inventory holds. Expiry is already enforced lazily on every cart access, so
// the sweeper only reclaims holds of carts nobody touches again.
type SessionSweeper struct {
	cartService service.CartService
	interval    time.Duration
	useLock     bool
	cron        *cron.Cron
}

func NewSessionSweeper(cartService service.CartService, interval time.Duration, useLock bool) *SessionSweeper {
	return &SessionSweeper{
		cartService: cartService,
		interval:    interval,
		useLock:     useLock,
	}
}

// Start schedules the sweep and launches the cron loop
func (s *SessionSweeper) Start() error {
	s.cron = cron.New()

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.Sweep); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}

	s.cron.Start()
	logger.Info("Session sweeper started", map[string]interface{}{
		"interval": s.interval.String(),
		"locking":  s.useLock,
	})
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish
func (s *SessionSweeper) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		logger.Info("Session sweeper stopped", nil)
	}
}

// Sweep runs one pass. With locking enabled, instances that fail to take the
// Redis lock skip the pass.
func (s *SessionSweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.useLock {
		lock := redis.NewLock(redis.GetClient(), sweepLockKey, sweepLockTTL)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			logger.Error("Failed to acquire sweep lock", err, nil)
			return
		}
		if !ok {
			logger.Debug("Sweep lock held elsewhere, skipping pass", nil)
			return
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				logger.Error("Failed to release sweep lock", err, nil)
			}
		}()
	}

	expired, err := s.cartService.ExpireStaleSessions(time.Now(), sweepBatchMax)
	if err != nil {
		logger.Error("Session sweep failed", err, nil)
		return
	}
	if expired > 0 {
		logger.Info("Session sweep completed", map[string]interface{}{
			"expired": expired,
		})
	}
}
