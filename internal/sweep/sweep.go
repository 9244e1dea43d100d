// Package sweep periodically deletes expired refresh tokens.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"taskdeck.io/internal/audit"
	"taskdeck.io/internal/obs"
)

// Deleter removes refresh tokens that expired before now.
type Deleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper runs a Deleter once at start and then every interval.
type Sweeper struct {
	deleter  Deleter
	interval time.Duration
	now      func() time.Time
}

// New returns a Sweeper. Non-positive intervals default to 24h.
func New(d Deleter, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Sweeper{deleter: d, interval: interval, now: time.Now}
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Once(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Once(ctx)
		}
	}
}

// Once performs a single sweep. Errors and panics are logged, never propagated.
func (s *Sweeper) Once(ctx context.Context) (deleted int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panic: %v", r)
			obs.Logger().Error("refresh token sweep panicked", slog.Any("panic", r))
		}
	}()

	deleted, err = s.deleter.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		obs.Logger().Error("refresh token sweep failed", slog.String("error", err.Error()))
		return 0, err
	}
	obs.ObserveSwept(deleted)
	_ = audit.LogEvent(ctx, audit.EventSweep, map[string]any{"deleted": deleted})
	return deleted, nil
}
