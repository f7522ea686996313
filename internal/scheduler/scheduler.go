// Package scheduler runs background tasks on a fixed interval, optionally
// serialized through a database lock so only one engine instance fires them.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

type Task func(ctx context.Context) error

// Every runs task immediately and then on every tick until ctx is done.
// Errors are logged, never fatal; the next tick retries.
func Every(ctx context.Context, interval time.Duration, name string, log arbor.ILogger, task Task) {
	t := time.NewTicker(interval)
	defer t.Stop()

	// run immediately
	go func() {
		if err := task(ctx); err != nil {
			log.Warn().Str("task", name).Err(err).Msg("scheduled task failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := task(ctx); err != nil {
				log.Warn().Str("task", name).Err(err).Msg("scheduled task failed")
			}
		}
	}
}

// Locker is the lock slice of the store.
type Locker interface {
	AcquireSchedulerLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	RefreshSchedulerLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseSchedulerLock(ctx context.Context, name, owner string) error
}

// Locked wraps task so it only runs while holding the named lock. A run that
// cannot claim the lock is skipped, not an error: another instance has it.
// The lock is refreshed at half the TTL while the task runs.
func Locked(locker Locker, name string, ttl time.Duration, log arbor.ILogger, task Task) Task {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	owner := uuid.NewString()

	return func(ctx context.Context) error {
		ok, err := locker.AcquireSchedulerLock(ctx, name, owner, ttl)
		if err != nil {
			return err
		}
		if !ok {
			log.Debug().Str("task", name).Msg("lock held elsewhere, skipping run")
			return nil
		}
		defer func() {
			// release with a fresh context; ctx may already be cancelled
			_ = locker.ReleaseSchedulerLock(context.Background(), name, owner)
		}()

		hbCtx, stopHeartbeat := context.WithCancel(ctx)
		defer stopHeartbeat()
		go func() {
			t := time.NewTicker(ttl / 2)
			defer t.Stop()
			for {
				select {
				case <-hbCtx.Done():
					return
				case <-t.C:
					held, err := locker.RefreshSchedulerLock(hbCtx, name, owner, ttl)
					if err != nil || !held {
						log.Warn().Str("task", name).Err(err).Msg("scheduler lock refresh failed")
					}
				}
			}
		}()

		return task(ctx)
	}
}
