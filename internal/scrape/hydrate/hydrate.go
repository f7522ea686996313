// Package hydrate runs per-job detail fetches in parallel batches whose size
// and spacing adapt to how the board responds: any failure shrinks the next
// batch and stretches the pause, a clean batch grows it and tightens up.
package hydrate

import (
	"context"
	"sync"
	"time"
)

type Config struct {
	InitialBatch int
	MinBatch     int
	MaxBatch     int
	InitialDelay time.Duration
	MinDelay     time.Duration
	MaxDelay     time.Duration
}

func DefaultConfig() Config {
	return Config{
		InitialBatch: 5,
		MinBatch:     1,
		MaxBatch:     10,
		InitialDelay: 500 * time.Millisecond,
		MinDelay:     100 * time.Millisecond,
		MaxDelay:     3 * time.Second,
	}
}

const (
	delayStepUp   = 250 * time.Millisecond
	delayStepDown = 100 * time.Millisecond
)

// Fetch fetches detail for item i and reports whether it produced anything
// usable. A panic inside counts as a plain failure for that item.
type Fetch func(ctx context.Context, i int) bool

// Run fetches details for items 0..n-1. It returns the indices that failed,
// in ascending order. When ctx is cancelled mid-run, every item that never
// got a chance counts as failed.
func Run(ctx context.Context, n int, cfg Config, fetch Fetch) []int {
	if n <= 0 {
		return nil
	}
	cfg = sanitize(cfg)

	batchSize := cfg.InitialBatch
	delay := cfg.InitialDelay

	var failed []int
	next := 0

	for next < n {
		if ctx.Err() != nil {
			for i := next; i < n; i++ {
				failed = append(failed, i)
			}
			return failed
		}

		end := next + batchSize
		if end > n {
			end = n
		}

		oks := make([]bool, end-next)
		var wg sync.WaitGroup
		for i := next; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				oks[i-next] = safeFetch(ctx, i, fetch)
			}(i)
		}
		wg.Wait()

		clean := true
		for off, ok := range oks {
			if !ok {
				failed = append(failed, next+off)
				clean = false
			}
		}
		next = end

		if clean {
			batchSize = min(cfg.MaxBatch, batchSize+1)
			delay = maxDur(cfg.MinDelay, delay-delayStepDown)
		} else {
			batchSize = max(cfg.MinBatch, batchSize-1)
			delay = minDur(cfg.MaxDelay, delay+delayStepUp)
		}

		if next < n {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}
	return failed
}

func safeFetch(ctx context.Context, i int, fetch Fetch) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return fetch(ctx, i)
}

func sanitize(cfg Config) Config {
	def := DefaultConfig()
	if cfg.InitialBatch <= 0 {
		cfg.InitialBatch = def.InitialBatch
	}
	if cfg.MinBatch <= 0 {
		cfg.MinBatch = def.MinBatch
	}
	if cfg.MaxBatch < cfg.MinBatch {
		cfg.MaxBatch = def.MaxBatch
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = def.MinDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.InitialBatch < cfg.MinBatch {
		cfg.InitialBatch = cfg.MinBatch
	}
	if cfg.InitialBatch > cfg.MaxBatch {
		cfg.InitialBatch = cfg.MaxBatch
	}
	return cfg
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDur(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
