package sync

import (
	"context"
	"time"
)

// WatchConfig controls the polling interval. After a pass that downloads
// nothing the interval grows by Factor up to Max; any change or failure
// resets it to Initial.
type WatchConfig struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// DefaultWatchConfig returns default polling configuration
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Initial: 20 * time.Second,
		Max:     3 * time.Minute,
		Factor:  1.5,
	}
}

// Watch reconciles immediately and then keeps polling until ctx is done.
// onPass, if set, is called after every pass with its outcome.
func (s *Syncer) Watch(ctx context.Context, cfg WatchConfig, onPass func(*Result, error)) {
	if cfg.Initial <= 0 {
		cfg = DefaultWatchConfig()
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}

	interval := cfg.Initial
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		result, err := s.Reconcile(ctx)
		if ctx.Err() != nil {
			return
		}
		if onPass != nil {
			onPass(result, err)
		}

		if err != nil || result.Downloaded > 0 || len(result.Failed) > 0 {
			interval = cfg.Initial
		} else {
			interval = time.Duration(float64(interval) * cfg.Factor)
			if interval > cfg.Max {
				interval = cfg.Max
			}
		}
		s.logger.Console("Next sync in %s", interval)
		timer.Reset(interval)
	}
}
