package arbiter

import (
	"context"
	"time"

	"github.com/supermechanical/rangelink/internal/logger"
)

// RunWatchdog keeps the power volume up and reports decoder silence every
// interval until ctx is done.
func (a *Arbiter) RunWatchdog(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stale := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stale = a.watchdogTick(stale)
		}
	}
}

func (a *Arbiter) watchdogTick(wasStale bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != Started {
		return false
	}
	a.checkAndFixVolumeLocked()

	stale := a.decoder.IsStale(a.now(), a.cfg.StaleAfter)
	switch {
	case stale && !wasStale:
		a.log.Warn("no data from accessory",
			logger.Duration("max_age", a.cfg.StaleAfter),
			logger.Time("last_parsed", a.decoder.LastParsedDataRead()))
	case !stale && wasStale:
		a.log.Info("accessory data resumed")
	}
	return stale
}
