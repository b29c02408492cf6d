package config

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultRecheckInterval = 24 * time.Hour
	defaultSweepInterval   = 6 * time.Hour
)

var (
	recheckInterval        atomic.Value
	sweepInterval          atomic.Value
	recheckListeners       []chan time.Duration
	sweepIntervalListeners []chan time.Duration
	listenersMu            sync.Mutex
)

func init() {
	recheckInterval.Store(defaultRecheckInterval)
	sweepInterval.Store(defaultSweepInterval)
}

// SetIntervals recomputes the job intervals from the current configuration and
// notifies listeners whose interval changed.
func SetIntervals() {
	cfg := GetConfig()
	setRecheckInterval(calculateTimerDuration(cfg.Reputation.RecheckTimer, defaultRecheckInterval))
	setSweepInterval(calculateTimerDuration(cfg.Reputation.SweepTimer, defaultSweepInterval))
}

func calculateTimerDuration(timer Timer, fallback time.Duration) time.Duration {
	total := time.Duration(timer.Days)*24*time.Hour +
		time.Duration(timer.Hours)*time.Hour +
		time.Duration(timer.Minutes)*time.Minute +
		time.Duration(timer.Seconds)*time.Second
	if total <= 0 {
		return fallback
	}
	if total < time.Second {
		total = time.Second
	}
	return total
}

func GetRecheckInterval() time.Duration {
	return recheckInterval.Load().(time.Duration)
}

// RecheckIntervalUpdates returns a channel that receives the current interval
// immediately and every subsequent change.
func RecheckIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	recheckListeners = append(recheckListeners, ch)
	listenersMu.Unlock()

	ch <- GetRecheckInterval()
	return ch
}

func setRecheckInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultRecheckInterval
	}

	if GetRecheckInterval() == interval {
		return
	}

	recheckInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range recheckListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

func GetSweepInterval() time.Duration {
	return sweepInterval.Load().(time.Duration)
}

func SweepIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	sweepIntervalListeners = append(sweepIntervalListeners, ch)
	listenersMu.Unlock()

	ch <- GetSweepInterval()
	return ch
}

func setSweepInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	if GetSweepInterval() == interval {
		return
	}

	sweepInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range sweepIntervalListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}
