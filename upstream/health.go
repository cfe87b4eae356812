package upstream

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// Timeout for a single health-check ping.
	healthCheckTimeout = 5 * time.Second

	// consecutiveRequestFailuresThreshold is how many live requests in a row
	// must fail before the provider is reported unavailable.
	consecutiveRequestFailuresThreshold = 5
	// consecutivePingFailuresThreshold is the same for background pings.
	consecutivePingFailuresThreshold = 2
)

// Pinger is anything that can cheaply check the provider is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker keeps an in-memory view of whether the booking provider is
// reachable. Live requests feed it through RecordRequestFailure and
// RecordRequestSuccess; an optional background loop pings the provider so a
// degraded status clears even while no traffic flows. The status is reported
// on /ready and never short-circuits requests.
type HealthChecker struct {
	pinger   Pinger
	interval time.Duration

	mu           sync.RWMutex
	available    bool
	lastChecked  time.Time
	lastErr      string
	failureCount int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthChecker creates a health checker that pings p every interval once
// started. An interval <= 0 disables pinging.
func NewHealthChecker(p Pinger, interval time.Duration) *HealthChecker {
	return &HealthChecker{
		pinger:    p,
		interval:  interval,
		available: true,
		done:      make(chan struct{}),
	}
}

// Start begins the background ping loop. It pings immediately, then repeats
// at the configured interval. Safe to call once.
func (hc *HealthChecker) Start(ctx context.Context) {
	ctx, hc.cancel = context.WithCancel(ctx)
	if hc.interval <= 0 || hc.pinger == nil {
		close(hc.done)
		return
	}

	go func() {
		defer close(hc.done)

		hc.check(ctx)

		ticker := time.NewTicker(hc.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hc.check(ctx)
			}
		}
	}()
}

// Stop signals the ping loop to stop and waits for it to finish.
func (hc *HealthChecker) Stop() {
	if hc.cancel == nil {
		return
	}
	hc.cancel()
	<-hc.done
}

// IsAvailable reports whether the provider is considered reachable. It is
// assumed reachable until proven otherwise.
func (hc *HealthChecker) IsAvailable() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.available
}

// RecordRequestFailure counts a failed live request. After
// consecutiveRequestFailuresThreshold failures in a row the provider is
// marked unavailable.
func (hc *HealthChecker) RecordRequestFailure(err error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.lastChecked = time.Now()
	hc.lastErr = err.Error()
	hc.failureCount++
	if hc.failureCount >= consecutiveRequestFailuresThreshold && hc.available {
		slog.Warn("circuit breaker: upstream marked unavailable after repeated request failures",
			"failures", hc.failureCount, "error", err)
		hc.available = false
	}
}

// RecordRequestSuccess resets the failure counter. A successful live request
// is proof of reachability, so it also restores availability.
func (hc *HealthChecker) RecordRequestSuccess() {
	hc.recordResult(nil, 1)
}

// Status is a snapshot of the provider's health for the readiness endpoint.
type Status struct {
	Available    bool      `json:"available"`
	LastChecked  time.Time `json:"last_checked"`
	LastError    string    `json:"last_error,omitempty"`
	FailureCount int       `json:"failure_count"`
}

func (hc *HealthChecker) Status() Status {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return Status{
		Available:    hc.available,
		LastChecked:  hc.lastChecked,
		LastError:    hc.lastErr,
		FailureCount: hc.failureCount,
	}
}

func (hc *HealthChecker) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	hc.recordResult(hc.pinger.Ping(pingCtx), consecutivePingFailuresThreshold)
}

// recordResult marks the provider available on the first success and
// unavailable after threshold consecutive failures.
func (hc *HealthChecker) recordResult(err error, threshold int) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.lastChecked = time.Now()

	if err == nil {
		if !hc.available {
			slog.Info("upstream came back online")
		}
		hc.available = true
		hc.failureCount = 0
		hc.lastErr = ""
		return
	}

	hc.failureCount++
	hc.lastErr = err.Error()
	if hc.failureCount >= threshold && hc.available {
		slog.Warn("upstream marked unavailable", "failures", hc.failureCount, "error", err)
		hc.available = false
	}
}
