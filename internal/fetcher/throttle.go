package fetcher

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	crawlercfg "github.com/jonesrussell/nmls-crawler/internal/config/crawler"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

// Throttle spaces requests by a delay that follows server latency. After
// each response the delay moves halfway toward latency/target concurrency,
// clamped to [start delay, max delay]. An error response never lowers it.
type Throttle struct {
	mu      sync.Mutex
	delay   time.Duration
	min     time.Duration
	max     time.Duration
	target  float64
	limiter *rate.Limiter
	logger  logger.Logger
}

// NewThrottle creates a Throttle starting at cfg.StartDelay.
func NewThrottle(cfg crawlercfg.AutoThrottleConfig, log logger.Logger) *Throttle {
	if log == nil {
		log = logger.NewNop()
	}
	return &Throttle{
		delay:   cfg.StartDelay,
		min:     cfg.StartDelay,
		max:     cfg.MaxDelay,
		target:  cfg.TargetConcurrency,
		limiter: rate.NewLimiter(rate.Every(cfg.StartDelay), 1),
		logger:  log,
	}
}

// Wait blocks until the next request may start.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// Delay returns the current delay.
func (t *Throttle) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

// Observe adjusts the delay from one response and returns the new delay.
func (t *Throttle) Observe(latency time.Duration, statusCode int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	target := time.Duration(float64(latency) / t.target)
	next := max((t.delay+target)/2, target)
	next = min(max(next, t.min), t.max)

	if statusCode != http.StatusOK && next < t.delay {
		return t.delay
	}
	if next != t.delay {
		t.logger.Debug("Throttle delay adjusted",
			logger.Duration("from", t.delay),
			logger.Duration("to", next),
			logger.Duration("latency", latency),
			logger.Int("status", statusCode),
		)
		t.delay = next
		t.limiter.SetLimit(rate.Every(next))
	}
	return t.delay
}
