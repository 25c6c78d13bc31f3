// Package runner provides the uniform process surface every consumer
// loop shares: run one pass, or poll at a fixed interval.
package runner

import (
	"context"
	"time"

	"github.com/vinayprograms/tandem/errors"
	"github.com/vinayprograms/tandem/logging"
	"github.com/vinayprograms/tandem/telemetry"
)

// Pass is one unit of loop work: wake, run, go back to sleep.
type Pass func(ctx context.Context) error

// Config tunes one loop's retry behavior.
type Config struct {
	// Interval between passes.
	// Default: 30s
	Interval time.Duration

	// MaxRetries bounds transient retries within one pass before the
	// work is deferred to the next cycle.
	// Default: 3
	MaxRetries int

	// InitialBackoff is the first transient retry delay; it doubles
	// each attempt.
	// Default: 1s
	InitialBackoff time.Duration

	// MaxBackoff caps the transient retry delay.
	// Default: 30s
	MaxBackoff time.Duration

	// RateLimitBackoff is the single longer wait after a rate-limited
	// pass, before normal cadence resumes.
	// Default: 5m
	RateLimitBackoff time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:         30 * time.Second,
		MaxRetries:       3,
		InitialBackoff:   1 * time.Second,
		MaxBackoff:       30 * time.Second,
		RateLimitBackoff: 5 * time.Minute,
	}
}

// Loop runs one consumer as a single-threaded polling loop. Loops are
// isolated: a failing pass is logged and retried per the error's
// taxonomy, and never stops the loop or touches any other loop.
type Loop struct {
	name   string
	pass   Pass
	config Config
	log    *logging.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a named loop around a pass.
func New(name string, pass Pass, cfg Config, logger *logging.Logger) *Loop {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = def.RateLimitBackoff
	}
	if logger == nil {
		logger = logging.New()
	}
	return &Loop{
		name:   name,
		pass:   pass,
		config: cfg,
		log:    logger.WithComponent(name),
		sleep:  sleepCtx,
	}
}

// Once runs a single pass with the transient retry policy applied.
// The error of the final attempt is returned; a deferred transient
// failure is the caller's to report.
func (l *Loop) Once(ctx context.Context) (err error) {
	ctx, span := telemetry.StartSpan(ctx, l.name+" pass")
	defer func() { telemetry.EndSpan(span, err) }()

	backoff := l.config.InitialBackoff
	for attempt := 0; ; attempt++ {
		err = l.pass(ctx)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if !transient(err) || attempt >= l.config.MaxRetries {
			return err
		}
		l.log.Warn("transient failure, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"backoff": backoff.String(),
			"error":   err.Error(),
		})
		if serr := l.sleep(ctx, backoff); serr != nil {
			return err
		}
		backoff *= 2
		if backoff > l.config.MaxBackoff {
			backoff = l.config.MaxBackoff
		}
	}
}

// Run polls until the context is canceled: run one pass, sleep the
// interval, repeat. Pass failures are absorbed; a rate-limited pass
// earns a longer sleep before cadence resumes. Returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("loop started", map[string]interface{}{
		"interval": l.config.Interval.String(),
	})
	for {
		err := l.Once(ctx)
		if ctx.Err() != nil {
			l.log.Info("loop stopped")
			return ctx.Err()
		}

		wait := l.config.Interval
		switch {
		case err == nil:
		case errors.Is(err, errors.ErrCodeRateLimited):
			wait = l.config.RateLimitBackoff
			l.log.Warn("rate limited, backing off", map[string]interface{}{
				"backoff": wait.String(),
			})
		case transient(err):
			// Retry budget spent; the next cycle picks the work up.
			l.log.Warn("pass deferred to next cycle", map[string]interface{}{
				"error": err.Error(),
			})
		default:
			l.log.Error("pass failed", map[string]interface{}{
				"error": err.Error(),
			})
		}

		if err := l.sleep(ctx, wait); err != nil {
			l.log.Info("loop stopped")
			return ctx.Err()
		}
	}
}

// transient reports whether the pass should retry within this cycle.
// Rate limiting is excluded: it gets one long wait, not a tight retry.
func transient(err error) bool {
	if errors.Is(err, errors.ErrCodeRateLimited) {
		return false
	}
	return errors.IsRetryable(err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
