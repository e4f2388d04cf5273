// Package supervisor restarts a failing run function with linear backoff.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"sbmod/internal/config"

	"go.uber.org/zap"
)

type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Supervisor struct {
	cfg    config.SupervisorConfig
	clock  Clock
	logger *zap.Logger
}

func New(cfg config.SupervisorConfig, logger *zap.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, clock: realClock{}, logger: logger}
}

func (s *Supervisor) WithClock(clock Clock) {
	s.clock = clock
}

// Run invokes run until it returns nil, the context ends, or the
// attempt budget is spent. The wait before attempt n is n*step, capped.
func (s *Supervisor) Run(ctx context.Context, name string, run func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = run(ctx)
		if lastErr == nil {
			return nil
		}
		s.logger.Warn("run failed",
			zap.String("name", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.MaxAttempts),
			zap.Error(lastErr))

		if attempt == s.cfg.MaxAttempts {
			break
		}
		if err := s.clock.Sleep(ctx, s.backoff(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", name, s.cfg.MaxAttempts, lastErr)
}

func (s *Supervisor) backoff(attempt int) time.Duration {
	wait := attempt * s.cfg.StepSeconds
	if wait > s.cfg.MaxWaitSeconds {
		wait = s.cfg.MaxWaitSeconds
	}
	return time.Duration(wait) * time.Second
}
