package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// RestartConfig controls rebuilding a session after a runtime error
type RestartConfig struct {
	MaxRestarts  int           // Maximum rebuilds after runtime errors (0: stop on first error)
	InitialDelay time.Duration // Delay before the first rebuild (default: 1 second)
	MaxDelay     time.Duration // Backoff cap (default: 30 seconds)
}

// DefaultRestartConfig returns the restart configuration with restarts disabled
func DefaultRestartConfig() RestartConfig {
	return RestartConfig{
		MaxRestarts:  0,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// RestartState tracks restart attempts across sessions
type RestartState struct {
	CurrentAttempts int
	Restarts        atomic.Uint64 // total rebuilds performed
}

// SessionFunc runs one complete session (build, play, block, teardown)
type SessionFunc func(ctx context.Context) error

// RunWithRestart runs sessionFn and rebuilds it with exponential backoff
// after runtime errors.
//
// Only errors wrapping ErrRuntime are retried. A clean stop returns nil,
// construction and startup errors are returned immediately, and once
// MaxRestarts rebuilds are exhausted the last runtime error is returned.
func RunWithRestart(ctx context.Context, sessionFn SessionFunc, cfg RestartConfig, state *RestartState) error {
	for {
		err := sessionFn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrRuntime) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		state.CurrentAttempts++
		if state.CurrentAttempts > cfg.MaxRestarts {
			if cfg.MaxRestarts > 0 {
				return fmt.Errorf("graph: max restarts exceeded (%d attempts): %w", cfg.MaxRestarts, err)
			}
			return err
		}

		delay := calculateBackoff(state.CurrentAttempts, cfg)
		slog.Warn("graph: restarting session",
			"attempt", state.CurrentAttempts,
			"max_restarts", cfg.MaxRestarts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
			state.Restarts.Add(1)
		case <-ctx.Done():
			slog.Info("graph: context cancelled during restart backoff")
			return err
		}
	}
}

// calculateBackoff returns InitialDelay * 2^(attempt-1), capped at MaxDelay.
func calculateBackoff(attempt int, cfg RestartConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return cfg.MaxDelay
	}
	delay := cfg.InitialDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	return delay
}

// ResetRestartState clears the attempt counter, e.g. after a session that
// ran long enough to be considered healthy.
func ResetRestartState(state *RestartState) {
	state.CurrentAttempts = 0
	slog.Debug("graph: restart state reset")
}
