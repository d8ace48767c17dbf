package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
)

// RunState is the controller's supervision state.
type RunState int32

const (
	// StateIdle: built, not started
	StateIdle RunState = iota
	// StateRunning: PLAYING requested, run loop active
	StateRunning
	// StateStopping: stop requested (error or external), loop exiting
	StateStopping
	// StateStopped: loop exited and graph torn down
	StateStopped
)

// String returns the state name
func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Controller drives one built graph through READY and PLAYING, blocks on the
// run loop and tears the graph down when the loop exits.
//
// RUNNING → STOPPING happens exactly once, through RequestStop; the first
// error event or an external stop wins and later requests are no-ops.
type Controller struct {
	graph    *Graph
	loop     engine.Loop
	listener *ErrorListener

	state atomic.Int32

	mu         sync.Mutex
	firstError *engine.ErrorEvent
	stopReason string
	startedAt  time.Time
}

// NewController creates a controller for g. counters and onError may be nil;
// onError is called for every error event after classification.
func NewController(g *Graph, loop engine.Loop, counters *ErrorCounters, onError func(engine.ErrorEvent, ErrorCategory)) *Controller {
	c := &Controller{graph: g, loop: loop}
	c.listener = NewErrorListener(c, counters, onError)
	return c
}

// State returns the current run state
func (c *Controller) State() RunState {
	return RunState(c.state.Load())
}

// FirstError returns the error event that stopped the run, if any
func (c *Controller) FirstError() (engine.ErrorEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firstError == nil {
		return engine.ErrorEvent{}, false
	}
	return *c.firstError, true
}

// StopReason returns why the run was stopped, empty while running
func (c *Controller) StopReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopReason
}

// Start registers the error watch and requests READY then PLAYING.
//
// PLAYING is requested once. If the engine refuses either transition the
// graph is torn down and an ErrStartup-wrapped error is returned.
func (c *Controller) Start() error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("%w: controller already started (state=%s)", ErrStartup, c.State())
	}

	if err := c.graph.Pipeline.WatchErrors(c.HandleError); err != nil {
		c.abort()
		return fmt.Errorf("%w: watch bus: %v", ErrStartup, err)
	}

	if err := c.graph.Pipeline.SetState(engine.StateReady); err != nil {
		c.abort()
		return fmt.Errorf("%w: set READY: %v", ErrStartup, err)
	}

	if err := c.graph.Pipeline.SetState(engine.StatePlaying); err != nil {
		slog.Error("graph: unable to set the pipeline to the playing state",
			"pipeline", c.graph.Pipeline.Name(),
			"error", err,
		)
		c.abort()
		return fmt.Errorf("%w: set PLAYING: %v", ErrStartup, err)
	}

	c.mu.Lock()
	c.startedAt = time.Now()
	c.mu.Unlock()

	slog.Info("graph: pipeline playing", "pipeline", c.graph.Pipeline.Name())
	return nil
}

func (c *Controller) abort() {
	if err := c.graph.Teardown(); err != nil {
		slog.Warn("graph: teardown after failed start", "error", err)
	}
	c.state.Store(int32(StateStopped))
}

// Run blocks on the run loop until a stop is requested by an error event,
// RequestStop or ctx cancellation. It then tears the graph down exactly once.
//
// Returns an ErrRuntime-wrapped error naming the failing stage when the run
// was stopped by an error event, nil otherwise.
func (c *Controller) Run(ctx context.Context) error {
	if c.State() == StateIdle {
		return fmt.Errorf("graph: controller not started")
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.RequestStop("context canceled")
		case <-done:
		}
	}()

	if c.State() == StateRunning || c.State() == StateStopping {
		c.loop.Run()
	}
	close(done)

	// Loop may also exit without RequestStop (engine shutdown).
	c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))

	if err := c.graph.Teardown(); err != nil {
		slog.Warn("graph: teardown failed", "error", err)
	}
	c.state.Store(int32(StateStopped))

	c.mu.Lock()
	uptime := time.Duration(0)
	if !c.startedAt.IsZero() {
		uptime = time.Since(c.startedAt)
	}
	reason := c.stopReason
	first := c.firstError
	c.mu.Unlock()

	slog.Info("graph: run loop exited",
		"pipeline", c.graph.Pipeline.Name(),
		"reason", reason,
		"uptime", uptime.Round(time.Millisecond),
	)

	if first != nil {
		return fmt.Errorf("%w: %s: %s", ErrRuntime, first.Source, first.Message)
	}
	return nil
}

// RequestStop moves RUNNING → STOPPING and quits the run loop. Returns true
// only for the call that performed the transition.
func (c *Controller) RequestStop(reason string) bool {
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return false
	}
	c.mu.Lock()
	c.stopReason = reason
	c.mu.Unlock()

	slog.Info("graph: stop requested", "reason", reason)
	c.loop.Quit()
	return true
}

// HandleError is the pipeline's error watch. The first event received while
// running is kept as the run's failure cause.
func (c *Controller) HandleError(ev engine.ErrorEvent) {
	if c.State() == StateRunning {
		c.mu.Lock()
		if c.firstError == nil {
			e := ev
			c.firstError = &e
		}
		c.mu.Unlock()
	}
	c.listener.Handle(ev)
}
