package graph

import (
	"log/slog"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
)

// Stopper requests loop termination. RequestStop returns true only for the
// call that actually initiated the stop.
type Stopper interface {
	RequestStop(reason string) bool
}

// ErrorListener reacts to error-class bus messages: it classifies and logs
// the error, then requests the run loop to stop.
type ErrorListener struct {
	stopper  Stopper
	counters *ErrorCounters
	onError  func(engine.ErrorEvent, ErrorCategory)
}

// NewErrorListener creates a listener that stops via stopper.
// counters and onError may be nil.
func NewErrorListener(stopper Stopper, counters *ErrorCounters, onError func(engine.ErrorEvent, ErrorCategory)) *ErrorListener {
	if counters == nil {
		counters = &ErrorCounters{}
	}
	return &ErrorListener{stopper: stopper, counters: counters, onError: onError}
}

// Handle processes one error event. A second event after the stop was
// requested is logged and counted but has no further effect.
func (l *ErrorListener) Handle(ev engine.ErrorEvent) {
	category := ClassifyError(ev)
	l.counters.Add(category)

	debug := ev.Debug
	if debug == "" {
		debug = "none"
	}
	slog.Error("graph: error received from element",
		"stage", ev.Source,
		"message", ev.Message,
		"debug", debug,
		"category", category.String(),
	)

	if l.onError != nil {
		l.onError(ev, category)
	}

	if !l.stopper.RequestStop("error from " + ev.Source) {
		slog.Debug("graph: stop already in progress, error ignored", "stage", ev.Source)
	}
}
