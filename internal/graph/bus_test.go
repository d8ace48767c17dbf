package graph

import (
	"sync/atomic"
	"testing"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
)

type recordingStopper struct {
	calls   atomic.Int32
	stopped atomic.Bool
	reason  atomic.Value
}

func (s *recordingStopper) RequestStop(reason string) bool {
	s.calls.Add(1)
	if !s.stopped.CompareAndSwap(false, true) {
		return false
	}
	s.reason.Store(reason)
	return true
}

func TestErrorListener_Handle(t *testing.T) {
	stopper := &recordingStopper{}
	counters := &ErrorCounters{}
	var seen []ErrorCategory
	l := NewErrorListener(stopper, counters, func(ev engine.ErrorEvent, cat ErrorCategory) {
		seen = append(seen, cat)
	})

	l.Handle(engine.ErrorEvent{Source: NameSource, Message: "Internal data stream error."})
	l.Handle(engine.ErrorEvent{Source: NameDisplaySink, Message: "Could not open display"})

	if stopper.calls.Load() != 2 {
		t.Errorf("RequestStop called %d times, want 2", stopper.calls.Load())
	}
	if reason, _ := stopper.reason.Load().(string); reason != "error from "+NameSource {
		t.Errorf("stop reason = %q", reason)
	}
	if len(seen) != 2 || seen[0] != ErrCategoryCodec || seen[1] != ErrCategoryResource {
		t.Errorf("onError categories = %v", seen)
	}
	if counters.Codec.Load() != 1 || counters.Resource.Load() != 1 {
		t.Errorf("counters codec/resource = %d/%d", counters.Codec.Load(), counters.Resource.Load())
	}
}

func TestErrorListener_NilHooks(t *testing.T) {
	stopper := &recordingStopper{}
	l := NewErrorListener(stopper, nil, nil)
	l.Handle(engine.ErrorEvent{Source: NameSource})
	if !stopper.stopped.Load() {
		t.Error("listener with nil hooks did not request stop")
	}
}
