package main

import (
	"sync"
	"testing"
	"time"

	streamtee "github.com/e7canasta/orion-care-sensor/modules/stream-tee"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/emitter"
)

type recordingSink struct {
	mu           sync.Mutex
	kinds        []string
	disconnected bool
	lateEvents   int
	delay        time.Duration
}

func (r *recordingSink) Publish(ev emitter.Event) error {
	time.Sleep(r.delay)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disconnected {
		r.lateEvents++
	}
	r.kinds = append(r.kinds, ev.Kind)
	return nil
}

func (r *recordingSink) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = true
}

func TestEventPublisher_CloseDeliversQueuedEvents(t *testing.T) {
	sink := &recordingSink{delay: 5 * time.Millisecond}
	p := newEventPublisher(sink, "stream-tee")

	stats := streamtee.TeeStats{FramesSampled: 42}
	p.Handle(streamtee.SessionEvent{Kind: streamtee.EventStarted, Timestamp: time.Now()})
	p.Handle(streamtee.SessionEvent{Kind: streamtee.EventError, Stage: "video_source", Message: "Could not connect"})
	p.Handle(streamtee.SessionEvent{Kind: streamtee.EventStopped, Stats: &stats})

	// Events queued behind a slow broker must survive shutdown
	p.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	want := []string{streamtee.EventStarted, streamtee.EventError, streamtee.EventStopped}
	if len(sink.kinds) != len(want) {
		t.Fatalf("published %v, want %v", sink.kinds, want)
	}
	for i := range want {
		if sink.kinds[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, sink.kinds[i], want[i])
		}
	}
	if !sink.disconnected {
		t.Error("Close() did not disconnect")
	}
	if sink.lateEvents != 0 {
		t.Errorf("%d events published after disconnect", sink.lateEvents)
	}
	t.Logf("✅ %d events delivered before disconnect", len(sink.kinds))
}
