package main

import (
	"log/slog"

	streamtee "github.com/e7canasta/orion-care-sensor/modules/stream-tee"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/emitter"
)

// eventSink is the part of the MQTT emitter the publisher needs.
type eventSink interface {
	Publish(ev emitter.Event) error
	Disconnect()
}

// eventPublisher forwards session events to MQTT off the engine threads.
//
// Handle never blocks. Close delivers whatever is still queued, then
// disconnects; it must be called once Run has returned.
type eventPublisher struct {
	sink       eventSink
	instanceID string
	queue      chan emitter.Event
	done       chan struct{}
}

func newEventPublisher(sink eventSink, instanceID string) *eventPublisher {
	p := &eventPublisher{
		sink:       sink,
		instanceID: instanceID,
		queue:      make(chan emitter.Event, 32),
		done:       make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *eventPublisher) loop() {
	defer close(p.done)
	for ev := range p.queue {
		if err := p.sink.Publish(ev); err != nil {
			slog.Warn("Failed to publish event", "kind", ev.Kind, "error", err)
		}
	}
}

// Handle is the stream's event handler
func (p *eventPublisher) Handle(se streamtee.SessionEvent) {
	ev := emitter.Event{
		Kind:       se.Kind,
		InstanceID: p.instanceID,
		Pipeline:   se.Pipeline,
		Timestamp:  se.Timestamp.UTC(),
		Stage:      se.Stage,
		Message:    se.Message,
		Category:   se.Category,
	}
	if se.Format.MediaKind != "" {
		ev.Format = se.Format.CapsString()
	}
	if se.Stats != nil {
		ev.Stats = map[string]uint64{
			"frames_sampled": se.Stats.FramesSampled,
			"bytes_read":     se.Stats.BytesRead,
			"flow_errors":    se.Stats.FlowErrors,
			"frames_skipped": se.Stats.FramesSkipped,
			"restarts":       se.Stats.Restarts,
		}
	}
	select {
	case p.queue <- ev:
	default:
		slog.Warn("Event queue full, dropping event", "kind", ev.Kind)
	}
}

// Close drains the queue and disconnects
func (p *eventPublisher) Close() {
	close(p.queue)
	<-p.done
	p.sink.Disconnect()
}
