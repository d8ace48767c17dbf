package graph

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
)

// Frame is one decoded buffer handed to a consumer.
//
// Data aliases engine memory and is valid only for the duration of the
// consumer call. Consumers that keep a frame must Clone it.
type Frame struct {
	// Seq is a per-session sequence number starting at 1
	Seq uint64
	// Timestamp is the wall-clock extraction time
	Timestamp time.Time
	// Format is the negotiated sample format
	Format engine.Format
	// Data is the read-only mapped buffer
	Data []byte
	// TraceID correlates this frame across logs and downstream events
	TraceID string
}

// Size returns the buffer length in bytes
func (f Frame) Size() int {
	return len(f.Data)
}

// Clone returns a copy whose Data is owned by the caller.
func (f Frame) Clone() Frame {
	c := f
	if f.Data != nil {
		c.Data = make([]byte, len(f.Data))
		copy(c.Data, f.Data)
	}
	return c
}

// ConsumeFunc receives frames on the engine's streaming thread.
type ConsumeFunc func(Frame) error

// SamplerCounters tracks extraction outcomes
type SamplerCounters struct {
	Frames         atomic.Uint64
	Bytes          atomic.Uint64
	FlowErrors     atomic.Uint64
	ConsumerErrors atomic.Uint64
	ConsumerPanics atomic.Uint64
	// MapFailures counts buffers skipped because they could not be mapped
	MapFailures atomic.Uint64

	lastFormat  atomic.Pointer[engine.Format]
	lastFrameAt atomic.Int64
}

// LastFormat returns the format of the most recent frame
func (c *SamplerCounters) LastFormat() (engine.Format, bool) {
	f := c.lastFormat.Load()
	if f == nil {
		return engine.Format{}, false
	}
	return *f, true
}

// LastFrameAt returns the extraction time of the most recent frame, zero if none
func (c *SamplerCounters) LastFrameAt() time.Time {
	ns := c.lastFrameAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Sampler pulls ready samples from the sample sink, maps their buffers
// read-only and forwards them to the consumer.
//
// The mapped view is released before HandleNewSample returns on every path,
// including consumer errors and panics.
type Sampler struct {
	consume  ConsumeFunc
	counters *SamplerCounters
	seq      atomic.Uint64
}

// NewSampler creates a sampler forwarding to consume. counters may be nil.
func NewSampler(consume ConsumeFunc, counters *SamplerCounters) *Sampler {
	if counters == nil {
		counters = &SamplerCounters{}
	}
	return &Sampler{consume: consume, counters: counters}
}

// HandleNewSample is the sample sink's new-sample callback.
//
// Extraction failures are reported as FlowError to the engine and logged;
// the pipeline keeps running. Consumer failures do not affect flow.
func (s *Sampler) HandleNewSample(sink engine.SampleSink) engine.FlowReturn {
	if err := s.Extract(sink); err != nil {
		s.counters.FlowErrors.Add(1)
		slog.Warn("graph: sample extraction failed", "sink", sink.Name(), "error", err)
		return engine.FlowError
	}
	return engine.FlowOK
}

// Extract pulls one sample and delivers it. Returns an ErrExtraction-wrapped
// error when no sample, buffer or format is available. A buffer that cannot
// be mapped is skipped: it is counted and logged, and flow stays OK.
func (s *Sampler) Extract(sink engine.SampleSink) error {
	sample := sink.PullSample()
	if sample == nil {
		return fmt.Errorf("%w: no sample available", ErrExtraction)
	}
	buffer := sample.Buffer()
	if buffer == nil {
		return fmt.Errorf("%w: sample has no buffer", ErrExtraction)
	}
	format, ok := sample.Format()
	if !ok {
		return fmt.Errorf("%w: sample has no format", ErrExtraction)
	}

	view, err := buffer.MapRead()
	if err != nil {
		s.counters.MapFailures.Add(1)
		slog.Warn("graph: buffer not readable, frame skipped", "sink", sink.Name(), "error", err)
		return nil
	}
	defer view.Release()

	data := view.Bytes()
	now := time.Now()
	frame := Frame{
		Seq:       s.seq.Add(1),
		Timestamp: now,
		Format:    format,
		Data:      data,
		TraceID:   uuid.New().String(),
	}

	s.counters.Frames.Add(1)
	s.counters.Bytes.Add(uint64(len(data)))
	s.counters.lastFormat.Store(&format)
	s.counters.lastFrameAt.Store(now.UnixNano())

	if err := s.deliver(frame); err != nil {
		s.counters.ConsumerErrors.Add(1)
		slog.Warn("graph: consumer failed",
			"seq", frame.Seq,
			"trace_id", frame.TraceID,
			"error", err,
		)
	}
	return nil
}

// deliver invokes the consumer, converting a panic into an error.
func (s *Sampler) deliver(frame Frame) (err error) {
	if s.consume == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			s.counters.ConsumerPanics.Add(1)
			err = fmt.Errorf("consumer panic: %v", r)
		}
	}()
	return s.consume(frame)
}
