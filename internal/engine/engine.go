// Package engine defines the boundary between the stream-tee core and the
// media-processing engine that supplies ready-made stages.
//
// The core never touches GStreamer types directly. Everything it needs
// (stage factories, a pipeline container, pad linking, caps, sample pull,
// buffer mapping, bus errors and a run loop) is expressed here, so the graph
// logic can be driven by go-gst in production and by an in-memory fake in tests.
package engine

import (
	"fmt"
	"strings"
)

// MediaKindRawVideo is the caps name prefix of decoded video streams.
const MediaKindRawVideo = "video/x-raw"

// State mirrors the engine pipeline states the core uses.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FlowReturn is the result handed back to the engine by a new-sample callback.
type FlowReturn int

const (
	FlowOK FlowReturn = iota
	FlowError
)

// String returns the flow return name
func (f FlowReturn) String() string {
	if f == FlowOK {
		return "ok"
	}
	return "error"
}

// Format is a negotiated stream format descriptor.
//
// Immutable once attached to a link. Zero Width/Height or an empty
// PixelFormat means the field was not present in the negotiated caps.
type Format struct {
	MediaKind   string
	Width       int
	Height      int
	PixelFormat string
}

// IsRawVideo reports whether the media kind starts with the raw video designation.
func (f Format) IsRawVideo() bool {
	return strings.HasPrefix(f.MediaKind, MediaKindRawVideo)
}

// CapsString renders the descriptor in engine caps syntax
// (e.g. "video/x-raw,format=RGB,width=1280,height=720").
func (f Format) CapsString() string {
	var b strings.Builder
	b.WriteString(f.MediaKind)
	if f.PixelFormat != "" {
		fmt.Fprintf(&b, ",format=%s", f.PixelFormat)
	}
	if f.Width > 0 {
		fmt.Fprintf(&b, ",width=%d", f.Width)
	}
	if f.Height > 0 {
		fmt.Fprintf(&b, ",height=%d", f.Height)
	}
	return b.String()
}

// String returns a compact human-readable form (e.g. "1280x720 RGB")
func (f Format) String() string {
	if f.Width == 0 && f.Height == 0 {
		if f.PixelFormat == "" {
			return f.MediaKind
		}
		return fmt.Sprintf("%s %s", f.MediaKind, f.PixelFormat)
	}
	return fmt.Sprintf("%dx%d %s", f.Width, f.Height, f.PixelFormat)
}

// ErrorEvent is an asynchronous error notification posted on the pipeline bus.
type ErrorEvent struct {
	// Source is the name of the originating stage
	Source string
	// Message is the human-readable error text
	Message string
	// Debug is optional engine debug detail
	Debug string
}

// Engine creates pipeline containers, stages and run loops.
type Engine interface {
	// NewPipeline creates an empty pipeline container.
	NewPipeline(name string) (Pipeline, error)
	// NewStage instantiates a stage from the named factory.
	// Returns an error if the factory is unavailable.
	NewStage(factory, name string) (Stage, error)
	// NewSampleSink instantiates a programmatic sink from the named factory.
	NewSampleSink(factory, name string) (SampleSink, error)
	// NewLoop creates the single-threaded run loop callbacks are dispatched around.
	NewLoop() Loop
}

// Pipeline is the container that owns every stage.
type Pipeline interface {
	Name() string
	// Add transfers ownership of the stages to the pipeline.
	Add(stages ...Stage) error
	// SetState requests a state transition; an error means the engine refused it.
	SetState(state State) error
	// WatchErrors registers fn for error-class bus messages only.
	// Must be called before the run loop starts.
	WatchErrors(fn func(ErrorEvent)) error
}

// Stage is a named processing unit with zero or more pads.
type Stage interface {
	Name() string
	SetProperty(name string, value any) error
	// StaticPad returns the always-present pad with the given name, or nil.
	StaticPad(name string) Pad
	// RequestPad creates a new pad from a request template (e.g. "src_%u"), or nil.
	RequestPad(template string) Pad
	// ReleaseRequestPad releases a pad obtained from RequestPad.
	ReleaseRequestPad(pad Pad)
	// LinkTo statically links this stage's output to dst's input.
	LinkTo(dst Stage) error
	// OnPadAdded registers fn for output pads discovered at runtime.
	// fn runs on an engine-owned thread.
	OnPadAdded(fn func(pad Pad)) error
}

// Pad is a typed connection point on a stage.
type Pad interface {
	Name() string
	IsLinked() bool
	// CurrentFormat returns the negotiated format, false when none is available yet.
	CurrentFormat() (Format, bool)
	// Link connects this (source) pad to sink.
	Link(sink Pad) error
}

// SampleSink is the programmatic terminal stage of the sampling branch.
type SampleSink interface {
	Stage
	// SetFormat restricts the accepted format (capture format request).
	SetFormat(format Format) error
	// OnNewSample registers fn, called on an engine thread once per ready buffer.
	OnNewSample(fn func(sink SampleSink) FlowReturn) error
	// PullSample synchronously takes one ready sample, nil if none.
	PullSample() Sample
}

// Sample couples a buffer with the format it was produced in.
type Sample interface {
	// Buffer returns the sample's buffer, nil if absent.
	Buffer() Buffer
	// Format returns the sample's format, false if absent.
	Format() (Format, bool)
}

// Buffer is an opaque chunk of sample data.
type Buffer interface {
	// MapRead obtains a scoped read-only view. The view must be released
	// before the calling callback returns.
	MapRead() (View, error)
}

// View is a scoped read-only mapping of a buffer.
type View interface {
	// Bytes returns the mapped memory. Valid only until Release.
	Bytes() []byte
	Release()
}

// Loop is the blocking run loop.
type Loop interface {
	// Run blocks until Quit is called.
	Run()
	// Quit makes Run return. Safe from any goroutine, safe to call more than once.
	Quit()
}
