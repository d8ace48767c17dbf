package streamtee

import (
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/graph"
)

// Frame is one decoded buffer surfaced by the sampling branch.
//
// Data aliases engine memory and is valid only during FrameConsumer.Consume.
// Use Frame.Clone to keep it.
type Frame = graph.Frame

// Format is a negotiated stream format (media kind, width, height, pixel layout)
type Format = engine.Format

// StageKinds names the engine factory for each stage kind. Empty fields use
// the defaults (uridecodebin, tee, queue, videoconvert, autovideosink, appsink).
type StageKinds = graph.Kinds

// DefaultCaptureFormat is the format requested on the sampling branch
var DefaultCaptureFormat = Format{MediaKind: engine.MediaKindRawVideo, PixelFormat: "RGB"}

// DefaultPrefixBytes is how many leading bytes the diagnostic consumer logs
const DefaultPrefixBytes = 16

// SinkTuning controls the sample sink's internal queue
type SinkTuning struct {
	// MaxBuffers is the sink queue depth (0: unlimited)
	MaxBuffers uint
	// Drop discards the oldest buffer when the queue is full
	Drop bool
	// Sync synchronizes the sink to the pipeline clock
	Sync bool
}

// RestartPolicy controls session rebuilds after runtime errors
type RestartPolicy struct {
	// MaxRestarts is the number of rebuilds allowed (0: stop on first error)
	MaxRestarts int
	// InitialDelay before the first rebuild (default 1s)
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff (default 30s)
	MaxDelay time.Duration
}

// Config contains configuration for a tee stream
type Config struct {
	// URI of the source media (required), e.g. file:///videos/sample.mp4
	URI string
	// PipelineName names the pipeline container (default "test-pipeline")
	PipelineName string
	// Stages overrides the stage factories
	Stages StageKinds
	// CaptureFormat is requested on the sampling branch (default video/x-raw RGB)
	CaptureFormat Format
	// SampleSink tunes the sample sink
	SampleSink SinkTuning
	// DisplaySync synchronizes the display sink to the clock
	DisplaySync bool
	// PrefixBytes is used by the default diagnostic consumer (default 16)
	PrefixBytes int
	// Restart controls rebuilds after runtime errors
	Restart RestartPolicy
}

// TeeStats contains current stream statistics
type TeeStats struct {
	// State is the supervision state of the current session
	State string
	// IsRunning is true while Run is active
	IsRunning bool
	// Sessions is the number of sessions built (1 + restarts)
	Sessions uint64
	// Restarts is the number of rebuilds after runtime errors
	Restarts uint64
	// Uptime since Run was called
	Uptime time.Duration

	// FramesSampled is the number of frames handed to the consumer
	FramesSampled uint64
	// BytesRead is the total mapped bytes
	BytesRead uint64
	// FlowErrors counts extraction failures reported to the engine
	FlowErrors uint64
	// ConsumerErrors counts consumer errors and panics
	ConsumerErrors uint64
	// FramesSkipped counts buffers that could not be mapped for reading
	FramesSkipped uint64
	// LastFormat is the format of the most recent frame
	LastFormat Format
	// Resolution of the most recent frame (e.g. "1280x720")
	Resolution string
	// FPSReal is the measured sampling rate over the recent window
	FPSReal float64
	// FPSStable reports whether the recent sampling rate is steady
	FPSStable bool
	// LatencyMS is the time since the last frame in milliseconds
	LatencyMS int64

	// OutputsLinked counts source outputs linked into the splitter
	OutputsLinked uint64
	// OutputsIgnored counts non-video or surplus source outputs
	OutputsIgnored uint64
	// LinkFailures counts refused source links
	LinkFailures uint64

	// Error telemetry by category
	ErrorsNetwork  uint64
	ErrorsCodec    uint64
	ErrorsAuth     uint64
	ErrorsResource uint64
	ErrorsUnknown  uint64
}

// Session event kinds
const (
	EventStarted = "started"
	EventLinked  = "linked"
	EventError   = "error"
	EventStopped = "stopped"
)

// SessionEvent reports a session lifecycle transition
type SessionEvent struct {
	Kind      string
	Pipeline  string
	Timestamp time.Time
	// Stage and Message are set for error events
	Stage   string
	Message string
	// Category is the error classification (network, codec, auth, resource, unknown)
	Category string
	// Format is set for linked events
	Format Format
	// Stats is set for stopped events
	Stats *TeeStats
}
