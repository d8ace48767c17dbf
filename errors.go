package streamtee

import "github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/graph"

// Error classes returned by Run, matched with errors.Is.
var (
	// ErrConstruction: a stage, pad or static link could not be created
	ErrConstruction = graph.ErrConstruction
	// ErrLink: a pad link was refused while assembling the graph
	ErrLink = graph.ErrLink
	// ErrNegotiation: a discovered output carried no usable video format
	ErrNegotiation = graph.ErrNegotiation
	// ErrExtraction: a sample, buffer or format was missing on the sampling branch
	ErrExtraction = graph.ErrExtraction
	// ErrStartup: the engine refused to start playback
	ErrStartup = graph.ErrStartup
	// ErrRuntime: the engine reported an error while running
	ErrRuntime = graph.ErrRuntime
)
