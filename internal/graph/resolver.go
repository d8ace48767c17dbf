package graph

import (
	"log/slog"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
)

// ResolveResult reports what the resolver did with a discovered output.
type ResolveResult int

const (
	// ResolveLinked: the output was linked into the splitter
	ResolveLinked ResolveResult = iota
	// ResolveAlreadyLinked: the splitter input was already taken, output ignored
	ResolveAlreadyLinked
	// ResolveNoFormat: the output had no negotiated format yet, attempt aborted
	ResolveNoFormat
	// ResolveNotVideo: the output is not raw video (e.g. audio), ignored
	ResolveNotVideo
	// ResolveLinkFailed: the link was refused, graph left unlinked
	ResolveLinkFailed
)

// String returns the result name
func (r ResolveResult) String() string {
	switch r {
	case ResolveLinked:
		return "linked"
	case ResolveAlreadyLinked:
		return "already_linked"
	case ResolveNoFormat:
		return "no_format"
	case ResolveNotVideo:
		return "not_video"
	case ResolveLinkFailed:
		return "link_failed"
	default:
		return "unknown"
	}
}

// Err maps the result to its error class: ErrNegotiation for outputs that
// carry no usable format, ErrLink for a refused link, nil otherwise.
func (r ResolveResult) Err() error {
	switch r {
	case ResolveNoFormat, ResolveNotVideo:
		return ErrNegotiation
	case ResolveLinkFailed:
		return ErrLink
	default:
		return nil
	}
}

// ResolverCounters tracks discovery outcomes across sessions
type ResolverCounters struct {
	OutputsLinked  atomic.Uint64
	OutputsIgnored atomic.Uint64
	LinkFailures   atomic.Uint64
}

// Resolver links the first raw-video output the source discovers into the
// splitter's input, exactly once.
//
// HandlePadAdded runs on engine threads and may be invoked concurrently for
// several outputs. The splitter input's linked state is the guard; a
// compare-and-set claim makes check-then-link atomic so only one output can
// attempt the link at a time. A refused link drops the claim so a later
// output may still be accepted.
type Resolver struct {
	sinkPad  engine.Pad
	counters *ResolverCounters
	onLinked func(engine.Format)

	claimed atomic.Bool
	linked  atomic.Bool
	format  atomic.Pointer[engine.Format]
}

// NewResolver creates a resolver targeting the splitter input pad.
// counters may be nil.
func NewResolver(splitterSink engine.Pad, counters *ResolverCounters) *Resolver {
	if counters == nil {
		counters = &ResolverCounters{}
	}
	return &Resolver{sinkPad: splitterSink, counters: counters}
}

// OnLinked registers fn, called once with the format of the linked output.
// Must be set before the pipeline starts.
func (r *Resolver) OnLinked(fn func(engine.Format)) {
	r.onLinked = fn
}

// Linked reports whether an output has been linked
func (r *Resolver) Linked() bool {
	return r.linked.Load()
}

// Format returns the format of the linked output, false until linked
func (r *Resolver) Format() (engine.Format, bool) {
	f := r.format.Load()
	if f == nil {
		return engine.Format{}, false
	}
	return *f, true
}

// HandlePadAdded is the "new output discovered" callback of the source stage.
func (r *Resolver) HandlePadAdded(pad engine.Pad) ResolveResult {
	slog.Debug("graph: pad-added signal received", "pad", pad.Name())

	if r.linked.Load() || r.sinkPad.IsLinked() {
		r.counters.OutputsIgnored.Add(1)
		slog.Info("graph: splitter input already linked, ignoring output", "pad", pad.Name())
		return ResolveAlreadyLinked
	}

	format, ok := pad.CurrentFormat()
	if !ok {
		slog.Warn("graph: discovered output has no negotiated format yet",
			"pad", pad.Name(),
			"error", ResolveNoFormat.Err(),
		)
		return ResolveNoFormat
	}

	if !format.IsRawVideo() {
		r.counters.OutputsIgnored.Add(1)
		slog.Info("graph: ignoring non-video output",
			"pad", pad.Name(),
			"media_kind", format.MediaKind,
		)
		return ResolveNotVideo
	}

	if !r.claimed.CompareAndSwap(false, true) {
		r.counters.OutputsIgnored.Add(1)
		slog.Info("graph: another output is being linked, ignoring", "pad", pad.Name())
		return ResolveAlreadyLinked
	}

	if err := pad.Link(r.sinkPad); err != nil {
		r.claimed.Store(false)
		r.counters.LinkFailures.Add(1)
		slog.Error("graph: failed to link source output to splitter",
			"src_pad", pad.Name(),
			"sink_pad", r.sinkPad.Name(),
			"media_kind", format.MediaKind,
			"error", err,
		)
		return ResolveLinkFailed
	}

	r.format.Store(&format)
	r.linked.Store(true)
	r.counters.OutputsLinked.Add(1)
	slog.Info("graph: source output linked",
		"pad", pad.Name(),
		"media_kind", format.MediaKind,
		"width", format.Width,
		"height", format.Height,
		"format", format.PixelFormat,
	)
	if r.onLinked != nil {
		r.onLinked(format)
	}
	return ResolveLinked
}
