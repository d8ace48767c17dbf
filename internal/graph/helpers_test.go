package graph

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine/enginetest"
)

var (
	rawVideo720 = engine.Format{MediaKind: "video/x-raw", Width: 1280, Height: 720, PixelFormat: "RGB"}
	rawAudio    = engine.Format{MediaKind: "audio/x-raw", PixelFormat: "F32LE"}
	rgbCapture  = engine.Format{MediaKind: "video/x-raw", PixelFormat: "RGB"}
)

func testSpec() Spec {
	return Spec{
		Name:          "test-pipeline",
		SourceURI:     "file:///videos/sample.mp4",
		CaptureFormat: rgbCapture,
	}
}

// mustBuild builds the default graph on a fresh fake engine
func mustBuild(t *testing.T) (*enginetest.Engine, *Graph) {
	t.Helper()
	eng := enginetest.New()
	g, err := Build(eng, testSpec())
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return eng, g
}

// session is a built, attached and started graph
type session struct {
	eng        *enginetest.Engine
	graph      *Graph
	resolver   *Resolver
	sampler    *Sampler
	controller *Controller
	loop       *enginetest.Loop
	pipeline   *enginetest.Pipeline
	source     *enginetest.Stage
	sink       *enginetest.SampleSink
	errors     *ErrorCounters
	samples    *SamplerCounters
}

func startSession(t *testing.T, eng *enginetest.Engine, consume ConsumeFunc) *session {
	t.Helper()
	g, err := Build(eng, testSpec())
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	s := &session{
		eng:     eng,
		graph:   g,
		errors:  &ErrorCounters{},
		samples: &SamplerCounters{},
	}
	s.resolver = NewResolver(g.SplitterSink(), nil)
	s.sampler = NewSampler(consume, s.samples)
	if err := g.Attach(s.resolver, s.sampler); err != nil {
		t.Fatalf("Attach() failed: %v", err)
	}

	s.loop = eng.NewLoop().(*enginetest.Loop)
	s.controller = NewController(g, s.loop, s.errors, nil)
	if err := s.controller.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	s.pipeline = eng.LastPipeline()
	s.source = eng.Stage(NameSource)
	s.sink = g.SampleSink.(*enginetest.SampleSink)
	return s
}

func countState(states []engine.State, want engine.State) int {
	n := 0
	for _, s := range states {
		if s == want {
			n++
		}
	}
	return n
}

// stubPad is a standalone engine.Pad for resolver edge cases the fake
// engine cannot stage before the callback fires.
type stubPad struct {
	name   string
	format *engine.Format
	fail   bool
	links  atomic.Int32
	peer   atomic.Pointer[stubPad]
}

func (p *stubPad) Name() string   { return p.name }
func (p *stubPad) IsLinked() bool { return p.peer.Load() != nil }

func (p *stubPad) CurrentFormat() (engine.Format, bool) {
	if p.format == nil {
		return engine.Format{}, false
	}
	return *p.format, true
}

func (p *stubPad) Link(sink engine.Pad) error {
	p.links.Add(1)
	sp := sink.(*stubPad)
	if p.fail || sp.fail {
		return fmt.Errorf("stub: link %s -> %s refused", p.name, sp.name)
	}
	if !sp.peer.CompareAndSwap(nil, p) {
		return fmt.Errorf("stub: %s already linked", sp.name)
	}
	p.peer.Store(sp)
	return nil
}
