// Package gstengine implements engine.Engine on top of GStreamer via go-gst.
package gstengine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-glib/glib"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
)

var initOnce sync.Once

// Engine creates GStreamer elements, pipelines and GLib main loops.
type Engine struct{}

// New initializes GStreamer (once per process) and returns an Engine
func New() *Engine {
	initOnce.Do(func() {
		gst.Init(nil)
		slog.Debug("gstengine: GStreamer initialized")
	})
	return &Engine{}
}

// Available reports whether the named element factories can be instantiated.
//
// Fail-fast check used at construction time, like creating a throwaway
// fakesrc to verify the GStreamer install.
func (e *Engine) Available(factories ...string) error {
	for _, factory := range factories {
		elem, err := gst.NewElement(factory)
		if err != nil {
			return fmt.Errorf("element factory %q not available: %w", factory, err)
		}
		elem.SetState(gst.StateNull)
	}
	return nil
}

// NewPipeline implements engine.Engine
func (e *Engine) NewPipeline(name string) (engine.Pipeline, error) {
	p, err := gst.NewPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return &pipeline{p: p}, nil
}

// NewStage implements engine.Engine
func (e *Engine) NewStage(factory, name string) (engine.Stage, error) {
	el, err := gst.NewElementWithName(factory, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", factory, err)
	}
	return &stage{el: el}, nil
}

// NewSampleSink implements engine.Engine
func (e *Engine) NewSampleSink(factory, name string) (engine.SampleSink, error) {
	el, err := gst.NewElementWithName(factory, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", factory, err)
	}
	return &sampleSink{stage: stage{el: el}, sink: app.SinkFromElement(el)}, nil
}

// NewLoop implements engine.Engine using the default GLib main context,
// which is where bus watches are dispatched.
func (e *Engine) NewLoop() engine.Loop {
	return &loop{ml: glib.NewMainLoop(glib.MainContextDefault(), false)}
}

type pipeline struct {
	p *gst.Pipeline
}

func (p *pipeline) Name() string { return p.p.GetName() }

func (p *pipeline) Add(stages ...engine.Stage) error {
	for _, s := range stages {
		el, err := elementOf(s)
		if err != nil {
			return err
		}
		if err := p.p.Add(el); err != nil {
			return fmt.Errorf("failed to add %s to pipeline: %w", s.Name(), err)
		}
	}
	return nil
}

func (p *pipeline) SetState(state engine.State) error {
	return p.p.SetState(toGstState(state))
}

func (p *pipeline) WatchErrors(fn func(engine.ErrorEvent)) error {
	bus := p.p.GetPipelineBus()
	ok := bus.AddWatch(func(msg *gst.Message) bool {
		if msg.Type() != gst.MessageError {
			return true
		}
		gerr := msg.ParseError()
		ev := engine.ErrorEvent{Source: msg.Source()}
		if gerr != nil {
			ev.Message = gerr.Error()
			ev.Debug = gerr.DebugString()
		}
		fn(ev)
		return true
	})
	if !ok {
		return fmt.Errorf("failed to add bus watch on %s", p.p.GetName())
	}
	return nil
}

type stage struct {
	el *gst.Element
}

func (s *stage) Name() string { return s.el.GetName() }

func (s *stage) SetProperty(name string, value any) error {
	return s.el.SetProperty(name, value)
}

func (s *stage) StaticPad(name string) engine.Pad {
	p := s.el.GetStaticPad(name)
	if p == nil {
		return nil
	}
	return &pad{p: p}
}

func (s *stage) RequestPad(template string) engine.Pad {
	p := s.el.GetRequestPad(template)
	if p == nil {
		return nil
	}
	return &pad{p: p}
}

func (s *stage) ReleaseRequestPad(p engine.Pad) {
	gp, ok := p.(*pad)
	if !ok || gp == nil {
		return
	}
	s.el.ReleaseRequestPad(gp.p)
}

func (s *stage) LinkTo(dst engine.Stage) error {
	del, err := elementOf(dst)
	if err != nil {
		return err
	}
	if err := s.el.Link(del); err != nil {
		return fmt.Errorf("failed to link %s -> %s: %w", s.Name(), dst.Name(), err)
	}
	return nil
}

func (s *stage) OnPadAdded(fn func(engine.Pad)) error {
	_, err := s.el.Connect("pad-added", func(self *gst.Element, newPad *gst.Pad) {
		fn(&pad{p: newPad})
	})
	if err != nil {
		return fmt.Errorf("failed to connect pad-added on %s: %w", s.Name(), err)
	}
	return nil
}

type pad struct {
	p *gst.Pad
}

func (p *pad) Name() string   { return p.p.GetName() }
func (p *pad) IsLinked() bool { return p.p.IsLinked() }

func (p *pad) CurrentFormat() (engine.Format, bool) {
	return formatFromCaps(p.p.GetCurrentCaps())
}

func (p *pad) Link(sink engine.Pad) error {
	sp, ok := sink.(*pad)
	if !ok || sp == nil {
		return fmt.Errorf("pad %s: foreign sink pad", p.Name())
	}
	if ret := p.p.Link(sp.p); ret != gst.PadLinkOK {
		return fmt.Errorf("pad link %s -> %s refused: %v", p.Name(), sp.Name(), ret)
	}
	return nil
}

type sampleSink struct {
	stage
	sink *app.Sink
}

func (s *sampleSink) SetFormat(format engine.Format) error {
	s.sink.SetCaps(gst.NewCapsFromString(format.CapsString()))
	return nil
}

func (s *sampleSink) OnNewSample(fn func(engine.SampleSink) engine.FlowReturn) error {
	s.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(_ *app.Sink) gst.FlowReturn {
			if fn(s) == engine.FlowOK {
				return gst.FlowOK
			}
			return gst.FlowError
		},
	})
	return nil
}

func (s *sampleSink) PullSample() engine.Sample {
	smp := s.sink.PullSample()
	if smp == nil {
		return nil
	}
	return &sample{s: smp}
}

type sample struct {
	s *gst.Sample
}

func (s *sample) Buffer() engine.Buffer {
	b := s.s.GetBuffer()
	if b == nil {
		return nil
	}
	return &buffer{b: b}
}

func (s *sample) Format() (engine.Format, bool) {
	return formatFromCaps(s.s.GetCaps())
}

type buffer struct {
	b *gst.Buffer
}

func (b *buffer) MapRead() (engine.View, error) {
	info := b.b.Map(gst.MapRead)
	if info == nil {
		return nil, fmt.Errorf("failed to map buffer for read")
	}
	return &view{b: b.b, info: info}, nil
}

type view struct {
	b    *gst.Buffer
	info *gst.MapInfo
	once sync.Once
}

func (v *view) Bytes() []byte { return v.info.Bytes() }

func (v *view) Release() {
	v.once.Do(v.b.Unmap)
}

type loop struct {
	ml *glib.MainLoop
}

func (l *loop) Run() { l.ml.Run() }

// Quit is dispatched through an idle source so a quit issued before Run
// still stops the loop once it starts.
func (l *loop) Quit() {
	if _, err := glib.IdleAdd(func() bool {
		l.ml.Quit()
		return false
	}); err != nil {
		slog.Warn("gstengine: idle quit not scheduled, quitting directly", "error", err)
		l.ml.Quit()
	}
}

func elementOf(s engine.Stage) (*gst.Element, error) {
	switch v := s.(type) {
	case *stage:
		return v.el, nil
	case *sampleSink:
		return v.el, nil
	default:
		return nil, fmt.Errorf("gstengine: stage %q was not created by this engine", s.Name())
	}
}

// formatFromCaps reads media kind, width, height and pixel format from the
// first caps structure.
func formatFromCaps(caps *gst.Caps) (engine.Format, bool) {
	if caps == nil || caps.GetSize() == 0 {
		return engine.Format{}, false
	}
	st := caps.GetStructureAt(0)
	if st == nil {
		return engine.Format{}, false
	}

	f := engine.Format{MediaKind: st.Name()}
	if val, err := st.GetValue("width"); err == nil {
		if width, ok := val.(int); ok {
			f.Width = width
		}
	}
	if val, err := st.GetValue("height"); err == nil {
		if height, ok := val.(int); ok {
			f.Height = height
		}
	}
	if val, err := st.GetValue("format"); err == nil {
		if format, ok := val.(string); ok {
			f.PixelFormat = format
		}
	}
	return f, true
}

func toGstState(s engine.State) gst.State {
	switch s {
	case engine.StateReady:
		return gst.StateReady
	case engine.StatePaused:
		return gst.StatePaused
	case engine.StatePlaying:
		return gst.StatePlaying
	default:
		return gst.StateNull
	}
}
