// Package enginetest provides an in-memory engine.Engine for tests.
//
// The fake models just enough of a media engine to drive the graph core:
// stages with static and request pads, check-and-link pads, caps on
// discovered pads, a sample sink fed by the test, a bus that posts errors
// and a run loop that blocks until quit.
package enginetest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
)

// ErrUnavailable is returned for factories marked missing.
var ErrUnavailable = errors.New("enginetest: factory unavailable")

// Engine is a fake engine.Engine. Zero value is not usable, use New.
type Engine struct {
	mu sync.Mutex

	missing     map[string]bool
	failLinks   map[string]bool
	failStates  map[engine.State]bool
	noRequest   bool
	failAdd     bool
	failProps   map[string]bool
	stages      map[string]*Stage
	sinks       map[string]*SampleSink
	pipelines   []*Pipeline
	loops       []*Loop
	stagesMade  int
	pipelineErr error
}

// New returns an empty fake engine where every factory is available
func New() *Engine {
	return &Engine{
		missing:    make(map[string]bool),
		failLinks:  make(map[string]bool),
		failStates: make(map[engine.State]bool),
		failProps:  make(map[string]bool),
		stages:     make(map[string]*Stage),
		sinks:      make(map[string]*SampleSink),
	}
}

// MissingFactory makes NewStage/NewSampleSink fail for factory.
func (e *Engine) MissingFactory(factory string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.missing[factory] = true
}

// FailLink makes the static link src -> dst fail (stage names).
func (e *Engine) FailLink(src, dst string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failLinks[src+"->"+dst] = true
}

// FailState makes Pipeline.SetState(state) fail.
func (e *Engine) FailState(state engine.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failStates[state] = true
}

// FailAdd makes Pipeline.Add fail after adding the first stage.
func (e *Engine) FailAdd() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failAdd = true
}

// FailProperty makes SetProperty(name, ...) fail on every stage.
func (e *Engine) FailProperty(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failProps[name] = true
}

// NoRequestPads makes every RequestPad call return nil.
func (e *Engine) NoRequestPads() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.noRequest = true
}

// FailPipeline makes NewPipeline return err.
func (e *Engine) FailPipeline(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pipelineErr = err
}

// Stage returns the stage created with name, or nil.
func (e *Engine) Stage(name string) *Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stages[name]
}

// SampleSink returns the most recent sample sink created with name, or nil.
func (e *Engine) SampleSink(name string) *SampleSink {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sinks[name]
}

// Pipelines returns every pipeline created so far.
func (e *Engine) Pipelines() []*Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Pipeline(nil), e.pipelines...)
}

// LastPipeline returns the most recently created pipeline, or nil.
func (e *Engine) LastPipeline() *Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pipelines) == 0 {
		return nil
	}
	return e.pipelines[len(e.pipelines)-1]
}

// Loops returns every loop created so far.
func (e *Engine) Loops() []*Loop {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Loop(nil), e.loops...)
}

// StagesMade returns how many stages were successfully instantiated.
func (e *Engine) StagesMade() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stagesMade
}

// NewPipeline implements engine.Engine
func (e *Engine) NewPipeline(name string) (engine.Pipeline, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipelineErr != nil {
		return nil, e.pipelineErr
	}
	p := &Pipeline{eng: e, name: name}
	e.pipelines = append(e.pipelines, p)
	return p, nil
}

// NewStage implements engine.Engine
func (e *Engine) NewStage(factory, name string) (engine.Stage, error) {
	return e.newStage(factory, name)
}

// NewSampleSink implements engine.Engine
func (e *Engine) NewSampleSink(factory, name string) (engine.SampleSink, error) {
	st, err := e.newStage(factory, name)
	if err != nil {
		return nil, err
	}
	sink := &SampleSink{Stage: st}
	e.mu.Lock()
	e.sinks[name] = sink
	e.mu.Unlock()
	return sink, nil
}

func (e *Engine) newStage(factory, name string) (*Stage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.missing[factory] {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, factory)
	}
	e.stagesMade++
	st := &Stage{
		eng:     e,
		name:    name,
		Factory: factory,
		props:   make(map[string]any),
	}
	st.sink = &Pad{name: "sink", owner: st}
	st.src = &Pad{name: "src", owner: st}
	e.stages[name] = st
	return st, nil
}

// NewLoop implements engine.Engine
func (e *Engine) NewLoop() engine.Loop {
	l := &Loop{quit: make(chan struct{})}
	e.mu.Lock()
	e.loops = append(e.loops, l)
	e.mu.Unlock()
	return l
}

// Pipeline is a fake engine.Pipeline.
type Pipeline struct {
	eng  *Engine
	name string

	mu       sync.Mutex
	stages   []engine.Stage
	states   []engine.State
	watchers []func(engine.ErrorEvent)
}

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) Add(stages ...engine.Stage) error {
	p.eng.mu.Lock()
	fail := p.eng.failAdd
	p.eng.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if fail && len(stages) > 1 {
		p.stages = append(p.stages, stages[0])
		return fmt.Errorf("enginetest: pipeline refused %s", stages[1].Name())
	}
	p.stages = append(p.stages, stages...)
	return nil
}

func (p *Pipeline) SetState(state engine.State) error {
	p.eng.mu.Lock()
	fail := p.eng.failStates[state]
	p.eng.mu.Unlock()
	if fail {
		return fmt.Errorf("enginetest: state change to %s refused", state)
	}
	p.mu.Lock()
	p.states = append(p.states, state)
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) WatchErrors(fn func(engine.ErrorEvent)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchers = append(p.watchers, fn)
	return nil
}

// PostError delivers ev to every error watcher, like a bus message.
func (p *Pipeline) PostError(ev engine.ErrorEvent) {
	p.mu.Lock()
	watchers := append(([]func(engine.ErrorEvent))(nil), p.watchers...)
	p.mu.Unlock()
	for _, fn := range watchers {
		fn(ev)
	}
}

// States returns every state successfully requested, in order.
func (p *Pipeline) States() []engine.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.State(nil), p.states...)
}

// Stages returns the stages added to the pipeline.
func (p *Pipeline) Stages() []engine.Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.Stage(nil), p.stages...)
}

// Stage is a fake engine.Stage with static "sink" and "src" pads.
type Stage struct {
	eng     *Engine
	name    string
	Factory string

	mu        sync.Mutex
	props     map[string]any
	sink      *Pad
	src       *Pad
	requested []*Pad
	released  []*Pad
	linkedTo  []string
	padAdded  []func(engine.Pad)
}

func (s *Stage) Name() string { return s.name }

func (s *Stage) SetProperty(name string, value any) error {
	s.eng.mu.Lock()
	fail := s.eng.failProps[name]
	s.eng.mu.Unlock()
	if fail {
		return fmt.Errorf("enginetest: property %s refused on %s", name, s.name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.props[name] = value
	return nil
}

// Property returns a property previously set.
func (s *Stage) Property(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.props[name]
	return v, ok
}

func (s *Stage) StaticPad(name string) engine.Pad {
	switch name {
	case "sink":
		return s.sink
	case "src":
		return s.src
	default:
		return nil
	}
}

// SinkPad returns the concrete static sink pad.
func (s *Stage) SinkPad() *Pad { return s.sink }

func (s *Stage) RequestPad(template string) engine.Pad {
	s.eng.mu.Lock()
	none := s.eng.noRequest
	s.eng.mu.Unlock()
	if none {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &Pad{name: fmt.Sprintf("src_%d", len(s.requested)), owner: s}
	s.requested = append(s.requested, p)
	return p
}

func (s *Stage) ReleaseRequestPad(p engine.Pad) {
	fp, ok := p.(*Pad)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, fp)
}

// Requested returns the pads handed out by RequestPad.
func (s *Stage) Requested() []*Pad {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Pad(nil), s.requested...)
}

// Released returns the pads passed to ReleaseRequestPad.
func (s *Stage) Released() []*Pad {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Pad(nil), s.released...)
}

func (s *Stage) LinkTo(dst engine.Stage) error {
	s.eng.mu.Lock()
	fail := s.eng.failLinks[s.name+"->"+dst.Name()]
	s.eng.mu.Unlock()
	if fail {
		return fmt.Errorf("enginetest: link %s -> %s refused", s.name, dst.Name())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkedTo = append(s.linkedTo, dst.Name())
	return nil
}

// LinkedTo returns the names of stages this stage was statically linked to.
func (s *Stage) LinkedTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.linkedTo...)
}

func (s *Stage) OnPadAdded(fn func(engine.Pad)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.padAdded = append(s.padAdded, fn)
	return nil
}

// AddPad simulates runtime discovery of an output pad with the given format.
// A nil format means caps are not negotiated yet.
func (s *Stage) AddPad(name string, format *engine.Format) *Pad {
	p := &Pad{name: name, owner: s}
	if format != nil {
		f := *format
		p.format = &f
	}
	s.mu.Lock()
	handlers := append(([]func(engine.Pad))(nil), s.padAdded...)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(p)
	}
	return p
}

// Pad is a fake engine.Pad. Linking is an atomic check-and-set on the sink.
type Pad struct {
	name     string
	owner    *Stage
	format   *engine.Format
	peer     atomic.Pointer[Pad]
	FailLink bool
}

func (p *Pad) Name() string { return p.name }

func (p *Pad) IsLinked() bool { return p.peer.Load() != nil }

// Peer returns the pad this pad is linked to, or nil.
func (p *Pad) Peer() *Pad { return p.peer.Load() }

func (p *Pad) CurrentFormat() (engine.Format, bool) {
	if p.format == nil {
		return engine.Format{}, false
	}
	return *p.format, true
}

func (p *Pad) Link(sink engine.Pad) error {
	sp, ok := sink.(*Pad)
	if !ok {
		return fmt.Errorf("enginetest: foreign pad")
	}
	if p.FailLink || sp.FailLink {
		return fmt.Errorf("enginetest: link %s -> %s refused", p.name, sp.name)
	}
	if !sp.peer.CompareAndSwap(nil, p) {
		return fmt.Errorf("enginetest: sink pad %s already linked", sp.name)
	}
	p.peer.Store(sp)
	return nil
}

// SampleSink is a fake engine.SampleSink fed by the test.
type SampleSink struct {
	*Stage

	mu       sync.Mutex
	format   *engine.Format
	queue    []engine.Sample
	callback func(engine.SampleSink) engine.FlowReturn
}

func (s *SampleSink) SetFormat(format engine.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = &format
	return nil
}

// Format returns the capture format requested through SetFormat.
func (s *SampleSink) Format() (engine.Format, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format == nil {
		return engine.Format{}, false
	}
	return *s.format, true
}

func (s *SampleSink) OnNewSample(fn func(engine.SampleSink) engine.FlowReturn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = fn
	return nil
}

func (s *SampleSink) PullSample() engine.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	smp := s.queue[0]
	s.queue = s.queue[1:]
	return smp
}

// Deliver queues smp (may be nil to simulate an empty pull) and fires the
// new-sample callback, returning its flow result.
func (s *SampleSink) Deliver(smp engine.Sample) engine.FlowReturn {
	s.mu.Lock()
	if smp != nil {
		s.queue = append(s.queue, smp)
	}
	cb := s.callback
	s.mu.Unlock()
	if cb == nil {
		return engine.FlowError
	}
	return cb(s)
}

// Sample is a fake engine.Sample.
type Sample struct {
	Buf *Buffer
	Fmt *engine.Format
}

// NewSample builds a sample carrying data in format f.
func NewSample(f engine.Format, data []byte) *Sample {
	return &Sample{Buf: &Buffer{Data: data}, Fmt: &f}
}

func (s *Sample) Buffer() engine.Buffer {
	if s.Buf == nil {
		return nil
	}
	return s.Buf
}

func (s *Sample) Format() (engine.Format, bool) {
	if s.Fmt == nil {
		return engine.Format{}, false
	}
	return *s.Fmt, true
}

// Buffer is a fake engine.Buffer that counts maps and releases.
type Buffer struct {
	Data    []byte
	FailMap bool

	maps     atomic.Int32
	releases atomic.Int32
}

func (b *Buffer) MapRead() (engine.View, error) {
	if b.FailMap {
		return nil, fmt.Errorf("enginetest: map refused")
	}
	b.maps.Add(1)
	return &View{buf: b}, nil
}

// Maps returns how many views were obtained.
func (b *Buffer) Maps() int { return int(b.maps.Load()) }

// Releases returns how many views were released.
func (b *Buffer) Releases() int { return int(b.releases.Load()) }

// View is a fake engine.View.
type View struct {
	buf  *Buffer
	once sync.Once
}

func (v *View) Bytes() []byte { return v.buf.Data }

func (v *View) Release() {
	v.once.Do(func() { v.buf.releases.Add(1) })
}

// Loop is a fake engine.Loop backed by a channel.
type Loop struct {
	quit    chan struct{}
	once    sync.Once
	running atomic.Bool
	quits   atomic.Int32
}

func (l *Loop) Run() {
	l.running.Store(true)
	<-l.quit
	l.running.Store(false)
}

func (l *Loop) Quit() {
	l.quits.Add(1)
	l.once.Do(func() { close(l.quit) })
}

// Running reports whether Run is currently blocked.
func (l *Loop) Running() bool { return l.running.Load() }

// Quits returns how many times Quit was called.
func (l *Loop) Quits() int { return int(l.quits.Load()) }
