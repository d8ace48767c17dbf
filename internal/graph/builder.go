package graph

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tee/internal/engine"
)

// splitterTemplate is the request-pad template of the fan-out splitter.
const splitterTemplate = "src_%u"

// Spec describes the graph to assemble.
type Spec struct {
	// Name of the pipeline container
	Name string
	// SourceURI is set as the source stage's "uri" property
	SourceURI string
	// Kinds names the engine factory per stage kind (empty fields use defaults)
	Kinds Kinds
	// CaptureFormat is applied to the sample sink (media kind + pixel layout)
	CaptureFormat engine.Format
	// SampleSinkProps are extra properties for the sample sink (e.g. max-buffers, drop)
	SampleSinkProps map[string]any
	// DisplaySinkProps are extra properties for the display sink (e.g. sync)
	DisplaySinkProps map[string]any
}

// Graph owns every stage of one assembled pipeline.
//
// Topology once fully linked:
//
//	source ~> splitter ─┬─ displayQueue → displayConvert → displaySink
//	                    └─ sampleQueue  → sampleConvert  → sampleSink
//
// The source → splitter link (~>) is made at runtime by the Resolver.
type Graph struct {
	Pipeline       engine.Pipeline
	Source         engine.Stage
	Splitter       engine.Stage
	DisplayQueue   engine.Stage
	DisplayConvert engine.Stage
	DisplaySink    engine.Stage
	SampleQueue    engine.Stage
	SampleConvert  engine.Stage
	SampleSink     engine.SampleSink

	// requested splitter outputs, released at teardown
	displayPad engine.Pad
	samplePad  engine.Pad

	teardownOnce sync.Once
	teardownErr  error
}

// Build instantiates every stage, adds them to one pipeline container and
// links both downstream branches to the splitter.
//
// Any failure returns an ErrConstruction-wrapped error and releases whatever
// was already acquired; no partial pipeline is left behind.
func Build(eng engine.Engine, spec Spec) (*Graph, error) {
	if spec.SourceURI == "" {
		return nil, fmt.Errorf("%w: source URI is required", ErrConstruction)
	}
	kinds := spec.Kinds.WithDefaults()

	pipeline, err := eng.NewPipeline(spec.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConstruction, err)
	}

	reg := &registry{eng: eng, kinds: kinds}
	g := &Graph{
		Pipeline:       pipeline,
		Source:         reg.stage(kinds.Source, NameSource),
		Splitter:       reg.stage(kinds.Splitter, NameSplitter),
		DisplayQueue:   reg.stage(kinds.Queue, NameDisplayQueue),
		DisplayConvert: reg.stage(kinds.Converter, NameDisplayConvert),
		DisplaySink:    reg.stage(kinds.DisplaySink, NameDisplaySink),
		SampleQueue:    reg.stage(kinds.Queue, NameSampleQueue),
		SampleConvert:  reg.stage(kinds.Converter, NameSampleConvert),
		SampleSink:     reg.sampleSink(kinds.SampleSink, NameSampleSink),
	}
	if reg.err != nil {
		// Nothing was added to the container yet; dropping the references releases the stages.
		return nil, reg.err
	}

	if err := g.configure(spec); err != nil {
		g.release()
		return nil, fmt.Errorf("%w: %v", ErrConstruction, err)
	}

	// A partial Add leaves some stages owned by the container
	if err := pipeline.Add(g.stages()...); err != nil {
		g.release()
		return nil, fmt.Errorf("%w: %v", ErrConstruction, err)
	}

	if err := g.link(); err != nil {
		g.release()
		return nil, err
	}

	slog.Info("graph: pipeline assembled",
		"pipeline", pipeline.Name(),
		"source", kinds.Source,
		"display_sink", kinds.DisplaySink,
		"sample_sink", kinds.SampleSink,
		"capture_format", spec.CaptureFormat.CapsString(),
	)
	return g, nil
}

func (g *Graph) configure(spec Spec) error {
	if err := g.Source.SetProperty("uri", spec.SourceURI); err != nil {
		return fmt.Errorf("set uri on %s: %w", NameSource, err)
	}
	if spec.CaptureFormat.MediaKind != "" {
		if err := g.SampleSink.SetFormat(spec.CaptureFormat); err != nil {
			return fmt.Errorf("set capture format on %s: %w", NameSampleSink, err)
		}
	}
	for name, value := range spec.SampleSinkProps {
		if err := g.SampleSink.SetProperty(name, value); err != nil {
			return fmt.Errorf("set %s on %s: %w", name, NameSampleSink, err)
		}
	}
	for name, value := range spec.DisplaySinkProps {
		if err := g.DisplaySink.SetProperty(name, value); err != nil {
			return fmt.Errorf("set %s on %s: %w", name, NameDisplaySink, err)
		}
	}
	return nil
}

func (g *Graph) stages() []engine.Stage {
	return []engine.Stage{
		g.Source, g.Splitter,
		g.DisplayQueue, g.DisplayConvert, g.DisplaySink,
		g.SampleQueue, g.SampleConvert, g.SampleSink,
	}
}

// link makes the static branch links, then requests one splitter output per
// branch and links it to the branch queue.
func (g *Graph) link() error {
	chains := [][]engine.Stage{
		{g.DisplayQueue, g.DisplayConvert, g.DisplaySink},
		{g.SampleQueue, g.SampleConvert, g.SampleSink},
	}
	for _, chain := range chains {
		for i := 0; i+1 < len(chain); i++ {
			if err := chain[i].LinkTo(chain[i+1]); err != nil {
				slog.Error("graph: elements could not be linked",
					"src", chain[i].Name(),
					"dst", chain[i+1].Name(),
					"error", err,
				)
				return fmt.Errorf("%w: link %s -> %s: %v", ErrConstruction, chain[i].Name(), chain[i+1].Name(), err)
			}
		}
	}

	g.displayPad = g.Splitter.RequestPad(splitterTemplate)
	g.samplePad = g.Splitter.RequestPad(splitterTemplate)
	displayQueuePad := g.DisplayQueue.StaticPad("sink")
	sampleQueuePad := g.SampleQueue.StaticPad("sink")
	if g.displayPad == nil || g.samplePad == nil || displayQueuePad == nil || sampleQueuePad == nil {
		slog.Error("graph: failed to get splitter or queue pads",
			"display_src", g.displayPad != nil,
			"sample_src", g.samplePad != nil,
			"display_queue_sink", displayQueuePad != nil,
			"sample_queue_sink", sampleQueuePad != nil,
		)
		return fmt.Errorf("%w: failed to get splitter or queue pads", ErrConstruction)
	}

	if err := g.displayPad.Link(displayQueuePad); err != nil {
		return fmt.Errorf("%w: %w: splitter -> %s: %v", ErrConstruction, ErrLink, NameDisplayQueue, err)
	}
	if err := g.samplePad.Link(sampleQueuePad); err != nil {
		return fmt.Errorf("%w: %w: splitter -> %s: %v", ErrConstruction, ErrLink, NameSampleQueue, err)
	}

	slog.Debug("graph: splitter branches linked",
		"display_pad", g.displayPad.Name(),
		"sample_pad", g.samplePad.Name(),
	)
	return nil
}

// SplitterSink returns the splitter's input pad, the target of the runtime source link.
func (g *Graph) SplitterSink() engine.Pad {
	return g.Splitter.StaticPad("sink")
}

// Attach registers the runtime callbacks: source output discovery goes to
// the resolver, ready buffers go to the sampler. Must run before PLAYING.
func (g *Graph) Attach(r *Resolver, s *Sampler) error {
	if err := g.Source.OnPadAdded(func(pad engine.Pad) { r.HandlePadAdded(pad) }); err != nil {
		return fmt.Errorf("%w: %v", ErrConstruction, err)
	}
	if err := g.SampleSink.OnNewSample(s.HandleNewSample); err != nil {
		return fmt.Errorf("%w: %v", ErrConstruction, err)
	}
	return nil
}

// Teardown releases the splitter's requested outputs, then forces the
// pipeline to NULL. Runs once; later calls return the first result.
func (g *Graph) Teardown() error {
	g.teardownOnce.Do(func() {
		g.teardownErr = g.release()
		slog.Info("graph: pipeline released", "pipeline", g.Pipeline.Name())
	})
	return g.teardownErr
}

func (g *Graph) release() error {
	if g.displayPad != nil {
		g.Splitter.ReleaseRequestPad(g.displayPad)
		g.displayPad = nil
	}
	if g.samplePad != nil {
		g.Splitter.ReleaseRequestPad(g.samplePad)
		g.samplePad = nil
	}
	if err := g.Pipeline.SetState(engine.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}
